package main

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/quillworks/quill/internal/orchestrator"
	"github.com/quillworks/quill/internal/tui"
	"github.com/quillworks/quill/pkg/models"
)

var (
	submitSubject    string
	submitExternalID string
	submitDomain     string
	submitTUI        bool
)

var submitCmd = &cobra.Command{
	Use:   "submit <task description>",
	Short: "Submit a writing task and watch it execute",
	Long: `Submit a task for classification, worker selection, and permission-gated
execution. Approval checkpoints are resolved interactively: either at the
terminal prompt (default) or in the TUI inbox (--tui).

Resubmitting with the same --external-id returns the original workflow
instead of running the task twice.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runSubmit,
}

func init() {
	submitCmd.Flags().StringVar(&submitSubject, "subject", os.Getenv("USER"), "Subject (user) the task runs on behalf of")
	submitCmd.Flags().StringVar(&submitExternalID, "external-id", "", "Idempotency key for the task")
	submitCmd.Flags().StringVar(&submitDomain, "domain", "", "Domain hint overriding classification (e.g. legal)")
	submitCmd.Flags().BoolVar(&submitTUI, "tui", false, "Resolve approvals in the TUI inbox")
}

func runSubmit(cmd *cobra.Command, args []string) error {
	c, err := buildCore()
	if err != nil {
		return err
	}
	defer c.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	task := models.Task{
		ExternalID:  submitExternalID,
		SubjectID:   submitSubject,
		Description: strings.Join(args, " "),
		DomainHint:  submitDomain,
	}

	workflowID, err := c.service.SubmitTask(ctx, task)
	if err != nil {
		return err
	}
	fmt.Printf("workflow %s\n", workflowID)

	if submitTUI {
		err = watchInTUI(ctx, c, workflowID)
	} else {
		err = watchAtTerminal(ctx, c, workflowID)
	}
	if err != nil {
		return err
	}
	printUsage(c.resolver.usage())
	return nil
}

// printUsage reports the session's token consumption across all backends.
func printUsage(u sessionUsage) {
	if u.calls == 0 {
		return
	}
	color.New(color.Faint).Printf("session usage: %d calls, %d in / %d out tokens (~$%.4f)\n",
		u.calls, u.inputTokens, u.outputTokens, u.cost)
}

// watchAtTerminal streams events to stdout and resolves approvals with a
// y/n prompt.
func watchAtTerminal(ctx context.Context, c *core, workflowID string) error {
	go promptApprovals(ctx, c)
	go printEvents(ctx, c, workflowID)

	wf, err := c.service.WaitForWorkflow(ctx, workflowID)
	if err != nil {
		if ctx.Err() != nil {
			c.service.CancelWorkflow(workflowID)
			return fmt.Errorf("interrupted")
		}
		return err
	}
	printResult(wf)
	return nil
}

// promptApprovals answers pending approval requests from stdin.
func promptApprovals(ctx context.Context, c *core) {
	reader := bufio.NewReader(os.Stdin)
	yellow := color.New(color.FgYellow, color.Bold)
	for {
		select {
		case req := <-c.notifier.Requests():
			yellow.Printf("\napproval needed: %s\n", req.ID)
			fmt.Printf("  subject %s wants %q via worker, %d units, ~$%.4f (expires %s)\n",
				req.SubjectID, req.Capability, req.Units, req.Cost,
				req.ExpiresAt.Format(time.Kitchen))
			fmt.Print("  approve? [y/N]: ")

			line, err := reader.ReadString('\n')
			if err != nil {
				return
			}
			answer := strings.ToLower(strings.TrimSpace(line))
			if answer == "y" || answer == "yes" {
				c.service.ResolveApproval(req.ID, true, "terminal", "")
			} else {
				c.service.ResolveApproval(req.ID, false, "terminal", "declined at terminal")
			}
		case <-ctx.Done():
			return
		}
	}
}

// printEvents renders the event stream for one workflow.
func printEvents(ctx context.Context, c *core, workflowID string) {
	dim := color.New(color.Faint)
	for {
		select {
		case ev, ok := <-c.service.Events():
			if !ok {
				return
			}
			if ev.WorkflowID != workflowID {
				continue
			}
			dim.Println("  " + eventLine(ev))
		case <-ctx.Done():
			return
		}
	}
}

// eventLine formats one orchestrator event for display.
func eventLine(ev orchestrator.Event) string {
	parts := []string{string(ev.Type)}
	if ev.InvocationID != "" {
		parts = append(parts, ev.InvocationID)
	}
	if ev.WorkerID != "" {
		parts = append(parts, "worker="+ev.WorkerID)
	}
	if ev.ProviderID != "" {
		parts = append(parts, "provider="+ev.ProviderID)
	}
	if ev.Message != "" {
		parts = append(parts, ev.Message)
	}
	return strings.Join(parts, " ")
}

// printResult renders the terminal state of a finished workflow.
func printResult(wf models.Workflow) {
	switch wf.Status {
	case models.WorkflowCompleted:
		color.Green("✓ %s completed", wf.ID)
		fmt.Println()
		fmt.Println(wf.Output)
	case models.WorkflowPartiallyCompleted:
		color.Yellow("◐ %s partially completed (a supporting invocation failed)", wf.ID)
		fmt.Println()
		fmt.Println(wf.Output)
	default:
		color.Red("✗ %s %s: %s", wf.ID, wf.Status, wf.FailureReason)
		for _, v := range wf.Violations {
			fmt.Printf("  violation: %s\n", v)
		}
	}
}

// watchInTUI runs the approvals inbox TUI until the workflow finishes and
// the user quits.
func watchInTUI(ctx context.Context, c *core, workflowID string) error {
	p, _ := tui.NewProgram(c.service)

	go func() {
		for {
			select {
			case req := <-c.notifier.Requests():
				p.Send(tui.ApprovalMsg{Request: req})
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		for {
			select {
			case ev, ok := <-c.service.Events():
				if !ok {
					return
				}
				p.Send(tui.EventMsg{Line: eventLine(ev), Err: ev.Err != nil, Timestamp: ev.Timestamp})
				if wf, err := c.service.GetWorkflowStatus(ev.WorkflowID); err == nil {
					p.Send(tui.WorkflowMsg{Workflow: wf})
				}
			case <-ctx.Done():
				return
			}
		}
	}()
	go func() {
		wf, err := c.service.WaitForWorkflow(ctx, workflowID)
		if err != nil {
			p.Send(tui.DoneMsg{Success: false, Message: err.Error()})
			return
		}
		p.Send(tui.WorkflowMsg{Workflow: wf})
		p.Send(tui.DoneMsg{
			Success: wf.Status == models.WorkflowCompleted || wf.Status == models.WorkflowPartiallyCompleted,
			Message: fmt.Sprintf("%s %s", wf.ID, wf.Status),
		})
	}()

	_, err := p.Run()
	return err
}
