// Package tui provides the terminal user interface for Quill: a live
// approvals inbox plus workflow and event monitors.
package tui

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/quillworks/quill/pkg/models"
)

// Tab index constants.
const (
	TabApprovals = iota
	TabWorkflows
	TabEvents
)

// Resolver applies approval decisions made in the inbox.
type Resolver interface {
	ResolveApproval(approvalID string, approved bool, resolvedBy, reason string) error
}

// ApprovalMsg delivers a newly pending approval request.
type ApprovalMsg struct {
	Request models.ApprovalRequest
}

// WorkflowMsg delivers a workflow snapshot update.
type WorkflowMsg struct {
	Workflow models.Workflow
}

// EventMsg delivers one orchestrator event line.
type EventMsg struct {
	Line      string
	Err       bool
	Timestamp time.Time
}

// DoneMsg signals that the run being watched has finished.
type DoneMsg struct {
	Success bool
	Message string
}

// resolvedMsg reports the outcome of a resolution issued from the inbox.
type resolvedMsg struct {
	approvalID string
	err        error
}

// App is the main bubbletea model.
type App struct {
	resolver Resolver

	tabs     TabBar
	inbox    *Inbox
	board    *Board
	events   []eventLine
	reason   textinput.Model
	denying  bool
	status   string
	width    int
	height   int
	quitting bool
	done     bool
	doneOK   bool
	doneMsg  string
}

type eventLine struct {
	at   time.Time
	text string
	err  bool
}

// New creates the App. resolver may be nil for a read-only monitor.
func New(resolver Resolver) *App {
	reason := textinput.New()
	reason.Placeholder = "reason for denial"
	reason.CharLimit = 120
	return &App{
		resolver: resolver,
		tabs:     NewTabBar(),
		inbox:    NewInbox(),
		board:    NewBoard(),
		reason:   reason,
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return textinput.Blink
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if a.denying {
			return a.updateDenyInput(msg)
		}
		switch msg.String() {
		case "q", "ctrl+c":
			a.quitting = true
			return a, tea.Quit
		case "j", "down":
			if a.tabs.Active() == TabApprovals {
				a.inbox.Next()
			}
		case "k", "up":
			if a.tabs.Active() == TabApprovals {
				a.inbox.Prev()
			}
		case "a":
			if a.tabs.Active() == TabApprovals {
				return a, a.approveSelected()
			}
		case "d":
			if a.tabs.Active() == TabApprovals && a.inbox.Selected() != nil {
				a.denying = true
				a.reason.SetValue("")
				a.reason.Focus()
			}
		}
		a.tabs, _ = a.tabs.Update(msg)

	case tea.WindowSizeMsg:
		a.width = msg.Width
		a.height = msg.Height

	case ApprovalMsg:
		a.inbox.Upsert(msg.Request)

	case WorkflowMsg:
		a.board.Upsert(msg.Workflow)

	case EventMsg:
		a.events = append(a.events, eventLine{at: msg.Timestamp, text: msg.Line, err: msg.Err})

	case resolvedMsg:
		if msg.err != nil {
			a.status = fmt.Sprintf("could not resolve %s: %v", msg.approvalID, msg.err)
		} else {
			a.inbox.Remove(msg.approvalID)
			a.status = fmt.Sprintf("resolved %s", msg.approvalID)
		}

	case DoneMsg:
		a.done = true
		a.doneOK = msg.Success
		a.doneMsg = msg.Message
	}

	return a, nil
}

// updateDenyInput routes keys into the denial reason prompt.
func (a *App) updateDenyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		a.denying = false
		a.reason.Blur()
		return a, a.denySelected(a.reason.Value())
	case "esc":
		a.denying = false
		a.reason.Blur()
		return a, nil
	}
	var cmd tea.Cmd
	a.reason, cmd = a.reason.Update(msg)
	return a, cmd
}

// approveSelected resolves the highlighted request as approved.
func (a *App) approveSelected() tea.Cmd {
	req := a.inbox.Selected()
	if req == nil || a.resolver == nil {
		return nil
	}
	id := req.ID
	return func() tea.Msg {
		return resolvedMsg{approvalID: id, err: a.resolver.ResolveApproval(id, true, "tui", "")}
	}
}

// denySelected resolves the highlighted request as denied.
func (a *App) denySelected(reason string) tea.Cmd {
	req := a.inbox.Selected()
	if req == nil || a.resolver == nil {
		return nil
	}
	id := req.ID
	return func() tea.Msg {
		return resolvedMsg{approvalID: id, err: a.resolver.ResolveApproval(id, false, "tui", reason)}
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if a.quitting {
		return "Goodbye!\n"
	}

	var content string
	switch a.tabs.Active() {
	case TabApprovals:
		content = a.inbox.View()
		if a.denying {
			content += "\n\nDeny reason: " + a.reason.View() + "  (enter to confirm, esc to cancel)"
		}
	case TabWorkflows:
		content = a.board.View()
	case TabEvents:
		content = a.viewEvents()
	}

	return fmt.Sprintf("%s\n\n%s\n\n%s", a.tabs.View(), content, a.viewFooter())
}

// viewEvents renders the most recent event lines.
func (a *App) viewEvents() string {
	if len(a.events) == 0 {
		return dimStyle.Render("No events yet")
	}
	start := 0
	if len(a.events) > 20 {
		start = len(a.events) - 20
	}
	var view string
	for _, e := range a.events[start:] {
		line := fmt.Sprintf("  %s %s", e.at.Format("15:04:05"), e.text)
		if e.err {
			view += errStyle.Render(line) + "\n"
		} else {
			view += line + "\n"
		}
	}
	return view
}

// viewFooter renders the status line and key help.
func (a *App) viewFooter() string {
	if a.done {
		mark := okStyle.Render("✓")
		if !a.doneOK {
			mark = errStyle.Render("✗")
		}
		return fmt.Sprintf("%s %s | Press q to exit", mark, a.doneMsg)
	}
	help := "j/k select | a approve | d deny | 1/2/3 or Tab switch | q quit"
	if a.status != "" {
		return a.status + " | " + help
	}
	return dimStyle.Render(help)
}

// Run starts the TUI and returns when the user quits.
func Run(resolver Resolver) error {
	p := tea.NewProgram(New(resolver), tea.WithAltScreen())
	_, err := p.Run()
	return err
}

// NewProgram creates a program whose model can receive messages via Send().
func NewProgram(resolver Resolver) (*tea.Program, *App) {
	app := New(resolver)
	p := tea.NewProgram(app, tea.WithAltScreen())
	return p, app
}
