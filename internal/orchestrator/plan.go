package orchestrator

import (
	"github.com/google/uuid"

	"github.com/quillworks/quill/internal/selector"
	"github.com/quillworks/quill/pkg/models"
)

// unitEstimates sizes an invocation by task complexity. Units are tokens.
var unitEstimates = map[models.Complexity]int64{
	models.ComplexityLow:    500,
	models.ComplexityMedium: 1500,
	models.ComplexityHigh:   3000,
	models.ComplexityExpert: 5000,
}

// estimateUnits returns the token estimate for a classification.
func estimateUnits(cls models.Classification) int64 {
	if units, ok := unitEstimates[cls.Complexity]; ok {
		return units
	}
	return unitEstimates[models.ComplexityMedium]
}

// CostEstimator prices an estimated unit count before a provider is chosen.
// The service wires this to the router's current first choice.
type CostEstimator func(contentType models.ContentType, units int64) float64

// planInvocations lays out the invocations for a workflow according to the
// collaboration mode. Dependencies only ever point at earlier stages, so the
// stage barrier is the only synchronization the engine needs.
//
// Layouts:
//   - single: one primary invocation.
//   - sequential: primary drafts in stage 0, one supporting invocation
//     refines it in stage 1.
//   - parallel: primary and supporting invocations all run in stage 0; the
//     aggregate is their outputs joined in plan order.
//   - collaborative: supporting invocations run in stage 0, the primary
//     synthesizes their outputs in stage 1.
func planInvocations(wf *models.Workflow, sel selector.Selection, estimate CostEstimator) []*models.Invocation {
	cls := wf.Classification
	units := estimateUnits(cls)
	cost := estimate(cls.ContentType, units)

	newInv := func(workerID string, role models.InvocationRole, stage int, deps []string) *models.Invocation {
		return &models.Invocation{
			ID:             "inv-" + uuid.New().String()[:8],
			WorkflowID:     wf.ID,
			TaskID:         wf.TaskID,
			WorkerID:       workerID,
			Role:           role,
			Stage:          stage,
			DependsOn:      deps,
			EstimatedUnits: units,
			EstimatedCost:  cost,
			Status:         models.InvocationPending,
		}
	}

	switch cls.Mode {
	case models.ModeSequential:
		primary := newInv(sel.Primary.ID, models.RolePrimary, 0, nil)
		invocations := []*models.Invocation{primary}
		if len(sel.Supporting) > 0 {
			invocations = append(invocations,
				newInv(sel.Supporting[0].ID, models.RoleSupporting, 1, []string{primary.ID}))
		}
		return invocations

	case models.ModeParallel:
		invocations := []*models.Invocation{newInv(sel.Primary.ID, models.RolePrimary, 0, nil)}
		for _, w := range sel.Supporting {
			invocations = append(invocations, newInv(w.ID, models.RoleSupporting, 0, nil))
		}
		return invocations

	case models.ModeCollaborative:
		var invocations []*models.Invocation
		var deps []string
		for _, w := range sel.Supporting {
			inv := newInv(w.ID, models.RoleSupporting, 0, nil)
			invocations = append(invocations, inv)
			deps = append(deps, inv.ID)
		}
		stage := 0
		if len(deps) > 0 {
			stage = 1
		}
		invocations = append(invocations, newInv(sel.Primary.ID, models.RolePrimary, stage, deps))
		return invocations

	default:
		return []*models.Invocation{newInv(sel.Primary.ID, models.RolePrimary, 0, nil)}
	}
}

// stagesOf groups a workflow's invocations by stage index, ordered.
func stagesOf(invocations []*models.Invocation) [][]*models.Invocation {
	maxStage := 0
	for _, inv := range invocations {
		if inv.Stage > maxStage {
			maxStage = inv.Stage
		}
	}
	stages := make([][]*models.Invocation, maxStage+1)
	for _, inv := range invocations {
		stages[inv.Stage] = append(stages[inv.Stage], inv)
	}
	return stages
}
