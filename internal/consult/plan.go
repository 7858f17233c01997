package consult

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashureev/medendorse/internal/agent"
	"github.com/ashureev/medendorse/internal/domain"
)

// PlanCoordinator fetches search-grounded management plans per diagnosis.
type PlanCoordinator struct {
	proc agent.Processor
}

// NewPlanCoordinator creates a coordinator backed by proc.
func NewPlanCoordinator(proc agent.Processor) *PlanCoordinator {
	return &PlanCoordinator{proc: proc}
}

// Fetch requests the plan for the diagnosis at index and stores it on that
// entry only. Each index has its own loading and error status. An entry
// that already carries a plan is refused.
func (p *PlanCoordinator) Fetch(ctx context.Context, c *Case, index int) (domain.Diagnosis, error) {
	var label string
	var gen uint64
	err := c.mutate(func() error {
		if index < 0 || index >= len(c.diag.items) {
			return ErrIndexOutOfRange
		}
		if c.diag.plans[index].Loading {
			return ErrPlanInFlight
		}
		if c.diag.items[index].ManagementPlan != "" {
			return ErrPlanExists
		}
		c.diag.plans[index] = PlanStatus{Loading: true}
		label = c.diag.items[index].Label
		gen = c.diag.generation
		return nil
	})
	if err != nil {
		return domain.Diagnosis{}, err
	}

	plan, callErr := p.proc.ManagementPlan(agent.WithCaseID(ctx, c.ID), PlanPrompt(label))
	if callErr == nil && (plan == nil || strings.TrimSpace(plan.Text) == "") {
		callErr = agent.ErrNoPlan
	}

	var updated domain.Diagnosis
	stale := false
	_ = c.mutate(func() error {
		if c.diag.generation != gen {
			stale = true
			return nil
		}
		if callErr != nil {
			c.diag.plans[index] = PlanStatus{Error: msgPlanFailed}
			return nil
		}
		delete(c.diag.plans, index)
		c.diag.items[index].ManagementPlan = plan.Text
		c.diag.items[index].ManagementPlanSources = filterSources(plan.Sources)
		updated = c.diag.items[index]
		return nil
	})

	if callErr != nil {
		slog.Error("Management plan failed", "case_id", c.ID, "index", index, "error", callErr)
		return domain.Diagnosis{}, &ModelError{Message: msgPlanFailed, Err: callErr}
	}
	if stale {
		slog.Info("Discarding management plan for superseded diagnosis", "case_id", c.ID, "index", index)
		return domain.Diagnosis{}, ErrStaleDiagnosis
	}
	return updated, nil
}

// filterSources keeps citations that have both a uri and a title and
// collapses duplicates to their first occurrence.
func filterSources(in []domain.Source) []domain.Source {
	var out []domain.Source
	seen := make(map[domain.Source]bool, len(in))
	for _, s := range in {
		if s.URI == "" || s.Title == "" || seen[s] {
			continue
		}
		seen[s] = true
		out = append(out, s)
	}
	return out
}
