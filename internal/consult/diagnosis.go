package consult

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/ashureev/medendorse/internal/agent"
	"github.com/ashureev/medendorse/internal/domain"
)

var (
	errUnexpectedFormat = errors.New("unexpected diagnosis format")
	errAlreadyAttempted = errors.New("diagnosis already attempted")
)

// wireDiagnosis is the model's structured output shape.
type wireDiagnosis struct {
	PotentialDiagnosis *string `json:"potentialDiagnosis"`
	Confidence         *string `json:"confidence"`
	Rationale          *string `json:"rationale"`
	NextSteps          *string `json:"nextSteps"`
}

// ParseDiagnoses decodes and validates a structured diagnosis response.
// Every entry must carry all four fields and a known confidence.
func ParseDiagnoses(raw string) ([]domain.Diagnosis, error) {
	raw = strings.TrimSpace(raw)
	var wire []wireDiagnosis
	if err := json.Unmarshal([]byte(raw), &wire); err != nil {
		return nil, fmt.Errorf("%w: %w", errUnexpectedFormat, err)
	}
	if wire == nil {
		return nil, fmt.Errorf("%w: not an array", errUnexpectedFormat)
	}

	out := make([]domain.Diagnosis, 0, len(wire))
	for i, w := range wire {
		if w.PotentialDiagnosis == nil || strings.TrimSpace(*w.PotentialDiagnosis) == "" ||
			w.Confidence == nil || w.Rationale == nil || w.NextSteps == nil {
			return nil, fmt.Errorf("%w: entry %d is missing a required field", errUnexpectedFormat, i)
		}
		conf := domain.Confidence(*w.Confidence)
		if !conf.Valid() {
			return nil, fmt.Errorf("%w: entry %d has confidence %q", errUnexpectedFormat, i, *w.Confidence)
		}
		out = append(out, domain.Diagnosis{
			ID:         newID(),
			Label:      *w.PotentialDiagnosis,
			Confidence: conf,
			Rationale:  *w.Rationale,
			NextSteps:  *w.NextSteps,
		})
	}
	return out, nil
}

// DiagnosisCoordinator requests differential diagnoses for a case.
type DiagnosisCoordinator struct {
	proc agent.Processor
	wg   sync.WaitGroup
}

// NewDiagnosisCoordinator creates a coordinator backed by proc.
func NewDiagnosisCoordinator(proc agent.Processor) *DiagnosisCoordinator {
	return &DiagnosisCoordinator{proc: proc}
}

// Generate clears any previous result and requests a new differential.
// Management plans for the previous generation are discarded.
func (d *DiagnosisCoordinator) Generate(ctx context.Context, c *Case) ([]domain.Diagnosis, error) {
	input, gen, err := d.begin(c, false)
	if err != nil {
		return nil, err
	}
	return d.run(ctx, c, input, gen)
}

// EnterView starts a generation in the background the first time the
// diagnosis view is shown with input and no prior result, attempt or error.
// It reports whether a generation was started.
func (d *DiagnosisCoordinator) EnterView(ctx context.Context, c *Case) bool {
	input, gen, err := d.begin(c, true)
	if err != nil {
		return false
	}

	bg := context.WithoutCancel(ctx)
	d.wg.Add(1)
	go func() {
		defer d.wg.Done()
		if _, err := d.run(bg, c, input, gen); err != nil {
			slog.Debug("Automatic diagnosis did not complete", "case_id", c.ID, "error", err)
		}
	}()
	return true
}

// Wait blocks until background generations finish.
func (d *DiagnosisCoordinator) Wait() {
	d.wg.Wait()
}

// begin marks the case loading. With onlyFirst set it refuses when any
// result, attempt or error already exists.
func (d *DiagnosisCoordinator) begin(c *Case, onlyFirst bool) (domain.CaseContext, uint64, error) {
	var input domain.CaseContext
	var gen uint64
	err := c.mutate(func() error {
		if !c.input.HasInput() {
			return ErrNoCaseInput
		}
		if c.diag.loading {
			return ErrDiagnosisInFlight
		}
		if onlyFirst && (c.diag.items != nil || c.diag.err != "") {
			return errAlreadyAttempted
		}
		c.diag.generation++
		gen = c.diag.generation
		c.diag.items = nil
		c.diag.err = ""
		c.diag.loading = true
		c.diag.plans = make(map[int]PlanStatus)
		input = c.input
		return nil
	})
	return input, gen, err
}

func (d *DiagnosisCoordinator) run(ctx context.Context, c *Case, input domain.CaseContext, gen uint64) ([]domain.Diagnosis, error) {
	raw, callErr := d.proc.Diagnose(agent.WithCaseID(ctx, c.ID), DiagnosisPrompt(input))
	var items []domain.Diagnosis
	if callErr == nil {
		items, callErr = ParseDiagnoses(raw)
	}

	_ = c.mutate(func() error {
		if c.diag.generation != gen {
			return nil
		}
		c.diag.loading = false
		if callErr != nil {
			c.diag.err = msgDiagnosisFailed
			return nil
		}
		c.diag.items = items
		return nil
	})
	if callErr != nil {
		slog.Error("Differential diagnosis failed", "case_id", c.ID, "error", callErr)
		return nil, &ModelError{Message: msgDiagnosisFailed, Err: callErr}
	}

	slog.Info("Differential diagnosis ready", "case_id", c.ID, "count", len(items))
	return items, nil
}
