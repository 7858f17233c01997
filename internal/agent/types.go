// Package agent implements the generative model port used by the consult coordinators.
package agent

import (
	"context"
	"errors"

	"github.com/ashureev/medendorse/internal/domain"
)

var (
	// ErrEmptyResponse is returned when the model answers without any text.
	ErrEmptyResponse = errors.New("model returned an empty response")
	// ErrNoPlan is returned when a management plan request yields no text.
	ErrNoPlan = errors.New("model did not return a plan")
)

// ImageRequest carries one image for analysis.
type ImageRequest struct {
	Data        []byte
	MIMEType    string
	Instruction string
}

// PlanResult is a search-grounded management plan.
type PlanResult struct {
	Text    string          `json:"text"`
	Sources []domain.Source `json:"sources,omitempty"`
}

type caseIDKey struct{}

// WithCaseID tags ctx with the case a model call belongs to.
func WithCaseID(ctx context.Context, caseID string) context.Context {
	return context.WithValue(ctx, caseIDKey{}, caseID)
}

// CaseIDFromContext returns the case ID set by WithCaseID, or "".
func CaseIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(caseIDKey{}).(string)
	return id
}
