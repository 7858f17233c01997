package consult

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ashureev/medendorse/internal/domain"
)

var errViewDisabled = errors.New("view disabled")

// ViewShell routes a case between its four views. Diagnosis and chat are
// unavailable until the case has notes or image analysis.
type ViewShell struct {
	diagnosis *DiagnosisCoordinator
	chat      *ChatCoordinator
}

// NewViewShell wires the view entry hooks.
func NewViewShell(diagnosis *DiagnosisCoordinator, chat *ChatCoordinator) *ViewShell {
	return &ViewShell{diagnosis: diagnosis, chat: chat}
}

// Enabled reports whether view can be activated for c.
func (v *ViewShell) Enabled(c *Case, view domain.View) bool {
	if !view.Valid() {
		return false
	}
	return !view.RequiresCaseInput() || c.HasInput()
}

// Navigate switches c to view. A disabled target leaves the case unchanged
// and reports false. Entering diagnosis may start a background generation;
// entering chat activates the chat session.
func (v *ViewShell) Navigate(ctx context.Context, c *Case, view domain.View) (bool, error) {
	if !view.Valid() {
		return false, fmt.Errorf("%w: %q", ErrUnknownView, view)
	}

	err := c.mutate(func() error {
		if view.RequiresCaseInput() && !c.input.HasInput() {
			return errViewDisabled
		}
		c.view = view
		return nil
	})
	if err != nil {
		return false, nil
	}

	switch view {
	case domain.ViewDiagnosis:
		if v.diagnosis.EnterView(ctx, c) {
			slog.Info("Started automatic diagnosis", "case_id", c.ID)
		}
	case domain.ViewChat:
		if _, err := v.chat.Activate(ctx, c); err != nil {
			return true, err
		}
	}
	return true, nil
}

// Current returns the active view.
func (v *ViewShell) Current(c *Case) domain.View {
	var view domain.View
	c.read(func() { view = c.view })
	return view
}
