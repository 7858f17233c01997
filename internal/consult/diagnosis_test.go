package consult

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/ashureev/medendorse/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDiagnoses(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		raw     string
		want    int
		wantErr bool
	}{
		{name: "valid", raw: twoDiagnoses, want: 2},
		{name: "surrounding whitespace", raw: "\n  " + twoDiagnoses + "\n", want: 2},
		{name: "empty array", raw: `[]`, want: 0},
		{name: "not json", raw: `Here are the diagnoses:`, wantErr: true},
		{name: "object instead of array", raw: `{"potentialDiagnosis":"x"}`, wantErr: true},
		{name: "null", raw: `null`, wantErr: true},
		{name: "missing field", raw: `[{"potentialDiagnosis":"x","confidence":"High","rationale":"r"}]`, wantErr: true},
		{name: "empty label", raw: `[{"potentialDiagnosis":"","confidence":"High","rationale":"r","nextSteps":"n"}]`, wantErr: true},
		{name: "bad confidence", raw: `[{"potentialDiagnosis":"x","confidence":"Certain","rationale":"r","nextSteps":"n"}]`, wantErr: true},
		{name: "lowercase confidence", raw: `[{"potentialDiagnosis":"x","confidence":"high","rationale":"r","nextSteps":"n"}]`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			got, err := ParseDiagnoses(tt.raw)
			if tt.wantErr {
				require.Error(t, err)
				assert.Nil(t, got)
				return
			}
			require.NoError(t, err)
			assert.Len(t, got, tt.want)
		})
	}
}

func TestParseDiagnosesMapsFields(t *testing.T) {
	t.Parallel()

	got, err := ParseDiagnoses(twoDiagnoses)
	require.NoError(t, err)
	require.Len(t, got, 2)

	assert.Equal(t, "Community-acquired pneumonia", got[0].Label)
	assert.Equal(t, domain.ConfidenceHigh, got[0].Confidence)
	assert.Equal(t, "Fever and consolidation.", got[0].Rationale)
	assert.Equal(t, "Sputum culture.", got[0].NextSteps)
	assert.Empty(t, got[0].ManagementPlan)
	assert.NotEmpty(t, got[0].ID)
	assert.NotEqual(t, got[0].ID, got[1].ID)
}

func TestGenerateRequiresInput(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	d := NewDiagnosisCoordinator(proc)

	_, err := d.Generate(context.Background(), NewCase())
	require.ErrorIs(t, err, ErrNoCaseInput)
	assert.Zero(t, proc.diagCalls.Load())
}

func TestGenerateUsesPlaceholders(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.diagRaw = twoDiagnoses
	d := NewDiagnosisCoordinator(proc)

	_, err := d.Generate(context.Background(), caseWithNotes("cough"))
	require.NoError(t, err)
	require.Len(t, proc.prompts, 1)
	assert.Contains(t, proc.prompts[0], "cough")
	assert.Contains(t, proc.prompts[0], "No image analysis provided.")
}

func TestGenerateSuccess(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.diagRaw = twoDiagnoses
	d := NewDiagnosisCoordinator(proc)
	c := caseWithNotes("fever, productive cough")

	items, err := d.Generate(context.Background(), c)
	require.NoError(t, err)
	assert.Len(t, items, 2)

	snap := c.Snapshot()
	assert.Len(t, snap.Diagnosis.Items, 2)
	assert.False(t, snap.Diagnosis.Loading)
	assert.Empty(t, snap.Diagnosis.Error)
}

func TestGenerateUnexpectedFormat(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.diagRaw = `[{"potentialDiagnosis":"x"}]`
	d := NewDiagnosisCoordinator(proc)
	c := caseWithNotes("notes")

	_, err := d.Generate(context.Background(), c)
	var modelErr *ModelError
	require.ErrorAs(t, err, &modelErr)
	assert.Equal(t, "Failed to get differential diagnosis. The model may have returned an unexpected format.", modelErr.Message)

	snap := c.Snapshot()
	assert.Nil(t, snap.Diagnosis.Items)
	assert.Equal(t, modelErr.Message, snap.Diagnosis.Error)
	assert.False(t, snap.Diagnosis.Loading)
}

func TestGenerateModelError(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.diagErr = errors.New("503")
	d := NewDiagnosisCoordinator(proc)
	c := caseWithNotes("notes")

	_, err := d.Generate(context.Background(), c)
	require.Error(t, err)
	assert.Nil(t, diagnosesOf(c))
	assert.NotEmpty(t, c.Snapshot().Diagnosis.Error)
}

func TestRegenerateClearsBeforeRequest(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.diagRaw = twoDiagnoses
	d := NewDiagnosisCoordinator(proc)
	c := caseWithNotes("notes")

	_, err := d.Generate(context.Background(), c)
	require.NoError(t, err)
	_ = c.mutate(func() error {
		c.diag.items[0].ManagementPlan = "old plan"
		c.diag.plans[1] = PlanStatus{Error: "Failed to load guidelines."}
		return nil
	})

	gate := make(chan struct{})
	proc.mu.Lock()
	proc.diagGate = gate
	proc.mu.Unlock()

	done := make(chan error, 1)
	go func() {
		_, err := d.Generate(context.Background(), c)
		done <- err
	}()

	require.Eventually(t, func() bool { return c.Snapshot().Diagnosis.Loading }, time.Second, 5*time.Millisecond)
	snap := c.Snapshot()
	assert.Nil(t, snap.Diagnosis.Items, "no stale display while regenerating")
	assert.Empty(t, snap.Diagnosis.Plans)

	_, err = d.Generate(context.Background(), c)
	require.ErrorIs(t, err, ErrDiagnosisInFlight)

	close(gate)
	require.NoError(t, <-done)
	items := diagnosesOf(c)
	require.Len(t, items, 2)
	assert.Empty(t, items[0].ManagementPlan)
}

func TestEnterViewTriggersOnce(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.diagRaw = twoDiagnoses
	d := NewDiagnosisCoordinator(proc)
	c := caseWithNotes("notes")

	assert.True(t, d.EnterView(context.Background(), c))
	d.Wait()
	assert.False(t, d.EnterView(context.Background(), c))
	d.Wait()
	assert.EqualValues(t, 1, proc.diagCalls.Load())
}

func TestEnterViewDoesNotRetryAfterError(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.diagErr = errors.New("boom")
	d := NewDiagnosisCoordinator(proc)
	c := caseWithNotes("notes")

	assert.True(t, d.EnterView(context.Background(), c))
	d.Wait()
	assert.False(t, d.EnterView(context.Background(), c))
	assert.EqualValues(t, 1, proc.diagCalls.Load())

	proc.setDiagnosis(twoDiagnoses, nil)
	_, err := d.Generate(context.Background(), c)
	require.NoError(t, err, "manual regenerate is always available")
}

func TestEnterViewWithoutInput(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	d := NewDiagnosisCoordinator(proc)
	assert.False(t, d.EnterView(context.Background(), NewCase()))
	assert.Zero(t, proc.diagCalls.Load())
}

func TestEnterViewSurvivesCanceledRequest(t *testing.T) {
	t.Parallel()

	proc := newFakeProcessor()
	proc.diagRaw = twoDiagnoses
	d := NewDiagnosisCoordinator(proc)
	c := caseWithNotes("notes")

	ctx, cancel := context.WithCancel(context.Background())
	require.True(t, d.EnterView(ctx, c))
	cancel()
	d.Wait()
	assert.Len(t, diagnosesOf(c), 2)
}
