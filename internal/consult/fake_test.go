package consult

import (
	"context"
	"iter"
	"sync"
	"sync/atomic"

	"github.com/ashureev/medendorse/internal/agent"
	"github.com/ashureev/medendorse/internal/domain"
)

type fakeProcessor struct {
	mu sync.Mutex

	imageText string
	imageErr  error
	imageGate chan struct{}

	diagRaw   string
	diagErr   error
	diagGate  chan struct{}
	diagCalls atomic.Int32
	prompts   []string

	plans     map[string]*agent.PlanResult
	planErr   error
	planGates map[string]chan struct{}

	chat         *fakeChat
	startErr     error
	instructions []string
}

func newFakeProcessor() *fakeProcessor {
	return &fakeProcessor{
		plans:     make(map[string]*agent.PlanResult),
		planGates: make(map[string]chan struct{}),
		chat:      &fakeChat{},
	}
}

func wait(ctx context.Context, gate chan struct{}) error {
	if gate == nil {
		return nil
	}
	select {
	case <-gate:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (f *fakeProcessor) AnalyzeImage(ctx context.Context, _ agent.ImageRequest) (string, error) {
	if err := wait(ctx, f.imageGate); err != nil {
		return "", err
	}
	return f.imageText, f.imageErr
}

func (f *fakeProcessor) Diagnose(ctx context.Context, prompt string) (string, error) {
	f.diagCalls.Add(1)
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	gate := f.diagGate
	raw, err := f.diagRaw, f.diagErr
	f.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return "", err
	}
	return raw, err
}

func (f *fakeProcessor) ManagementPlan(ctx context.Context, prompt string) (*agent.PlanResult, error) {
	f.mu.Lock()
	var gate chan struct{}
	var plan *agent.PlanResult
	for label, g := range f.planGates {
		if prompt == PlanPrompt(label) {
			gate = g
		}
	}
	for label, p := range f.plans {
		if prompt == PlanPrompt(label) {
			plan = p
		}
	}
	err := f.planErr
	f.mu.Unlock()
	if err := wait(ctx, gate); err != nil {
		return nil, err
	}
	if err != nil {
		return nil, err
	}
	return plan, nil
}

func (f *fakeProcessor) StartChat(_ context.Context, systemInstruction string) (agent.ChatSession, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.startErr != nil {
		return nil, f.startErr
	}
	f.instructions = append(f.instructions, systemInstruction)
	return f.chat, nil
}

func (f *fakeProcessor) Close() {}

func (f *fakeProcessor) setDiagnosis(raw string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.diagRaw, f.diagErr = raw, err
}

type fakeChat struct {
	fragments []string
	err       error
	gate      chan struct{}
	sent      []string
}

func (c *fakeChat) SendStream(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		c.sent = append(c.sent, message)
		if err := wait(ctx, c.gate); err != nil {
			yield("", err)
			return
		}
		for _, frag := range c.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if c.err != nil {
			yield("", c.err)
		}
	}
}

type fakeRecognizer struct {
	mu        sync.Mutex
	starts    int
	stops     int
	langs     []string
	startErrs []error // consumed in order; nil entries succeed
}

func (r *fakeRecognizer) Start(lang string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.starts++
	r.langs = append(r.langs, lang)
	if len(r.startErrs) == 0 {
		return nil
	}
	err := r.startErrs[0]
	r.startErrs = r.startErrs[1:]
	return err
}

func (r *fakeRecognizer) Stop() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.stops++
	return nil
}

const twoDiagnoses = `[
  {"potentialDiagnosis":"Community-acquired pneumonia","confidence":"High","rationale":"Fever and consolidation.","nextSteps":"Sputum culture."},
  {"potentialDiagnosis":"Pulmonary embolism","confidence":"Low","rationale":"Tachycardia.","nextSteps":"D-dimer."}
]`

func caseWithNotes(notes string) *Case {
	c := NewCase()
	c.SetNotes(notes)
	return c
}

func diagnosesOf(c *Case) []domain.Diagnosis {
	return c.Snapshot().Diagnosis.Items
}
