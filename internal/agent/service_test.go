package agent

import (
	"context"
	"errors"
	"iter"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeProcessor struct {
	imageText string
	err       error
	block     bool
	fragments []string
	closed    bool
}

func (f *fakeProcessor) AnalyzeImage(ctx context.Context, _ ImageRequest) (string, error) {
	if f.block {
		<-ctx.Done()
		return "", ctx.Err()
	}
	return f.imageText, f.err
}

func (f *fakeProcessor) Diagnose(context.Context, string) (string, error) {
	return "[]", f.err
}

func (f *fakeProcessor) ManagementPlan(context.Context, string) (*PlanResult, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &PlanResult{Text: "plan"}, nil
}

func (f *fakeProcessor) StartChat(context.Context, string) (ChatSession, error) {
	return f, nil
}

func (f *fakeProcessor) SendStream(_ context.Context, _ string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, frag := range f.fragments {
			if !yield(frag, nil) {
				return
			}
		}
		if f.err != nil {
			yield("", f.err)
		}
	}
}

func (f *fakeProcessor) Close() { f.closed = true }

type recordingLogger struct {
	mu     sync.Mutex
	events []ConversationLogEvent
}

func (r *recordingLogger) Log(e ConversationLogEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recordingLogger) Close() error { return nil }

func (r *recordingLogger) types() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, 0, len(r.events))
	for _, e := range r.events {
		out = append(out, e.EventType)
	}
	return out
}

func TestNewServiceRequiresProcessor(t *testing.T) {
	t.Parallel()

	_, err := NewServiceWithProcessor(nil, 0, nil)
	require.ErrorIs(t, err, errNilProcessor)
}

func TestServiceAppliesTimeout(t *testing.T) {
	t.Parallel()

	svc, err := NewServiceWithProcessor(&fakeProcessor{block: true}, 20*time.Millisecond, nil)
	require.NoError(t, err)

	_, err = svc.AnalyzeImage(context.Background(), ImageRequest{})
	require.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestServiceLogsCaseScopedEvents(t *testing.T) {
	t.Parallel()

	rec := &recordingLogger{}
	svc, err := NewServiceWithProcessor(&fakeProcessor{imageText: "finding"}, 0, rec)
	require.NoError(t, err)

	ctx := WithCaseID(context.Background(), "case-1")
	text, err := svc.AnalyzeImage(ctx, ImageRequest{Instruction: "describe"})
	require.NoError(t, err)
	assert.Equal(t, "finding", text)

	assert.Equal(t, []string{"image_analysis_request", "image_analysis_response"}, rec.types())
	for _, e := range rec.events {
		assert.Equal(t, "case-1", e.CaseID)
	}
}

func TestServiceLogsErrors(t *testing.T) {
	t.Parallel()

	rec := &recordingLogger{}
	boom := errors.New("boom")
	svc, err := NewServiceWithProcessor(&fakeProcessor{err: boom}, 0, rec)
	require.NoError(t, err)

	_, err = svc.ManagementPlan(context.Background(), "p")
	require.ErrorIs(t, err, boom)
	assert.Equal(t, []string{"plan_request", "plan_error"}, rec.types())
}

func TestServiceCloseCaseRecordsEvent(t *testing.T) {
	t.Parallel()

	rec := &recordingLogger{}
	svc, err := NewServiceWithProcessor(&fakeProcessor{}, 0, rec)
	require.NoError(t, err)

	svc.CloseCase("case-9")
	require.Len(t, rec.events, 1)
	assert.Equal(t, EventCaseClosed, rec.events[0].EventType)
	assert.Equal(t, "case-9", rec.events[0].CaseID)
}

func TestServiceChatStreamsAndRecordsTurn(t *testing.T) {
	t.Parallel()

	rec := &recordingLogger{}
	svc, err := NewServiceWithProcessor(&fakeProcessor{fragments: []string{"Hel", "lo"}}, time.Second, rec)
	require.NoError(t, err)

	chat, err := svc.StartChat(WithCaseID(context.Background(), "case-2"), "system")
	require.NoError(t, err)

	var got []string
	for frag, err := range chat.SendStream(context.Background(), "hi") {
		require.NoError(t, err)
		got = append(got, frag)
	}
	assert.Equal(t, []string{"Hel", "lo"}, got)

	require.Equal(t, []string{"chat_system_instruction", "chat_user_message", "chat_model_message"}, rec.types())
	last := rec.events[2]
	assert.Equal(t, "Hello", last.ContentRaw)
	assert.Equal(t, 2, last.Meta["stream_chunks"])
	assert.Equal(t, false, last.Meta["partial"])
}

func TestServiceChatStreamErrorMarksPartial(t *testing.T) {
	t.Parallel()

	rec := &recordingLogger{}
	svc, err := NewServiceWithProcessor(&fakeProcessor{fragments: []string{"Hel"}, err: errors.New("reset")}, 0, rec)
	require.NoError(t, err)

	chat, err := svc.StartChat(context.Background(), "system")
	require.NoError(t, err)

	var streamErr error
	for _, err := range chat.SendStream(context.Background(), "hi") {
		if err != nil {
			streamErr = err
		}
	}
	require.Error(t, streamErr)

	last := rec.events[len(rec.events)-1]
	assert.Equal(t, "Hel", last.ContentRaw)
	assert.Equal(t, true, last.Meta["partial"])
}

func TestServiceCloseClosesProcessor(t *testing.T) {
	t.Parallel()

	p := &fakeProcessor{}
	svc, err := NewServiceWithProcessor(p, 0, nil)
	require.NoError(t, err)
	svc.Close()
	assert.True(t, p.closed)
}
