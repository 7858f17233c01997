package api

import (
	"context"
	"iter"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/medendorse/internal/agent"
	"github.com/ashureev/medendorse/internal/config"
	"github.com/ashureev/medendorse/internal/consult"
	"github.com/ashureev/medendorse/internal/store"
)

const twoDiagnoses = `[
 {"potentialDiagnosis":"Influenza","confidence":"High","rationale":"Fever and myalgia.","nextSteps":"Rapid flu test."},
 {"potentialDiagnosis":"Common cold","confidence":"Low","rationale":"Mild symptoms.","nextSteps":"Supportive care."}
]`

type stubProcessor struct {
	imageText string
	diagRaw   string
	plan      *agent.PlanResult
	planErr   error
	fragments []string
	chatErr   error
}

func (s *stubProcessor) AnalyzeImage(context.Context, agent.ImageRequest) (string, error) {
	return s.imageText, nil
}

func (s *stubProcessor) Diagnose(context.Context, string) (string, error) {
	return s.diagRaw, nil
}

func (s *stubProcessor) ManagementPlan(context.Context, string) (*agent.PlanResult, error) {
	return s.plan, s.planErr
}

func (s *stubProcessor) StartChat(context.Context, string) (agent.ChatSession, error) {
	return s, nil
}

func (s *stubProcessor) SendStream(context.Context, string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		for _, f := range s.fragments {
			if !yield(f, nil) {
				return
			}
		}
		if s.chatErr != nil {
			yield("", s.chatErr)
		}
	}
}

func (s *stubProcessor) Close() {}

func testConfig() *config.Config {
	return &config.Config{
		Port:          "0",
		CaseTTL:       time.Hour,
		MaxImageBytes: 1 << 20,
		SpeechLang:    "en-US",
		SSE: config.SSEConfig{
			KeepaliveInterval:  time.Hour,
			RetryDelay:         time.Second,
			MaxRequestBodySize: 1 << 16,
		},
	}
}

type testEnv struct {
	srv  *httptest.Server
	repo *store.MemoryStore
	svc  *consult.Service
}

func newTestEnv(t *testing.T, proc agent.Processor, limiter *RateLimiter) *testEnv {
	t.Helper()

	cfg := testConfig()
	repo := store.NewMemory()
	svc := consult.NewService(proc, consult.Options{MaxImageBytes: cfg.MaxImageBytes, SpeechLang: cfg.SpeechLang})

	r := chi.NewRouter()
	NewHealthHandler(repo, nil).RegisterHealth(r)
	r.Route("/api", func(r chi.Router) {
		NewCaseHandler(repo, svc, cfg, limiter).RegisterRoutes(r)
	})

	srv := httptest.NewServer(r)
	t.Cleanup(func() {
		srv.Close()
		svc.Wait()
		_ = repo.Close()
	})
	return &testEnv{srv: srv, repo: repo, svc: svc}
}
