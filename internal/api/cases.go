package api

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/ashureev/medendorse/internal/config"
	"github.com/ashureev/medendorse/internal/consult"
	"github.com/ashureev/medendorse/internal/domain"
	"github.com/ashureev/medendorse/internal/store"
)

// multipartOverhead is the allowance on top of the image limit for form framing.
const multipartOverhead = 1 << 20

// CaseHandler exposes the case coordinators over HTTP.
type CaseHandler struct {
	repo    store.Repository
	svc     *consult.Service
	cfg     *config.Config
	limiter *RateLimiter
}

// NewCaseHandler creates a new case handler. limiter may be nil.
func NewCaseHandler(repo store.Repository, svc *consult.Service, cfg *config.Config, limiter *RateLimiter) *CaseHandler {
	return &CaseHandler{repo: repo, svc: svc, cfg: cfg, limiter: limiter}
}

// RegisterRoutes registers case routes.
func (h *CaseHandler) RegisterRoutes(r chi.Router) {
	r.Get("/config", h.GetConfig)
	r.Route("/cases", func(r chi.Router) {
		r.Post("/", h.CreateCase)
		r.Get("/", h.ListCases)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.GetCase)
			r.Delete("/", h.DeleteCase)
			r.Get("/stream", h.StreamCase)
			r.Put("/notes", h.SetNotes)
			r.Post("/view", h.Navigate)
			r.Post("/image", h.UploadImage)

			r.Group(func(r chi.Router) {
				if h.limiter != nil {
					r.Use(h.limiter.Middleware)
				}
				r.Post("/image/analyze", h.AnalyzeImage)
				r.Post("/diagnoses", h.GenerateDiagnoses)
				r.Post("/diagnoses/{index}/plan", h.FetchPlan)
				r.Post("/chat/activate", h.ActivateChat)
				r.Post("/chat/messages", h.SendChat)
			})
		})
	})
}

// GetConfig returns the settings the browser client needs.
func (h *CaseHandler) GetConfig(w http.ResponseWriter, _ *http.Request) {
	JSON(w, http.StatusOK, map[string]any{
		"speechLang":    h.cfg.SpeechLang,
		"maxImageBytes": h.cfg.MaxImageBytes,
		"views":         []domain.View{domain.ViewDictation, domain.ViewImage, domain.ViewDiagnosis, domain.ViewChat},
	})
}

// CreateCase starts an empty case on the dictation view.
func (h *CaseHandler) CreateCase(w http.ResponseWriter, r *http.Request) {
	c, err := h.repo.Create(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Case created", "case_id", c.ID)
	JSON(w, http.StatusCreated, NewCaseView(c.Snapshot()))
}

// ListCases returns a short summary of every open case.
func (h *CaseHandler) ListCases(w http.ResponseWriter, r *http.Request) {
	cases, err := h.repo.List(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	type summary struct {
		ID        string      `json:"id"`
		View      domain.View `json:"view"`
		CreatedAt time.Time   `json:"createdAt"`
		LastSeen  time.Time   `json:"lastSeen"`
	}
	out := make([]summary, 0, len(cases))
	for _, c := range cases {
		snap := c.Snapshot()
		out = append(out, summary{ID: c.ID, View: snap.View, CreatedAt: c.CreatedAt, LastSeen: c.LastSeen()})
	}
	JSON(w, http.StatusOK, out)
}

// GetCase returns the full case state.
func (h *CaseHandler) GetCase(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	JSON(w, http.StatusOK, NewCaseView(c.Snapshot()))
}

// DeleteCase discards a case and everything attached to it.
func (h *CaseHandler) DeleteCase(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.repo.Delete(r.Context(), id); err != nil {
		writeError(w, err)
		return
	}
	slog.Info("Case deleted", "case_id", id)
	w.WriteHeader(http.StatusNoContent)
}

// SetNotes replaces the free-text notes.
func (h *CaseHandler) SetNotes(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	var req struct {
		Notes string `json:"notes"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	c.SetNotes(req.Notes)
	JSON(w, http.StatusOK, NewCaseView(c.Snapshot()))
}

// Navigate switches the active view. A disabled view is reported with
// changed=false rather than an error.
func (h *CaseHandler) Navigate(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	var req struct {
		View domain.View `json:"view"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	changed, err := h.svc.View.Navigate(context.WithoutCancel(r.Context()), c, req.View)
	if err != nil && !changed {
		writeError(w, err)
		return
	}
	if err != nil {
		// The view switched but chat activation failed; the client sees the
		// apology through the case state.
		slog.Warn("View entry hook failed", "case_id", c.ID, "view", req.View, "error", err)
	}
	JSON(w, http.StatusOK, map[string]any{
		"changed": changed,
		"case":    NewCaseView(c.Snapshot()),
	})
}

// UploadImage accepts a multipart "image" field and stores it as the
// pending image with a preview.
func (h *CaseHandler) UploadImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.MaxImageBytes+multipartOverhead)
	file, header, err := r.FormFile("image")
	if err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			writeError(w, consult.ErrImageTooLarge)
			return
		}
		Error(w, http.StatusBadRequest, "image field is required")
		return
	}
	defer func() { _ = file.Close() }()

	data, err := io.ReadAll(io.LimitReader(file, h.cfg.MaxImageBytes+1))
	if err != nil {
		Error(w, http.StatusBadRequest, "failed to read image")
		return
	}
	if _, err := h.svc.Image.Submit(c, header.Filename, data); err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, NewCaseView(c.Snapshot()))
}

// AnalyzeImage submits the pending image for analysis.
func (h *CaseHandler) AnalyzeImage(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.Image.Analyze(context.WithoutCancel(r.Context()), c); err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, NewCaseView(c.Snapshot()))
}

// GenerateDiagnoses replaces the differential diagnosis.
func (h *CaseHandler) GenerateDiagnoses(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	if _, err := h.svc.Diagnosis.Generate(context.WithoutCancel(r.Context()), c); err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, NewCaseView(c.Snapshot()))
}

// FetchPlan loads the management plan for one diagnosis.
func (h *CaseHandler) FetchPlan(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		Error(w, http.StatusBadRequest, "invalid diagnosis index")
		return
	}
	d, err := h.svc.Plan.Fetch(context.WithoutCancel(r.Context()), c, index)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, NewDiagnosisItem(d))
}

// ActivateChat seeds the chat session if it does not exist yet.
func (h *CaseHandler) ActivateChat(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	created, err := h.svc.Chat.Activate(context.WithoutCancel(r.Context()), c)
	if err != nil {
		writeError(w, err)
		return
	}
	JSON(w, http.StatusOK, map[string]any{
		"created":  created,
		"messages": h.svc.Chat.Messages(c),
	})
}

// SendChat runs one chat turn and streams the reply as SSE "message"
// events followed by "done" (or "error" with the apology text).
func (h *CaseHandler) SendChat(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	var req struct {
		Message string `json:"message"`
	}
	if !h.decode(w, r, &req) {
		return
	}
	sse, ok := newSSEWriter(w, h.cfg.SSE.RetryDelay.Milliseconds())
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	// The turn finishes even if the client goes away; the log keeps the reply.
	ctx := context.WithoutCancel(r.Context())
	reply, err := h.svc.Chat.Send(ctx, c, req.Message, func(fragment string) {
		if err := sse.Send("message", map[string]string{"text": fragment}); err != nil {
			slog.Debug("Chat client gone", "case_id", c.ID, "error", err)
		}
	})
	if err != nil {
		var modelErr *consult.ModelError
		if !errors.As(err, &modelErr) && !sse.Started() {
			writeError(w, err)
			return
		}
		status, msg := StatusFor(err)
		_ = sse.Send("error", map[string]any{"status": status, "message": msg, "reply": reply})
		return
	}
	_ = sse.Send("done", reply)
}

// StreamCase pushes a "snapshot" event whenever the case changes. The
// event id is the case version. The stream ends with "closed" when the
// case is deleted or expires.
func (h *CaseHandler) StreamCase(w http.ResponseWriter, r *http.Request) {
	c, ok := h.loadCase(w, r)
	if !ok {
		return
	}
	sse, ok := newSSEWriter(w, h.cfg.SSE.RetryDelay.Milliseconds())
	if !ok {
		Error(w, http.StatusInternalServerError, "streaming not supported")
		return
	}

	updates, cancel := c.Subscribe()
	defer cancel()

	send := func() error {
		snap := c.Snapshot()
		return sse.SendWithID(strconv.FormatUint(snap.Version, 10), "snapshot", NewCaseView(snap))
	}
	if err := send(); err != nil {
		return
	}

	ticker := time.NewTicker(h.cfg.SSE.KeepaliveInterval)
	defer ticker.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case _, open := <-updates:
			if !open {
				_ = sse.Send("closed", map[string]string{"id": c.ID})
				return
			}
			if err := send(); err != nil {
				return
			}
		case <-ticker.C:
			c.Touch()
			if err := sse.Send("ping", map[string]string{"status": "alive"}); err != nil {
				return
			}
		}
	}
}

func (h *CaseHandler) loadCase(w http.ResponseWriter, r *http.Request) (*consult.Case, bool) {
	c, err := h.repo.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, err)
		return nil, false
	}
	c.Touch()
	return c, true
}

func (h *CaseHandler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, h.cfg.SSE.MaxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		Error(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}
