package dictation

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"sync"

	"github.com/ashureev/medendorse/internal/consult"
	"github.com/ashureev/medendorse/internal/store"
	"github.com/coder/websocket"
	"github.com/go-chi/chi/v5"
)

// Frame types sent by the browser.
const (
	frameCapability     = "capability"
	frameStartListening = "start_listening"
	frameStopListening  = "stop_listening"
	frameResult         = "result"
	frameError          = "error"
	frameEnd            = "end"
	framePing           = "ping"
)

// inboundFrame is a browser-to-server message.
type inboundFrame struct {
	Type        string            `json:"type"`
	Supported   *bool             `json:"supported,omitempty"`
	ResultIndex int               `json:"resultIndex,omitempty"`
	Results     []consult.Segment `json:"results,omitempty"`
	Error       string            `json:"error,omitempty"`
}

// controlFrame asks the browser to start or stop its recognizer.
type controlFrame struct {
	Type           string `json:"type"`
	Lang           string `json:"lang,omitempty"`
	Continuous     bool   `json:"continuous,omitempty"`
	InterimResults bool   `json:"interimResults,omitempty"`
}

// stateFrame mirrors the case's dictation state and notes to the browser.
type stateFrame struct {
	Type      string                    `json:"type"`
	Notes     string                    `json:"notes"`
	Dictation consult.DictationSnapshot `json:"dictation"`
}

// wsRecognizer implements consult.Recognizer by sending control frames to
// the browser's speech facility.
type wsRecognizer struct {
	conn *websocket.Conn
	ctx  context.Context
}

func (r *wsRecognizer) Start(lang string) error {
	return writeJSON(r.ctx, r.conn, controlFrame{
		Type:           "start",
		Lang:           lang,
		Continuous:     true,
		InterimResults: true,
	})
}

func (r *wsRecognizer) Stop() error {
	return writeJSON(r.ctx, r.conn, controlFrame{Type: "stop"})
}

// WebSocketHandler serves the dictation relay for one case per connection.
type WebSocketHandler struct {
	repo          store.Repository
	svc           *consult.Service
	sm            *SessionManager
	allowedOrigin string
	isDev         bool
}

// NewWebSocketHandler creates a new WebSocket handler.
func NewWebSocketHandler(repo store.Repository, svc *consult.Service, sm *SessionManager, allowedOrigin string, isDev bool) *WebSocketHandler {
	return &WebSocketHandler{
		repo:          repo,
		svc:           svc,
		sm:            sm,
		allowedOrigin: allowedOrigin,
		isDev:         isDev,
	}
}

// ServeHTTP implements http.Handler for WebSocket upgrade.
func (h *WebSocketHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	caseID := chi.URLParam(r, "id")
	slog.Info("Dictation connection request", "case_id", caseID, "ip", r.RemoteAddr)

	c, err := h.repo.Get(r.Context(), caseID)
	if err != nil {
		http.Error(w, `{"error": "case not found"}`, http.StatusNotFound)
		return
	}
	c.Touch()

	if !h.checkOrigin(r) {
		http.Error(w, "origin not allowed", http.StatusForbidden)
		return
	}

	ws, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		OriginPatterns: []string{"*"},
	})
	if err != nil {
		slog.Error("Failed to accept WebSocket", "error", err, "case_id", caseID)
		return
	}
	defer func() {
		if closeErr := ws.Close(websocket.StatusNormalClosure, "session ended"); closeErr != nil {
			slog.Debug("Failed to close websocket", "error", closeErr, "case_id", caseID)
		}
	}()

	h.sm.Register(caseID, ws)
	defer h.sm.Unregister(caseID, ws)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	capture := h.svc.NewCapture(c, &wsRecognizer{conn: ws, ctx: ctx})
	defer func() {
		// The browser is gone; leave the case idle rather than listening.
		if err := capture.Stop(); err != nil {
			slog.Debug("Dictation stop on disconnect failed", "case_id", caseID, "error", err)
		}
	}()

	var wg sync.WaitGroup
	wg.Add(2)

	// Input loop: browser events -> capture.
	go func() {
		defer wg.Done()
		defer cancel()
		h.inputLoop(ctx, ws, capture, caseID)
	}()

	// State loop: case changes -> browser.
	go func() {
		defer wg.Done()
		defer cancel()
		h.stateLoop(ctx, ws, c)
	}()

	wg.Wait()
	slog.Info("Dictation session ended", "case_id", caseID)
}

func (h *WebSocketHandler) checkOrigin(r *http.Request) bool {
	if h.isDev {
		return true
	}
	origin := r.Header.Get("Origin")
	if origin == "" || h.allowedOrigin == "*" {
		return true
	}
	if origin == h.allowedOrigin {
		return true
	}
	slog.Warn("WebSocket origin rejected", "origin", origin, "allowed", h.allowedOrigin)
	return false
}

func (h *WebSocketHandler) inputLoop(ctx context.Context, ws *websocket.Conn, capture *consult.Capture, caseID string) {
	slog.Debug("Starting dictation input loop", "case_id", caseID)
	for {
		_, message, err := ws.Read(ctx)
		if err != nil {
			if websocket.CloseStatus(err) != -1 {
				slog.Debug("WebSocket closed by client", "case_id", caseID)
			} else if !errors.Is(err, context.Canceled) {
				slog.Warn("WebSocket read error", "error", err, "case_id", caseID)
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(message, &frame); err != nil {
			slog.Debug("Ignoring malformed dictation frame", "case_id", caseID, "error", err)
			continue
		}

		switch frame.Type {
		case frameCapability:
			capture.SetSupported(frame.Supported != nil && *frame.Supported)
		case frameStartListening:
			if err := capture.Start(); err != nil {
				slog.Info("Dictation start refused", "case_id", caseID, "error", err)
			}
		case frameStopListening:
			if err := capture.Stop(); err != nil {
				slog.Debug("Dictation stop failed", "case_id", caseID, "error", err)
			}
		case frameResult:
			capture.HandleResult(frame.ResultIndex, frame.Results)
		case frameError:
			capture.HandleError(frame.Error)
		case frameEnd:
			capture.HandleEnd()
		case framePing:
			if err := writeJSON(ctx, ws, map[string]string{"type": "pong"}); err != nil {
				slog.Debug("Failed to send pong", "error", err)
			}
		default:
			slog.Debug("Unknown dictation frame", "case_id", caseID, "type", frame.Type)
		}
	}
}

func (h *WebSocketHandler) stateLoop(ctx context.Context, ws *websocket.Conn, c *consult.Case) {
	changes, unsubscribe := c.Subscribe()
	defer unsubscribe()

	var last *stateFrame
	send := func() error {
		snap := c.Snapshot()
		frame := stateFrame{Type: "state", Notes: snap.Notes, Dictation: snap.Dictation}
		if last != nil && *last == frame {
			return nil
		}
		last = &frame
		return writeJSON(ctx, ws, frame)
	}

	if err := send(); err != nil {
		return
	}
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-changes:
			if !ok {
				// case deleted or expired
				_ = ws.Close(websocket.StatusGoingAway, "case closed")
				return
			}
			if err := send(); err != nil {
				slog.Debug("Failed to send dictation state", "case_id", c.ID, "error", err)
				return
			}
		}
	}
}

func writeJSON(ctx context.Context, ws *websocket.Conn, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return ws.Write(ctx, websocket.MessageText, data)
}
