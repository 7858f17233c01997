package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/ashureev/medendorse/internal/api"
	"github.com/ashureev/medendorse/internal/consult"
	"github.com/ashureev/medendorse/internal/domain"
	"github.com/ashureev/medendorse/internal/store"
)

var errInvalidArgs = errors.New("invalid arguments")

// Handlers holds dependencies for MCP tool handlers.
type Handlers struct {
	repo store.Repository
	svc  *consult.Service
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(repo store.Repository, svc *consult.Service) *Handlers {
	return &Handlers{repo: repo, svc: svc}
}

// CaseRequest identifies a case.
type CaseRequest struct {
	ID string `json:"id"`
}

// NotesRequest carries notes for create and set_notes.
type NotesRequest struct {
	ID    string `json:"id"`
	Notes string `json:"notes"`
}

// PlanRequest selects one diagnosis.
type PlanRequest struct {
	ID    string `json:"id"`
	Index *int   `json:"index"`
}

// ChatRequest carries one follow-up question.
type ChatRequest struct {
	ID      string `json:"id"`
	Message string `json:"message"`
}

// CaseSummary is one entry of case_list.
type CaseSummary struct {
	ID        string      `json:"id"`
	View      domain.View `json:"view"`
	HasInput  bool        `json:"has_input"`
	Diagnoses int         `json:"diagnoses"`
	CreatedAt time.Time   `json:"created_at"`
}

// HandleList handles case_list.
func (h *Handlers) HandleList(ctx context.Context, _ mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	cases, err := h.repo.List(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	out := make([]CaseSummary, 0, len(cases))
	for _, c := range cases {
		snap := c.Snapshot()
		out = append(out, CaseSummary{
			ID:        c.ID,
			View:      snap.View,
			HasInput:  snap.DiagnosisEnabled,
			Diagnoses: len(snap.Diagnosis.Items),
			CreatedAt: c.CreatedAt,
		})
	}
	return successResult(map[string]any{"cases": out})
}

// HandleCreate handles case_create.
func (h *Handlers) HandleCreate(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	args, err := decode[NotesRequest](req)
	if err != nil {
		return errorResult(errInvalidArgs), nil
	}
	c, err := h.repo.Create(ctx)
	if err != nil {
		return errorResult(err), nil
	}
	if args.Notes != "" {
		c.SetNotes(args.Notes)
	}
	return successResult(api.NewCaseView(c.Snapshot()))
}

// HandleGet handles case_get.
func (h *Handlers) HandleGet(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := h.loadCase(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	return successResult(api.NewCaseView(c.Snapshot()))
}

// HandleSetNotes handles case_set_notes.
func (h *Handlers) HandleSetNotes(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := h.loadCase(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	args, err := decode[NotesRequest](req)
	if err != nil {
		return errorResult(errInvalidArgs), nil
	}
	c.SetNotes(args.Notes)
	return successResult(api.NewCaseView(c.Snapshot()))
}

// HandleDiagnose handles case_diagnose.
func (h *Handlers) HandleDiagnose(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := h.loadCase(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	diagnoses, err := h.svc.Diagnosis.Generate(ctx, c)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(map[string]any{"diagnoses": diagnoses})
}

// HandlePlan handles case_management_plan.
func (h *Handlers) HandlePlan(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := h.loadCase(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	args, err := decode[PlanRequest](req)
	if err != nil || args.Index == nil {
		return errorResult(errInvalidArgs), nil
	}
	d, err := h.svc.Plan.Fetch(ctx, c, *args.Index)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(d)
}

// HandleChat handles case_chat. The reply is returned whole; MCP clients
// do not see the streamed fragments.
func (h *Handlers) HandleChat(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	c, errResult := h.loadCase(ctx, req)
	if errResult != nil {
		return errResult, nil
	}
	args, err := decode[ChatRequest](req)
	if err != nil {
		return errorResult(errInvalidArgs), nil
	}
	if strings.TrimSpace(args.Message) == "" {
		return errorResult(consult.ErrEmptyMessage), nil
	}
	if !c.HasInput() {
		return errorResult(consult.ErrNoCaseInput), nil
	}
	if _, err := h.svc.Chat.Activate(ctx, c); err != nil {
		return errorResult(err), nil
	}
	reply, err := h.svc.Chat.Send(ctx, c, args.Message, nil)
	if err != nil {
		return errorResult(err), nil
	}
	return successResult(reply)
}

func (h *Handlers) loadCase(ctx context.Context, req mcp.CallToolRequest) (*consult.Case, *mcp.CallToolResult) {
	args, err := decode[CaseRequest](req)
	if err != nil || args.ID == "" {
		return nil, errorResult(errInvalidArgs)
	}
	c, err := h.repo.Get(ctx, args.ID)
	if err != nil {
		return nil, errorResult(err)
	}
	c.Touch()
	return c, nil
}

// errorResult creates an MCP error result using the same status mapping as
// the HTTP API. Uses IsError so MCP clients recognize failures.
func errorResult(err error) *mcp.CallToolResult {
	status, msg := api.StatusFor(err)
	if errors.Is(err, errInvalidArgs) {
		status, msg = http.StatusBadRequest, err.Error()
	}
	payload := map[string]any{
		"error": map[string]any{
			"code":    errorCode(status),
			"message": msg,
			"status":  status,
		},
	}
	content, _ := json.Marshal(payload)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: string(content)}},
		IsError: true,
	}
}

func errorCode(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "INVALID_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "TOO_LARGE"
	case http.StatusBadGateway:
		return "MODEL_ERROR"
	default:
		return "INTERNAL"
	}
}

// successResult creates an MCP success result from any data.
func successResult(data any) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultJSON(data)
}
