package agent

import (
	"context"
	"errors"
	"iter"
	"log/slog"
	"strings"
	"time"
)

var errNilProcessor = errors.New("agent: processor is required")

// Service wraps a Processor with per-call deadlines, structured logging and
// the conversation audit log.
type Service struct {
	processor Processor
	timeout   time.Duration
	log       ConversationLogger
}

// NewServiceWithProcessor creates a new agent service around processor.
// A zero timeout leaves calls bounded only by the caller's context.
func NewServiceWithProcessor(processor Processor, timeout time.Duration, conversationLogger ConversationLogger) (*Service, error) {
	if processor == nil {
		return nil, errNilProcessor
	}
	if conversationLogger == nil {
		conversationLogger = noopConversationLogger{}
	}
	return &Service{
		processor: processor,
		timeout:   timeout,
		log:       conversationLogger,
	}, nil
}

func (s *Service) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, s.timeout)
}

// AnalyzeImage implements Processor.
func (s *Service) AnalyzeImage(ctx context.Context, req ImageRequest) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	caseID := CaseIDFromContext(ctx)
	start := time.Now()
	s.record(caseID, "image", "outbound", "image_analysis_request", req.Instruction, map[string]any{
		"mime_type": req.MIMEType,
		"bytes":     len(req.Data),
	})

	text, err := s.processor.AnalyzeImage(ctx, req)
	if err != nil {
		slog.Error("Image analysis failed", "case_id", caseID, "duration", time.Since(start), "error", err)
		s.recordError(caseID, "image", err)
		return "", err
	}

	slog.Info("Image analysis complete", "case_id", caseID, "duration", time.Since(start), "length", len(text))
	s.record(caseID, "image", "inbound", "image_analysis_response", text, nil)
	return text, nil
}

// Diagnose implements Processor.
func (s *Service) Diagnose(ctx context.Context, prompt string) (string, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	caseID := CaseIDFromContext(ctx)
	start := time.Now()
	s.record(caseID, "diagnosis", "outbound", "diagnosis_request", prompt, nil)

	raw, err := s.processor.Diagnose(ctx, prompt)
	if err != nil {
		slog.Error("Diagnosis request failed", "case_id", caseID, "duration", time.Since(start), "error", err)
		s.recordError(caseID, "diagnosis", err)
		return "", err
	}

	slog.Info("Diagnosis response received", "case_id", caseID, "duration", time.Since(start), "length", len(raw))
	s.record(caseID, "diagnosis", "inbound", "diagnosis_response", raw, nil)
	return raw, nil
}

// ManagementPlan implements Processor.
func (s *Service) ManagementPlan(ctx context.Context, prompt string) (*PlanResult, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	caseID := CaseIDFromContext(ctx)
	start := time.Now()
	s.record(caseID, "plan", "outbound", "plan_request", prompt, nil)

	plan, err := s.processor.ManagementPlan(ctx, prompt)
	if err != nil {
		slog.Error("Management plan request failed", "case_id", caseID, "duration", time.Since(start), "error", err)
		s.recordError(caseID, "plan", err)
		return nil, err
	}

	slog.Info("Management plan received", "case_id", caseID, "duration", time.Since(start), "sources", len(plan.Sources))
	s.record(caseID, "plan", "inbound", "plan_response", plan.Text, map[string]any{"sources": plan.Sources})
	return plan, nil
}

// StartChat implements Processor.
func (s *Service) StartChat(ctx context.Context, systemInstruction string) (ChatSession, error) {
	caseID := CaseIDFromContext(ctx)
	session, err := s.processor.StartChat(ctx, systemInstruction)
	if err != nil {
		slog.Error("Failed to start chat", "case_id", caseID, "error", err)
		return nil, err
	}
	s.record(caseID, "chat", "outbound", "chat_system_instruction", systemInstruction, nil)
	return &loggedChat{svc: s, inner: session, caseID: caseID}, nil
}

// CloseCase records the end of a case so its log file can be released.
func (s *Service) CloseCase(caseID string) {
	s.record(caseID, "case", "internal", EventCaseClosed, "", nil)
}

// Close releases resources.
func (s *Service) Close() {
	s.processor.Close()
	if err := s.log.Close(); err != nil {
		slog.Warn("failed to close conversation logger", "error", err)
	}
}

func (s *Service) record(caseID, channel, direction, eventType, content string, meta map[string]any) {
	s.log.Log(ConversationLogEvent{
		Timestamp:  time.Now().UTC().Format(time.RFC3339Nano),
		CaseID:     caseID,
		Channel:    channel,
		Direction:  direction,
		EventType:  eventType,
		ContentRaw: content,
		Content:    cleanForReadability(content),
		Meta:       meta,
	})
}

func (s *Service) recordError(caseID, channel string, err error) {
	s.record(caseID, channel, "inbound", channel+"_error", err.Error(), nil)
}

// loggedChat applies the service deadline to each turn and logs both sides.
type loggedChat struct {
	svc    *Service
	inner  ChatSession
	caseID string
}

func (c *loggedChat) SendStream(ctx context.Context, message string) iter.Seq2[string, error] {
	return func(yield func(string, error) bool) {
		ctx, cancel := c.svc.withTimeout(ctx)
		defer cancel()

		start := time.Now()
		c.svc.record(c.caseID, "chat", "outbound", "chat_user_message", message, nil)

		var content strings.Builder
		chunks := 0
		streamErr := ""
		defer func() {
			c.svc.record(c.caseID, "chat", "inbound", "chat_model_message", content.String(), map[string]any{
				"stream_chunks": chunks,
				"partial":       streamErr != "",
				"stream_error":  streamErr,
			})
		}()

		for fragment, err := range c.inner.SendStream(ctx, message) {
			if err != nil {
				streamErr = err.Error()
				slog.Error("Chat stream failed", "case_id", c.caseID, "chunks", chunks, "error", err)
				yield("", err)
				return
			}
			chunks++
			content.WriteString(fragment)
			if !yield(fragment, nil) {
				return
			}
		}
		slog.Info("Chat turn complete", "case_id", c.caseID, "chunks", chunks, "duration", time.Since(start))
	}
}
