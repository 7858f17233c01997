package consult

import (
	"context"
	"log/slog"
	"strings"

	"github.com/ashureev/medendorse/internal/agent"
	"github.com/ashureev/medendorse/internal/domain"
)

// ChatCoordinator runs the follow-up conversation for a case.
//
// The chat is seeded once with the case context at activation time. Later
// edits to notes, image analysis or diagnoses do not reach an existing chat.
type ChatCoordinator struct {
	proc agent.Processor
}

// NewChatCoordinator creates a coordinator backed by proc.
func NewChatCoordinator(proc agent.Processor) *ChatCoordinator {
	return &ChatCoordinator{proc: proc}
}

// Activate creates the chat session on first use and posts the greeting.
// It reports whether a session was created by this call.
func (ch *ChatCoordinator) Activate(ctx context.Context, c *Case) (bool, error) {
	var instruction string
	active := false
	c.read(func() {
		active = c.chat.session != nil
		instruction = ChatInstruction(c.input, c.diag.items)
	})
	if active {
		return false, nil
	}

	session, err := ch.proc.StartChat(agent.WithCaseID(ctx, c.ID), instruction)
	if err != nil {
		slog.Error("Failed to start chat", "case_id", c.ID, "error", err)
		return false, &ModelError{Message: ChatApology, Err: err}
	}

	created := false
	_ = c.mutate(func() error {
		if c.chat.session != nil {
			return nil
		}
		c.chat.session = session
		c.chat.messages = append(c.chat.messages, domain.ChatMessage{Role: domain.RoleModel, Content: ChatGreeting})
		created = true
		return nil
	})
	if created {
		slog.Info("Chat session started", "case_id", c.ID)
	}
	return created, nil
}

// Send runs one chat turn. The user message and an empty model message are
// appended immediately; each streamed fragment extends the model message
// and is passed to onFragment. Only one turn may run at a time.
func (ch *ChatCoordinator) Send(ctx context.Context, c *Case, message string, onFragment func(string)) (domain.ChatMessage, error) {
	if strings.TrimSpace(message) == "" {
		return domain.ChatMessage{}, ErrEmptyMessage
	}

	var session agent.ChatSession
	var idx int
	err := c.mutate(func() error {
		if c.chat.session == nil {
			return ErrChatNotActive
		}
		if c.chat.awaiting {
			return ErrTurnInFlight
		}
		c.chat.awaiting = true
		c.chat.messages = append(c.chat.messages,
			domain.ChatMessage{Role: domain.RoleUser, Content: message},
			domain.ChatMessage{Role: domain.RoleModel},
		)
		idx = len(c.chat.messages) - 1
		session = c.chat.session
		return nil
	})
	if err != nil {
		return domain.ChatMessage{}, err
	}

	var streamErr error
	for fragment, err := range session.SendStream(agent.WithCaseID(ctx, c.ID), message) {
		if err != nil {
			streamErr = err
			break
		}
		_ = c.mutate(func() error {
			c.chat.messages[idx].Content += fragment
			return nil
		})
		if onFragment != nil {
			onFragment(fragment)
		}
	}

	var reply domain.ChatMessage
	_ = c.mutate(func() error {
		c.chat.awaiting = false
		if streamErr != nil {
			if c.chat.messages[idx].Content == "" {
				c.chat.messages = c.chat.messages[:idx]
			}
			c.chat.messages = append(c.chat.messages, domain.ChatMessage{Role: domain.RoleModel, Content: ChatApology})
		}
		reply = c.chat.messages[len(c.chat.messages)-1]
		return nil
	})
	if streamErr != nil {
		slog.Error("Chat turn failed", "case_id", c.ID, "error", streamErr)
		return reply, &ModelError{Message: ChatApology, Err: streamErr}
	}
	return reply, nil
}

// Messages returns a copy of the chat log.
func (ch *ChatCoordinator) Messages(c *Case) []domain.ChatMessage {
	var out []domain.ChatMessage
	c.read(func() {
		out = append(out, c.chat.messages...)
	})
	return out
}
