package agent

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"
)

// ConversationLogger records model traffic for later review.
type ConversationLogger interface {
	Log(event ConversationLogEvent)
	Close() error
}

// ConversationLogConfig controls the NDJSON conversation log.
type ConversationLogConfig struct {
	Enabled   bool
	Dir       string
	QueueSize int
}

// ConversationLogEvent is one line of a case's conversation log.
type ConversationLogEvent struct {
	Timestamp  string         `json:"ts"`
	CaseID     string         `json:"case_id"`
	Channel    string         `json:"channel"`
	Direction  string         `json:"direction"`
	EventType  string         `json:"event_type"`
	ContentRaw string         `json:"content_raw"`
	Content    string         `json:"content"`
	Meta       map[string]any `json:"meta,omitempty"`
}

const unscopedCaseID = "_unscoped"

// EventCaseClosed is the last event of a case; its log file is closed after it.
const EventCaseClosed = "case_closed"

var (
	errLoggerClosed   = errors.New("conversation logger closed")
	controlCharsRe    = regexp.MustCompile(`[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]`)
	excessNewlinesRe  = regexp.MustCompile(`\n{3,}`)
	trailingSpaceRe   = regexp.MustCompile(`[ \t]+\n`)
	unsafeFileCharsRe = regexp.MustCompile(`[^A-Za-z0-9_-]`)
)

type noopConversationLogger struct{}

func (noopConversationLogger) Log(ConversationLogEvent) {}
func (noopConversationLogger) Close() error             { return nil }

type fileConversationLogger struct {
	dir    string
	queue  chan ConversationLogEvent
	files  map[string]*os.File
	logger *slog.Logger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup
}

// NewConversationLogger returns a file-backed logger writing one NDJSON file per case,
// or a no-op logger when disabled.
func NewConversationLogger(cfg ConversationLogConfig, logger *slog.Logger) (ConversationLogger, error) {
	if !cfg.Enabled {
		return noopConversationLogger{}, nil
	}
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 1000
	}
	if err := os.MkdirAll(cfg.Dir, 0o750); err != nil {
		return nil, fmt.Errorf("failed to create conversation log dir: %w", err)
	}

	l := &fileConversationLogger{
		dir:    cfg.Dir,
		queue:  make(chan ConversationLogEvent, cfg.QueueSize),
		files:  make(map[string]*os.File),
		logger: logger,
	}
	l.wg.Add(1)
	go l.run()

	logger.Info("Conversation logging enabled", "dir", cfg.Dir)
	return l, nil
}

// Log enqueues an event. Events are dropped when the queue is full.
func (l *fileConversationLogger) Log(event ConversationLogEvent) {
	if event.Content == "" {
		event.Content = cleanForReadability(event.ContentRaw)
	}

	l.mu.RLock()
	defer l.mu.RUnlock()
	if l.closed {
		return
	}
	select {
	case l.queue <- event:
	default:
		l.logger.Warn("conversation log queue full, dropping event",
			"case_id", event.CaseID,
			"event_type", event.EventType,
		)
	}
}

// Close drains pending events and closes all open files.
func (l *fileConversationLogger) Close() error {
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return errLoggerClosed
	}
	l.closed = true
	close(l.queue)
	l.mu.Unlock()

	l.wg.Wait()

	var errs []error
	for _, f := range l.files {
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (l *fileConversationLogger) run() {
	defer l.wg.Done()
	for event := range l.queue {
		if err := l.write(event); err != nil {
			l.logger.Warn("failed to write conversation log event", "case_id", event.CaseID, "error", err)
		}
	}
}

func (l *fileConversationLogger) write(event ConversationLogEvent) error {
	f, err := l.fileFor(event.CaseID)
	if err != nil {
		return err
	}
	line, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	line = append(line, '\n')
	if _, err := f.Write(line); err != nil {
		return fmt.Errorf("write event: %w", err)
	}
	if event.EventType == EventCaseClosed {
		delete(l.files, l.fileKey(event.CaseID))
		if err := f.Close(); err != nil {
			return fmt.Errorf("close case log: %w", err)
		}
	}
	return nil
}

func (l *fileConversationLogger) fileKey(caseID string) string {
	name := unsafeFileCharsRe.ReplaceAllString(caseID, "_")
	if name == "" {
		name = unscopedCaseID
	}
	return name
}

func (l *fileConversationLogger) fileFor(caseID string) (*os.File, error) {
	name := l.fileKey(caseID)
	if f, ok := l.files[name]; ok {
		return f, nil
	}
	path := filepath.Join(l.dir, name+".ndjson")
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	l.files[name] = f
	return f, nil
}

// cleanForReadability normalizes model text for human review of the log.
func cleanForReadability(raw string) string {
	s := strings.ReplaceAll(raw, "\r\n", "\n")
	s = strings.ReplaceAll(s, "\r", "\n")
	s = controlCharsRe.ReplaceAllString(s, "")
	s = trailingSpaceRe.ReplaceAllString(s, "\n")
	s = excessNewlinesRe.ReplaceAllString(s, "\n\n")
	return strings.TrimSpace(s)
}
