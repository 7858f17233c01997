// Package consult implements the clinical case coordinators: speech capture,
// image submission, differential diagnosis, management plans, chat and view
// routing. Every coordinator operates on an explicit *Case.
package consult

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/ashureev/medendorse/internal/agent"
	"github.com/ashureev/medendorse/internal/domain"
	"github.com/oklog/ulid/v2"
)

// PendingImage is an uploaded image awaiting or holding analysis.
type PendingImage struct {
	FileName       string
	MIMEType       string
	Data           []byte
	PreviewDataURL string
}

// PlanStatus tracks one diagnosis entry's management plan request.
type PlanStatus struct {
	Loading bool   `json:"loading"`
	Error   string `json:"error,omitempty"`
}

type imageState struct {
	pending *PendingImage
	loading bool
	err     string
	seq     uint64 // bumped on every upload
}

type diagnosisState struct {
	items      []domain.Diagnosis // nil until a generation succeeds
	loading    bool
	err        string
	generation uint64
	plans      map[int]PlanStatus
}

type chatState struct {
	session  agent.ChatSession
	messages []domain.ChatMessage
	awaiting bool
}

type speechState struct {
	state      SpeechState
	supported  bool
	transcript []string
	interim    string
	err        string
}

// Case is the complete state of one clinician workspace.
// All fields are guarded by mu; model calls never run while it is held.
type Case struct {
	ID        string
	CreatedAt time.Time

	mu       sync.Mutex
	version  uint64
	lastSeen time.Time
	subs     map[chan struct{}]struct{}
	closed   bool

	input  domain.CaseContext
	view   domain.View
	image  imageState
	diag   diagnosisState
	chat   chatState
	speech speechState
}

// NewCase creates an empty case on the dictation view.
func NewCase() *Case {
	now := time.Now()
	return &Case{
		ID:        newID(),
		CreatedAt: now,
		lastSeen:  now,
		subs:      make(map[chan struct{}]struct{}),
		view:      domain.ViewDictation,
		diag:      diagnosisState{plans: make(map[int]PlanStatus)},
		speech:    speechState{state: SpeechIdle, supported: true},
	}
}

func newID() string {
	entropy := ulid.Monotonic(rand.Reader, 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}

// mutate runs fn under the case lock. When fn returns nil the version is
// bumped and subscribers are notified.
func (c *Case) mutate(fn func() error) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := fn(); err != nil {
		return err
	}
	c.version++
	c.lastSeen = time.Now()
	c.notifyLocked()
	return nil
}

func (c *Case) read(fn func()) {
	c.mu.Lock()
	defer c.mu.Unlock()
	fn()
}

func (c *Case) notifyLocked() {
	for ch := range c.subs {
		select {
		case ch <- struct{}{}:
		default:
			// a pending notification already covers this change
		}
	}
}

// Subscribe returns a channel signalled after every change. The channel is
// closed when the case is closed or cancel is called.
func (c *Case) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	c.subs[ch] = struct{}{}
	c.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			c.mu.Lock()
			defer c.mu.Unlock()
			if _, ok := c.subs[ch]; ok {
				delete(c.subs, ch)
				close(ch)
			}
		})
	}
	return ch, cancel
}

// Close ends all subscriptions. Later mutations are still applied but no
// longer observed.
func (c *Case) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	for ch := range c.subs {
		delete(c.subs, ch)
		close(ch)
	}
}

// Version returns the change counter.
func (c *Case) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}

// Touch records client activity without changing state.
func (c *Case) Touch() {
	c.mu.Lock()
	c.lastSeen = time.Now()
	c.mu.Unlock()
}

// LastSeen returns the time of the last mutation or Touch.
func (c *Case) LastSeen() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSeen
}

// Context returns a copy of the current notes and image analysis.
func (c *Case) Context() domain.CaseContext {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// HasInput reports whether the case has notes or image analysis.
func (c *Case) HasInput() bool {
	return c.Context().HasInput()
}

// SetNotes replaces the notes with clinician-typed text.
func (c *Case) SetNotes(notes string) {
	_ = c.mutate(func() error {
		c.input.Notes = notes
		return nil
	})
}
