package consult

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// SpeechState is the dictation state machine position.
type SpeechState string

const (
	SpeechIdle       SpeechState = "idle"
	SpeechListening  SpeechState = "listening"
	SpeechRestarting SpeechState = "restarting"
)

// Recognizer is the platform speech-recognition facility. Implementations
// deliver recognition events back through Capture's Handle methods.
type Recognizer interface {
	Start(lang string) error
	Stop() error
}

var errNotListening = errors.New("dictation is idle")

// Segment is one recognition result.
type Segment struct {
	Transcript string `json:"transcript"`
	IsFinal    bool   `json:"isFinal"`
}

// Capture drives one case's dictation through a Recognizer. Finalized
// fragments are committed to the case notes.
type Capture struct {
	c    *Case
	rec  Recognizer
	lang string
}

// NewCapture binds a recognizer to a case. An empty lang defaults to en-US.
func NewCapture(c *Case, rec Recognizer, lang string) *Capture {
	if lang == "" {
		lang = "en-US"
	}
	return &Capture{c: c, rec: rec, lang: lang}
}

// SetSupported records whether the host reported a speech facility.
func (p *Capture) SetSupported(supported bool) {
	_ = p.c.mutate(func() error {
		p.c.speech.supported = supported
		if !supported {
			p.c.speech.state = SpeechIdle
			p.c.speech.err = msgSpeechUnsupported
		} else if p.c.speech.err == msgSpeechUnsupported {
			p.c.speech.err = ""
		}
		return nil
	})
}

// Start begins a listening session. The transcript buffer and previous
// error are cleared.
func (p *Capture) Start() error {
	var rejected error
	err := p.c.mutate(func() error {
		s := &p.c.speech
		if !s.supported {
			s.err = msgSpeechUnsupported
			rejected = ErrSpeechUnsupported
			return nil
		}
		if s.state != SpeechIdle {
			return ErrAlreadyListening
		}
		s.state = SpeechListening
		s.transcript = nil
		s.interim = ""
		s.err = ""
		return nil
	})
	if err != nil {
		return err
	}
	if rejected != nil {
		return rejected
	}

	if err := p.rec.Start(p.lang); err != nil {
		slog.Warn("Speech recognizer failed to start", "case_id", p.c.ID, "error", err)
		_ = p.c.mutate(func() error {
			p.c.speech.state = SpeechIdle
			p.c.speech.err = msgSpeechStartFailed
			return nil
		})
		return fmt.Errorf("start recognizer: %w", err)
	}
	return nil
}

// Stop ends the listening session. Stopping while idle is a no-op.
func (p *Capture) Stop() error {
	wasActive := false
	_ = p.c.mutate(func() error {
		wasActive = p.c.speech.state != SpeechIdle
		p.c.speech.state = SpeechIdle
		p.c.speech.interim = ""
		return nil
	})
	if !wasActive {
		return nil
	}
	if err := p.rec.Stop(); err != nil {
		return fmt.Errorf("stop recognizer: %w", err)
	}
	return nil
}

// HandleResult processes a recognition event. Segments before resultIndex
// were already delivered. Final text is committed; interim text is only
// displayed. Results arriving after the session went idle are dropped.
func (p *Capture) HandleResult(resultIndex int, segments []Segment) {
	if resultIndex < 0 {
		resultIndex = 0
	}
	var final, interim strings.Builder
	for i := resultIndex; i < len(segments); i++ {
		if segments[i].IsFinal {
			final.WriteString(segments[i].Transcript)
		} else {
			interim.WriteString(segments[i].Transcript)
		}
	}

	fragment := final.String()
	_ = p.c.mutate(func() error {
		if p.c.speech.state == SpeechIdle {
			return errNotListening
		}
		p.c.speech.interim = interim.String()
		if fragment != "" {
			p.c.speech.transcript = append(p.c.speech.transcript, fragment)
			p.c.input.AppendDictation(fragment)
		}
		return nil
	})
}

// HandleError maps a recognition error kind to a clinician-facing message.
// No-speech and microphone errors are advisory; anything else ends the session.
func (p *Capture) HandleError(kind string) {
	stop := false
	_ = p.c.mutate(func() error {
		switch kind {
		case "no-speech", "audio-capture":
			p.c.speech.err = msgSpeechNoInput
		default:
			p.c.speech.err = msgSpeechErrorPrefix + kind
			stop = p.c.speech.state != SpeechIdle
			p.c.speech.state = SpeechIdle
			p.c.speech.interim = ""
		}
		return nil
	})
	if stop {
		if err := p.rec.Stop(); err != nil {
			slog.Debug("Speech recognizer stop after error failed", "case_id", p.c.ID, "error", err)
		}
	}
}

// HandleEnd handles the facility ending a session. If the clinician is still
// listening the facility is restarted; a failed restart returns to idle with
// a visible error.
func (p *Capture) HandleEnd() {
	restart := false
	_ = p.c.mutate(func() error {
		if p.c.speech.state == SpeechListening {
			p.c.speech.state = SpeechRestarting
			restart = true
		}
		return nil
	})
	if !restart {
		return
	}

	err := p.rec.Start(p.lang)
	_ = p.c.mutate(func() error {
		if p.c.speech.state != SpeechRestarting {
			// stopped while restarting
			return nil
		}
		if err != nil {
			p.c.speech.state = SpeechIdle
			p.c.speech.err = msgSpeechRestartFailed
			return nil
		}
		p.c.speech.state = SpeechListening
		return nil
	})
	if err != nil {
		slog.Warn("Speech recognizer restart failed", "case_id", p.c.ID, "error", err)
	}
}

// State returns the current dictation state.
func (p *Capture) State() SpeechState {
	var s SpeechState
	p.c.read(func() { s = p.c.speech.state })
	return s
}

func joinSegments(segments []string) string {
	return strings.Join(segments, "")
}
