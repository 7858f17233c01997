package consult

import (
	"slices"

	"github.com/ashureev/medendorse/internal/domain"
)

// Snapshot is a point-in-time copy of a case for rendering.
type Snapshot struct {
	ID               string            `json:"id"`
	Version          uint64            `json:"version"`
	View             domain.View       `json:"view"`
	Notes            string            `json:"notes"`
	ImageAnalysis    string            `json:"imageAnalysis"`
	DiagnosisEnabled bool              `json:"diagnosisEnabled"`
	ChatEnabled      bool              `json:"chatEnabled"`
	Image            ImageSnapshot     `json:"image"`
	Diagnosis        DiagnosisSnapshot `json:"diagnosis"`
	Chat             ChatSnapshot      `json:"chat"`
	Dictation        DictationSnapshot `json:"dictation"`
}

// ImageSnapshot describes the uploaded image without its raw bytes.
type ImageSnapshot struct {
	FileName       string `json:"fileName,omitempty"`
	MIMEType       string `json:"mimeType,omitempty"`
	PreviewDataURL string `json:"previewDataUrl,omitempty"`
	Loading        bool   `json:"loading"`
	Error          string `json:"error,omitempty"`
}

// DiagnosisSnapshot holds the differential diagnosis and per-entry plan status.
type DiagnosisSnapshot struct {
	Items   []domain.Diagnosis `json:"items"`
	Loading bool               `json:"loading"`
	Error   string             `json:"error,omitempty"`
	Plans   map[int]PlanStatus `json:"plans,omitempty"`
}

// ChatSnapshot holds the chat log.
type ChatSnapshot struct {
	Active   bool                 `json:"active"`
	Awaiting bool                 `json:"awaiting"`
	Messages []domain.ChatMessage `json:"messages"`
}

// DictationSnapshot holds speech capture state.
type DictationSnapshot struct {
	State      SpeechState `json:"state"`
	Listening  bool        `json:"listening"`
	Supported  bool        `json:"supported"`
	Transcript string      `json:"transcript"`
	Interim    string      `json:"interim,omitempty"`
	Error      string      `json:"error,omitempty"`
}

// Snapshot copies the case state.
func (c *Case) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	enabled := c.input.HasInput()
	s := Snapshot{
		ID:               c.ID,
		Version:          c.version,
		View:             c.view,
		Notes:            c.input.Notes,
		ImageAnalysis:    c.input.ImageAnalysis,
		DiagnosisEnabled: enabled,
		ChatEnabled:      enabled,
		Image: ImageSnapshot{
			Loading: c.image.loading,
			Error:   c.image.err,
		},
		Diagnosis: DiagnosisSnapshot{
			Loading: c.diag.loading,
			Error:   c.diag.err,
		},
		Chat: ChatSnapshot{
			Active:   c.chat.session != nil,
			Awaiting: c.chat.awaiting,
			Messages: slices.Clone(c.chat.messages),
		},
		Dictation: DictationSnapshot{
			State:      c.speech.state,
			Listening:  c.speech.state != SpeechIdle,
			Supported:  c.speech.supported,
			Transcript: joinSegments(c.speech.transcript),
			Interim:    c.speech.interim,
			Error:      c.speech.err,
		},
	}
	if p := c.image.pending; p != nil {
		s.Image.FileName = p.FileName
		s.Image.MIMEType = p.MIMEType
		s.Image.PreviewDataURL = p.PreviewDataURL
	}
	if c.diag.items != nil {
		s.Diagnosis.Items = make([]domain.Diagnosis, len(c.diag.items))
		for i, d := range c.diag.items {
			d.ManagementPlanSources = slices.Clone(d.ManagementPlanSources)
			s.Diagnosis.Items[i] = d
		}
	}
	if len(c.diag.plans) > 0 {
		s.Diagnosis.Plans = make(map[int]PlanStatus, len(c.diag.plans))
		for k, v := range c.diag.plans {
			s.Diagnosis.Plans[k] = v
		}
	}
	return s
}
