package consult

import (
	"github.com/ashureev/medendorse/internal/agent"
)

// Service bundles the coordinators that act on a case.
type Service struct {
	Image     *ImageAdapter
	Diagnosis *DiagnosisCoordinator
	Plan      *PlanCoordinator
	Chat      *ChatCoordinator
	View      *ViewShell

	speechLang string
}

// Options configures a Service.
type Options struct {
	MaxImageBytes int64
	SpeechLang    string
}

// NewService creates all coordinators over one model processor.
func NewService(proc agent.Processor, opts Options) *Service {
	diagnosis := NewDiagnosisCoordinator(proc)
	chat := NewChatCoordinator(proc)
	return &Service{
		Image:      NewImageAdapter(proc, opts.MaxImageBytes),
		Diagnosis:  diagnosis,
		Plan:       NewPlanCoordinator(proc),
		Chat:       chat,
		View:       NewViewShell(diagnosis, chat),
		speechLang: opts.SpeechLang,
	}
}

// NewCapture binds a recognizer to c using the configured language.
func (s *Service) NewCapture(c *Case, rec Recognizer) *Capture {
	return NewCapture(c, rec, s.speechLang)
}

// Wait blocks until background work started by navigation has finished.
func (s *Service) Wait() {
	s.Diagnosis.Wait()
}
