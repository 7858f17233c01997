package consult

import "errors"

var (
	ErrNoCaseInput       = errors.New("notes or image analysis are required")
	ErrDiagnosisInFlight = errors.New("a diagnosis request is already in progress")
	ErrPlanInFlight      = errors.New("a management plan request is already in progress for this diagnosis")
	ErrPlanExists        = errors.New("this diagnosis already has a management plan")
	ErrTurnInFlight      = errors.New("a chat response is still streaming")
	ErrEmptyMessage      = errors.New("message is required")
	ErrNoImage           = errors.New("no image has been uploaded")
	ErrIndexOutOfRange   = errors.New("diagnosis index out of range")
	ErrStaleDiagnosis    = errors.New("diagnoses were regenerated while the request was running")
	ErrUnknownView       = errors.New("unknown view")
	ErrUnsupportedImage  = errors.New("unsupported image type")
	ErrImageInFlight     = errors.New("image analysis is already in progress")
	ErrImageTooLarge     = errors.New("image exceeds size limit")
	ErrChatNotActive     = errors.New("chat session has not been activated")
	ErrSpeechUnsupported = errors.New(msgSpeechUnsupported)
	ErrAlreadyListening  = errors.New("dictation is already active")
)

// ModelError is a failed model call. Message is the fixed text shown to the
// clinician; Err carries the underlying cause for logs.
type ModelError struct {
	Message string
	Err     error
}

func (e *ModelError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *ModelError) Unwrap() error { return e.Err }
