package domain

// View is one of the four mutually exclusive panels of the workspace.
type View string

const (
	ViewDictation View = "dictation"
	ViewImage     View = "image"
	ViewDiagnosis View = "diagnosis"
	ViewChat      View = "chat"
)

// Valid reports whether v names a known view.
func (v View) Valid() bool {
	switch v {
	case ViewDictation, ViewImage, ViewDiagnosis, ViewChat:
		return true
	}
	return false
}

// RequiresCaseInput reports whether the view is gated on notes or image analysis.
func (v View) RequiresCaseInput() bool {
	return v == ViewDiagnosis || v == ViewChat
}
