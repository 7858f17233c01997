package consult

// User-facing texts.
const (
	msgSpeechUnsupported   = "Speech recognition is not supported in this browser."
	msgSpeechStartFailed   = "Could not start listening. Please wait a moment and try again."
	msgSpeechNoInput       = "No speech detected or microphone error. Please check your microphone and try again."
	msgSpeechErrorPrefix   = "Speech recognition error: "
	msgSpeechRestartFailed = "Speech recognition stopped unexpectedly and could not be restarted."

	msgImageFailed     = "Failed to analyze image. Please try again."
	msgDiagnosisFailed = "Failed to get differential diagnosis. The model may have returned an unexpected format."
	msgPlanFailed      = "Failed to load guidelines."

	// ChatGreeting is the scripted first model message of every chat.
	ChatGreeting = "Hello Doctor. I've reviewed the case file with the patient's notes, image analysis, and initial diagnosis. How can I help you analyze it further?"
	// ChatApology replaces a failed chat turn.
	ChatApology = "Sorry, I encountered an error. Please try again."

	noNotesPlaceholder     = "No notes provided."
	noAnalysisPlaceholder  = "No image analysis provided."
	noDiagnosesPlaceholder = "Not generated yet."
)
