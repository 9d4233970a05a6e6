package session

// StatusKind identifies a user-facing status update. Indicators render it in
// the user's locale.
type StatusKind string

const (
	StatusRecording       StatusKind = "recording"
	StatusSending         StatusKind = "sending"
	StatusNoText          StatusKind = "no_text"
	StatusRecognized      StatusKind = "recognized"
	StatusCanceled        StatusKind = "recognition_canceled"
	StatusStopped         StatusKind = "recognition_stopped"
	StatusStartFailed     StatusKind = "start_failed"
	StatusStopFailed      StatusKind = "stop_failed"
	StatusDispatchFailed  StatusKind = "dispatch_failed"
	StatusListening       StatusKind = "listening"
	StatusVoiceMode       StatusKind = "voice_mode"
	StatusTextMode        StatusKind = "text_mode"
	StatusRecognizerReady StatusKind = "ready"
)

// Status is one status update. Detail carries recognized text or an error.
type Status struct {
	Kind   StatusKind
	Detail string
}

func (s Status) String() string {
	if s.Detail == "" {
		return string(s.Kind)
	}
	return string(s.Kind) + ": " + s.Detail
}
