package session

import (
	"context"
	"errors"
)

var (
	// ErrNoText indicates a session ended with nothing recognized to send.
	ErrNoText = errors.New("no text detected")
	// ErrAbandoned indicates a held session was torn down without a flush.
	ErrAbandoned = errors.New("session abandoned")
	// ErrNotRunning indicates the controller loop is not serving requests.
	ErrNotRunning = errors.New("session controller is not running")
)

// RecognitionKind identifies a recognizer callback.
type RecognitionKind string

const (
	RecognitionPartial  RecognitionKind = "partial"
	RecognitionFinal    RecognitionKind = "final"
	RecognitionCanceled RecognitionKind = "canceled"
	RecognitionStopped  RecognitionKind = "stopped"
)

// RecognitionEvent is one callback from the streaming recognizer. OK is false
// for finals that carry no recognized speech.
type RecognitionEvent struct {
	Kind RecognitionKind
	Text string
	OK   bool
	Err  error
}

// Recognizer is the process-wide streaming speech recognizer. Events stays
// open for the lifetime of the recognizer; after Stop returns, residual
// finals for the stopped stream may still arrive, followed by a stopped or
// canceled event.
type Recognizer interface {
	Start(context.Context) error
	Stop(context.Context) error
	Events() <-chan RecognitionEvent
}

// nullRecognizer accepts start/stop and never emits events.
type nullRecognizer struct{}

func (nullRecognizer) Start(context.Context) error     { return nil }
func (nullRecognizer) Stop(context.Context) error      { return nil }
func (nullRecognizer) Events() <-chan RecognitionEvent { return nil }
