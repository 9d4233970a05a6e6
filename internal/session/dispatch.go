package session

import "context"

// Dispatcher delivers one finished utterance to the conversation backend.
type Dispatcher interface {
	Dispatch(context.Context, string) error
}

// DispatchFunc adapts a function to the Dispatcher interface.
type DispatchFunc func(context.Context, string) error

func (f DispatchFunc) Dispatch(ctx context.Context, utterance string) error {
	return f(ctx, utterance)
}
