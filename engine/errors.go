package engine

import (
	"errors"
	"fmt"
)

var (
	// ErrAlreadyStarted is returned by StartStream while a stream is
	// running.
	ErrAlreadyStarted = errors.New("engine: stream already started")
	// ErrOldStreamNotFinishedStopping is returned by StartStream while
	// the previous stream is still shutting down.
	ErrOldStreamNotFinishedStopping = errors.New("engine: previous stream not finished stopping")
	// ErrMsgChannelFull is returned when a message to the audio thread
	// did not fit in the channel. The engine's state is unchanged; the
	// send is retried on the next update.
	ErrMsgChannelFull = errors.New("engine: message channel to audio thread is full")
	// ErrStreamStoppedUnexpectedly is returned by Update when the
	// backend reports the stream died.
	ErrStreamStoppedUnexpectedly = errors.New("engine: stream stopped unexpectedly")
	// ErrNotStarted is returned by operations that need a running
	// stream.
	ErrNotStarted = errors.New("engine: stream not started")
)

// GraphCompileError wraps a graph compilation failure.
type GraphCompileError struct {
	Err error
}

func (e *GraphCompileError) Error() string {
	return fmt.Sprintf("engine: graph failed to compile: %v", e.Err)
}

func (e *GraphCompileError) Unwrap() error { return e.Err }

// StartStreamError wraps a backend failure during stream start.
type StartStreamError struct {
	Err error
}

func (e *StartStreamError) Error() string {
	return fmt.Sprintf("engine: backend failed to start stream: %v", e.Err)
}

func (e *StartStreamError) Unwrap() error { return e.Err }
