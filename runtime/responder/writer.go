package responder

import (
	"errors"
	"fmt"
	"sync"

	"github.com/AltairaLabs/callrelay/runtime/types"
)

// ErrTurnCompleted is returned when a frame is written for a turn whose
// terminal frame has already been sent.
var ErrTurnCompleted = errors.New("turn already completed")

// EmitFunc delivers one outbound frame to the transport.
type EmitFunc func(frame types.Frame) error

// turnWriter guards the frame sequence of one turn: content frames until the
// terminal frame, then nothing.
type turnWriter struct {
	mu         sync.Mutex
	responseID int
	emit       EmitFunc
	completed  bool
	content    int
}

func newTurnWriter(responseID int, emit EmitFunc) *turnWriter {
	return &turnWriter{responseID: responseID, emit: emit}
}

// Content emits a non-final frame carrying delta.
func (w *turnWriter) Content(delta string) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.completed {
		return ErrTurnCompleted
	}
	w.content++
	return w.send(types.ContentFrame(w.responseID, delta))
}

// Complete emits the terminal frame. Only the first call emits.
func (w *turnWriter) Complete() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.completed {
		return ErrTurnCompleted
	}
	w.completed = true
	return w.send(types.TerminalFrame(w.responseID))
}

// ContentFrames returns how many content frames were emitted.
func (w *turnWriter) ContentFrames() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.content
}

// send calls emit, converting a panic into an error.
func (w *turnWriter) send(frame types.Frame) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("emit panicked: %v", r)
		}
	}()
	return w.emit(frame)
}
