package engine

import "github.com/san-kum/binsim/internal/present"

// Recorder consumes the same readback the presentation pass draws. A
// Record error ends the recording, not the session.
type Recorder interface {
	Record(f present.Frame) error
	Close() error
}

// Record starts recording, replacing and closing any current recorder.
func (e *Engine) Record(r Recorder) error {
	e.mu.Lock()
	prev := e.recorder
	e.recorder = r
	e.mu.Unlock()
	if prev != nil {
		return prev.Close()
	}
	return nil
}

// StopRecording closes the current recorder. It is a no-op when not
// recording.
func (e *Engine) StopRecording() error {
	e.mu.Lock()
	r := e.recorder
	e.recorder = nil
	e.mu.Unlock()
	if r == nil {
		return nil
	}
	return r.Close()
}

func (e *Engine) Recording() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.recorder != nil
}

func (e *Engine) dropRecorder(r Recorder) {
	e.mu.Lock()
	if e.recorder == r {
		e.recorder = nil
	}
	e.mu.Unlock()
	if err := r.Close(); err != nil {
		e.logger.Warn("close recorder", "err", err)
	}
}
