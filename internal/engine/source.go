package engine

import (
	"sync"
	"time"
)

// FrameSource schedules ticks. Frames starts delivery and Stop ends it; a
// source may be started again after Stop.
type FrameSource interface {
	Frames() <-chan time.Time
	Stop()
}

type tickerSource struct {
	interval time.Duration
	ticker   *time.Ticker
}

// NewTickerSource delivers frames at a fixed rate.
func NewTickerSource(fps int) FrameSource {
	if fps <= 0 {
		fps = 60
	}
	return &tickerSource{interval: time.Second / time.Duration(fps)}
}

func (s *tickerSource) Frames() <-chan time.Time {
	s.ticker = time.NewTicker(s.interval)
	return s.ticker.C
}

func (s *tickerSource) Stop() {
	if s.ticker != nil {
		s.ticker.Stop()
	}
}

// ManualSource delivers a frame whenever Step is called. It suits hosts
// with their own scheduler, and tests.
type ManualSource struct {
	ch chan time.Time

	mu   sync.Mutex
	done chan struct{}
}

func NewManualSource() *ManualSource {
	return &ManualSource{ch: make(chan time.Time)}
}

func (s *ManualSource) Frames() <-chan time.Time {
	s.mu.Lock()
	s.done = make(chan struct{})
	s.mu.Unlock()
	return s.ch
}

func (s *ManualSource) Stop() {
	s.mu.Lock()
	if s.done != nil {
		close(s.done)
		s.done = nil
	}
	s.mu.Unlock()
}

// Step blocks until the running session takes the frame. It reports false
// without delivering when no session is running or the session ends first.
func (s *ManualSource) Step(now time.Time) bool {
	s.mu.Lock()
	done := s.done
	s.mu.Unlock()
	if done == nil {
		return false
	}
	select {
	case s.ch <- now:
		return true
	case <-done:
		return false
	}
}
