package transport

import (
	"time"
)

// pacer delays writes so that they follow buffer timestamps.
// It is used by sinks with sync enabled.
type pacer struct {
	enabled bool

	started   bool
	firstTS   time.Time
	firstWall time.Time
}

func (p *pacer) wait(buf *Buffer, done <-chan struct{}) bool {
	if !p.enabled || buf.Timestamp.IsZero() {
		return true
	}

	if !p.started {
		p.started = true
		p.firstTS = buf.Timestamp
		p.firstWall = time.Now()
		return true
	}

	delay := time.Until(p.firstWall.Add(buf.Timestamp.Sub(p.firstTS)))
	if delay <= 0 {
		return true
	}

	t := time.NewTimer(delay)
	defer t.Stop()

	select {
	case <-t.C:
		return true
	case <-done:
		return false
	}
}
