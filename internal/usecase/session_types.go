package usecase

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"meetbot/internal/domain"
	"meetbot/internal/ports"
)

// captureSession is the state of one active recording. The capture goroutine
// only touches buffer, frames and bytes; everything else is owned by the
// controlling goroutine.
type captureSession struct {
	filename   string
	startTime  time.Time
	channels   int
	sampleRate int
	blockSize  int

	stream ports.AudioStream
	cancel context.CancelFunc
	done   chan struct{}

	buffer *frameBuffer
	frames atomic.Int64
	bytes  atomic.Int64
}

func (s *captureSession) snapshot(active bool) domain.RecordingSession {
	return domain.RecordingSession{
		Filename:     s.filename,
		StartTime:    s.startTime,
		FrameCount:   s.frames.Load(),
		ChannelCount: s.channels,
		SampleRate:   s.sampleRate,
		IsActive:     active,
	}
}

// frameBuffer is an append-only block list. Once sealed it rejects appends,
// so a capture goroutine that outlived the stop timeout cannot race the drain.
type frameBuffer struct {
	mu     sync.Mutex
	blocks [][]byte
	sealed bool
}

func (b *frameBuffer) append(block []byte) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return false
	}
	b.blocks = append(b.blocks, block)
	return true
}

// seal stops further appends and hands over the collected blocks. It can
// only drain once.
func (b *frameBuffer) seal() [][]byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.sealed {
		return nil
	}
	b.sealed = true
	blocks := b.blocks
	b.blocks = nil
	return blocks
}

// sessionTracker guards the controller's SessionState.
type sessionTracker struct {
	mu          sync.Mutex
	state       domain.SessionState
	regressions int
}

// advance moves to the next phase if the lifecycle allows it. Terminal
// phases are sticky and a single Joined->Waiting regression is tolerated.
func (t *sessionTracker) advance(next domain.Phase, now time.Time) (domain.Phase, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	current := t.state.Phase
	switch {
	case current == next:
		return current, false
	case current.Terminal():
		return current, false
	case current == domain.PhaseJoined && next == domain.PhaseWaiting:
		if t.regressions > 0 {
			return current, false
		}
		t.regressions++
	case next.Before(current):
		return current, false
	}

	t.state.Phase = next
	switch next {
	case domain.PhaseJoinRequested:
		t.state.JoinRequestedAt = now
	case domain.PhaseJoined:
		if t.state.JoinedAt.IsZero() {
			t.state.JoinedAt = now
		}
	}
	return next, true
}

func (t *sessionTracker) phase() domain.Phase {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state.Phase
}

func (t *sessionTracker) get() domain.SessionState {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.state
}
