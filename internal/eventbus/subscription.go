package eventbus

import (
	"context"
	"io"
	"sync"
	"sync/atomic"
)

// Subscription is one reader of a job log. Next must be called from a single
// goroutine; Close may be called from any goroutine.
type Subscription struct {
	bus *Bus
	log *jobLog

	backlog []Event
	live    chan Event

	mu     sync.Mutex
	err    error
	closed atomic.Bool
}

func (s *Subscription) setErr(err error) {
	s.mu.Lock()
	if s.err == nil {
		s.err = err
	}
	s.mu.Unlock()
}

func (s *Subscription) endErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err == nil {
		return io.EOF
	}
	return s.err
}

// Next returns the next event in sequence order. It returns io.EOF once the
// log is complete and every event was delivered, ErrSubscriberOverflow if the
// subscriber was disconnected for falling behind, or ctx.Err().
func (s *Subscription) Next(ctx context.Context) (Event, error) {
	if s.closed.Load() {
		return Event{}, io.EOF
	}
	if len(s.backlog) > 0 {
		ev := s.backlog[0]
		s.backlog = s.backlog[1:]
		return ev, nil
	}
	if s.live == nil {
		return Event{}, s.endErr()
	}
	select {
	case ev, ok := <-s.live:
		if !ok {
			return Event{}, s.endErr()
		}
		return ev, nil
	case <-ctx.Done():
		return Event{}, ctx.Err()
	}
}

// Close detaches the subscription; Next returns io.EOF afterwards. It does not affect
// the job log or other subscribers.
func (s *Subscription) Close() {
	if s.closed.Swap(true) {
		return
	}
	if s.live == nil {
		return
	}
	s.log.mu.Lock()
	s.bus.detachLocked(s.log, s, io.EOF)
	s.log.mu.Unlock()
}
