// Package eventbus keeps an append-only event log per job and fans every new
// event out to live subscribers. A subscriber attaching at any time first
// receives the whole log so far, then the live tail, with no gaps and no
// duplicates.
package eventbus

import (
	"errors"
	"io"
	"sync"
	"time"
)

var (
	ErrUnknownJob         = errors.New("eventbus: unknown job")
	ErrClosedJob          = errors.New("eventbus: job log is closed")
	ErrSubscriberOverflow = errors.New("eventbus: subscriber fell behind and was disconnected")
)

// DefaultBufferSize is the live buffer of each subscription.
const DefaultBufferSize = 256

// Observer receives bus activity, typically for metrics.
type Observer interface {
	EventAppended(t Type)
	SubscriberAttached()
	SubscriberDetached()
	SubscriberOverflowed()
}

type nopObserver struct{}

func (nopObserver) EventAppended(Type)    {}
func (nopObserver) SubscriberAttached()   {}
func (nopObserver) SubscriberDetached()   {}
func (nopObserver) SubscriberOverflowed() {}

// Options tune a Bus. The zero value is usable.
type Options struct {
	BufferSize int
	Observer   Observer
	Now        func() time.Time
}

// Bus holds the logs of all known jobs.
type Bus struct {
	mu   sync.RWMutex
	logs map[string]*jobLog

	bufferSize int
	observer   Observer
	now        func() time.Time
}

type jobLog struct {
	mu     sync.Mutex
	events []Event
	done   bool
	closed bool
	subs   map[*Subscription]struct{}
}

// New creates an empty bus.
func New(opts Options) *Bus {
	b := &Bus{
		logs:       make(map[string]*jobLog),
		bufferSize: opts.BufferSize,
		observer:   opts.Observer,
		now:        opts.Now,
	}
	if b.bufferSize <= 0 {
		b.bufferSize = DefaultBufferSize
	}
	if b.observer == nil {
		b.observer = nopObserver{}
	}
	if b.now == nil {
		b.now = time.Now
	}
	return b
}

// Open creates the log for jobID. Opening an existing log is a no-op.
func (b *Bus) Open(jobID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.logs[jobID]; ok {
		return
	}
	b.logs[jobID] = &jobLog{subs: make(map[*Subscription]struct{})}
}

func (b *Bus) lookup(jobID string) (*jobLog, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	l, ok := b.logs[jobID]
	if !ok {
		return nil, ErrUnknownJob
	}
	return l, nil
}

// Append stores ev at the end of the job's log, assigns its sequence number
// and delivers it to every live subscriber. A done event completes the log:
// subscribers are released after receiving it and later appends fail with
// ErrClosedJob.
func (b *Bus) Append(jobID string, ev Event) (uint64, error) {
	l, err := b.lookup(jobID)
	if err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.done || l.closed {
		return 0, ErrClosedJob
	}

	ev.JobID = jobID
	ev.Seq = uint64(len(l.events))
	if ev.Timestamp.IsZero() {
		ev.Timestamp = b.now().UTC()
	}
	l.events = append(l.events, ev)
	b.observer.EventAppended(ev.Type)

	for sub := range l.subs {
		select {
		case sub.live <- ev:
		default:
			b.detachLocked(l, sub, ErrSubscriberOverflow)
			b.observer.SubscriberOverflowed()
		}
	}

	if ev.Type == TypeDone {
		l.done = true
		for sub := range l.subs {
			b.detachLocked(l, sub, io.EOF)
		}
	}
	return ev.Seq, nil
}

// Subscribe attaches a new subscriber to jobID. The subscription replays
// every event appended so far and then follows the live tail.
func (b *Bus) Subscribe(jobID string) (*Subscription, error) {
	l, err := b.lookup(jobID)
	if err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	sub := &Subscription{
		bus:     b,
		log:     l,
		backlog: make([]Event, len(l.events)),
	}
	copy(sub.backlog, l.events)

	if l.done || l.closed {
		sub.err = io.EOF
		return sub, nil
	}
	sub.live = make(chan Event, b.bufferSize)
	l.subs[sub] = struct{}{}
	b.observer.SubscriberAttached()
	return sub, nil
}

// Events returns a copy of the job's log.
func (b *Bus) Events(jobID string) ([]Event, error) {
	l, err := b.lookup(jobID)
	if err != nil {
		return nil, err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]Event, len(l.events))
	copy(out, l.events)
	return out, nil
}

// Close ends the job's log and releases all of its subscribers. Appends
// after Close fail with ErrClosedJob. Closing twice is harmless.
func (b *Bus) Close(jobID string) error {
	l, err := b.lookup(jobID)
	if err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.closed = true
	for sub := range l.subs {
		b.detachLocked(l, sub, io.EOF)
	}
	return nil
}

// Remove closes the job's log and forgets it.
func (b *Bus) Remove(jobID string) {
	_ = b.Close(jobID)
	b.mu.Lock()
	delete(b.logs, jobID)
	b.mu.Unlock()
}

// detachLocked must be called with l.mu held.
func (b *Bus) detachLocked(l *jobLog, sub *Subscription, reason error) {
	if _, ok := l.subs[sub]; !ok {
		return
	}
	delete(l.subs, sub)
	sub.setErr(reason)
	close(sub.live)
	b.observer.SubscriberDetached()
}
