package eventbus_test

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/raysh454/auditai/internal/eventbus"
)

func newTestBus(t *testing.T, buffer int) *eventbus.Bus {
	t.Helper()
	return eventbus.New(eventbus.Options{BufferSize: buffer})
}

// drain reads until the subscription ends and returns events and the end error.
func drain(t *testing.T, sub *eventbus.Subscription) ([]eventbus.Event, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	var out []eventbus.Event
	for {
		ev, err := sub.Next(ctx)
		if err != nil {
			return out, err
		}
		out = append(out, ev)
	}
}

func seqs(events []eventbus.Event) []uint64 {
	out := make([]uint64, len(events))
	for i, ev := range events {
		out[i] = ev.Seq
	}
	return out
}

func TestBus_AppendAssignsContiguousSeq(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 0)
	bus.Open("job")

	for i := 0; i < 5; i++ {
		seq, err := bus.Append("job", eventbus.LogEvent(eventbus.LevelInfo, fmt.Sprintf("step %d", i)))
		require.NoError(t, err)
		assert.Equal(t, uint64(i), seq)
	}

	events, err := bus.Events("job")
	require.NoError(t, err)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4}, seqs(events))
	for _, ev := range events {
		assert.Equal(t, "job", ev.JobID)
		assert.False(t, ev.Timestamp.IsZero())
	}
}

func TestBus_UnknownJob(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 0)

	_, err := bus.Append("nope", eventbus.LogEvent(eventbus.LevelInfo, "x"))
	assert.ErrorIs(t, err, eventbus.ErrUnknownJob)

	_, err = bus.Subscribe("nope")
	assert.ErrorIs(t, err, eventbus.ErrUnknownJob)
}

func TestBus_AppendAfterDone_ReturnsClosedJob(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 0)
	bus.Open("job")

	_, err := bus.Append("job", eventbus.DoneEvent("done", ""))
	require.NoError(t, err)

	_, err = bus.Append("job", eventbus.LogEvent(eventbus.LevelInfo, "late"))
	assert.ErrorIs(t, err, eventbus.ErrClosedJob)
	_, err = bus.Append("job", eventbus.DoneEvent("done", ""))
	assert.ErrorIs(t, err, eventbus.ErrClosedJob)
}

func TestBus_SubscribeAfterDone_ReplaysFullLogThenEOF(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 0)
	bus.Open("job")
	_, _ = bus.Append("job", eventbus.LogEvent(eventbus.LevelInfo, "a"))
	_, _ = bus.Append("job", eventbus.LogEvent(eventbus.LevelInfo, "b"))
	_, _ = bus.Append("job", eventbus.DoneEvent("done", ""))

	sub, err := bus.Subscribe("job")
	require.NoError(t, err)

	events, err := drain(t, sub)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, events, 3)
	assert.Equal(t, "a", events[0].Log.Message)
	assert.Equal(t, eventbus.TypeDone, events[2].Type)
	assert.Equal(t, "done", events[2].Done.Status)
}

func TestBus_LateAndEarlySubscribersSeeIdenticalSequence(t *testing.T) {
	t.Parallel()
	const total = 200
	bus := newTestBus(t, total+1)
	bus.Open("job")

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		results [][]eventbus.Event
	)
	attach := func() {
		defer wg.Done()
		sub, err := bus.Subscribe("job")
		if !assert.NoError(t, err) {
			return
		}
		events, err := drain(t, sub)
		assert.ErrorIs(t, err, io.EOF)
		mu.Lock()
		results = append(results, events)
		mu.Unlock()
	}

	wg.Add(1)
	go attach()
	for i := 0; i < total; i++ {
		_, err := bus.Append("job", eventbus.LogEvent(eventbus.LevelInfo, fmt.Sprintf("%d", i)))
		require.NoError(t, err)
		if i%50 == 0 {
			wg.Add(1)
			go attach()
		}
	}
	_, err := bus.Append("job", eventbus.DoneEvent("done", ""))
	require.NoError(t, err)
	wg.Add(1)
	go attach()
	wg.Wait()

	full, err := bus.Events("job")
	require.NoError(t, err)
	require.Len(t, full, total+1)
	for _, got := range results {
		assert.Equal(t, seqs(full), seqs(got))
		assert.Equal(t, eventbus.TypeDone, got[len(got)-1].Type)
	}
}

func TestBus_SlowSubscriberOverflow_DisconnectsOnlyThatSubscriber(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 2)
	bus.Open("job")

	slow, err := bus.Subscribe("job")
	require.NoError(t, err)
	fast, err := bus.Subscribe("job")
	require.NoError(t, err)

	ctx := context.Background()
	var fastGot []eventbus.Event
	for i := 0; i < 5; i++ {
		_, err := bus.Append("job", eventbus.LogEvent(eventbus.LevelInfo, "x"))
		require.NoError(t, err)
		ev, err := fast.Next(ctx)
		require.NoError(t, err)
		fastGot = append(fastGot, ev)
	}
	_, err = bus.Append("job", eventbus.DoneEvent("done", ""))
	require.NoError(t, err)

	rest, err := drain(t, fast)
	assert.ErrorIs(t, err, io.EOF)
	fastGot = append(fastGot, rest...)
	assert.Equal(t, []uint64{0, 1, 2, 3, 4, 5}, seqs(fastGot))

	got, err := drain(t, slow)
	assert.ErrorIs(t, err, eventbus.ErrSubscriberOverflow)
	assert.Equal(t, []uint64{0, 1}, seqs(got))

	again, err := bus.Subscribe("job")
	require.NoError(t, err)
	replay, err := drain(t, again)
	assert.ErrorIs(t, err, io.EOF)
	assert.Len(t, replay, 6)
}

func TestBus_CloseReleasesBlockedSubscriber(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 0)
	bus.Open("job")
	sub, err := bus.Subscribe("job")
	require.NoError(t, err)

	errc := make(chan error, 1)
	go func() {
		_, err := sub.Next(context.Background())
		errc <- err
	}()

	time.Sleep(10 * time.Millisecond)
	require.NoError(t, bus.Close("job"))
	require.NoError(t, bus.Close("job"))

	select {
	case err := <-errc:
		assert.ErrorIs(t, err, io.EOF)
	case <-time.After(5 * time.Second):
		t.Fatal("subscriber was not released by Close")
	}

	_, err = bus.Append("job", eventbus.LogEvent(eventbus.LevelInfo, "late"))
	assert.ErrorIs(t, err, eventbus.ErrClosedJob)
}

func TestSubscription_CloseDetachesWithoutAffectingOthers(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 0)
	bus.Open("job")

	a, err := bus.Subscribe("job")
	require.NoError(t, err)
	b, err := bus.Subscribe("job")
	require.NoError(t, err)

	a.Close()
	a.Close()
	_, err = a.Next(context.Background())
	assert.ErrorIs(t, err, io.EOF)

	_, _ = bus.Append("job", eventbus.LogEvent(eventbus.LevelInfo, "x"))
	_, _ = bus.Append("job", eventbus.DoneEvent("error", "boom"))

	got, err := drain(t, b)
	assert.ErrorIs(t, err, io.EOF)
	require.Len(t, got, 2)
	assert.Equal(t, "boom", got[1].Done.Error)
}

func TestSubscription_NextHonoursContext(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 0)
	bus.Open("job")
	sub, err := bus.Subscribe("job")
	require.NoError(t, err)
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = sub.Next(ctx)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))
}

func TestBus_RemoveForgetsJob(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 0)
	bus.Open("job")
	bus.Remove("job")

	_, err := bus.Subscribe("job")
	assert.ErrorIs(t, err, eventbus.ErrUnknownJob)
}

func TestBus_ConcurrentAttachDetachAppend(t *testing.T) {
	t.Parallel()
	bus := newTestBus(t, 8)
	bus.Open("job")

	var wg sync.WaitGroup
	stop := make(chan struct{})
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				sub, err := bus.Subscribe("job")
				if err != nil {
					return
				}
				ctx, cancel := context.WithTimeout(context.Background(), time.Millisecond)
				_, _ = sub.Next(ctx)
				cancel()
				sub.Close()
			}
		}()
	}

	for i := 0; i < 500; i++ {
		_, err := bus.Append("job", eventbus.LogEvent(eventbus.LevelDebug, "tick"))
		require.NoError(t, err)
	}
	_, err := bus.Append("job", eventbus.DoneEvent("done", ""))
	require.NoError(t, err)
	close(stop)
	wg.Wait()

	events, err := bus.Events("job")
	require.NoError(t, err)
	assert.Len(t, events, 501)
}
