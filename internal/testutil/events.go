package testutil

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/raysh454/auditai/internal/eventbus"
)

// ─── Events ────────────────────────────────────────────────────────────

// WaitForDone subscribes to jobID and blocks until its done event, returning
// the full event log. It fails the test after five seconds.
func WaitForDone(t testing.TB, bus *eventbus.Bus, jobID string) []eventbus.Event {
	t.Helper()
	sub, err := bus.Subscribe(jobID)
	if err != nil {
		t.Fatalf("subscribe %s: %v", jobID, err)
	}
	defer sub.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	var out []eventbus.Event
	for {
		ev, err := sub.Next(ctx)
		if errors.Is(err, io.EOF) {
			return out
		}
		if err != nil {
			t.Fatalf("waiting for job %s: %v (got %d events)", jobID, err, len(out))
		}
		out = append(out, ev)
	}
}

// LogMessages extracts the message of every log event.
func LogMessages(events []eventbus.Event) []string {
	var out []string
	for _, ev := range events {
		if ev.Type == eventbus.TypeLog {
			out = append(out, ev.Log.Message)
		}
	}
	return out
}
