package jobs

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus_ValidateTransition(t *testing.T) {
	t.Parallel()
	tests := []struct {
		from, to Status
		valid    bool
	}{
		{StatusPending, StatusRunning, true},
		{StatusPending, StatusDone, false},
		{StatusPending, StatusError, false},
		{StatusRunning, StatusDone, true},
		{StatusRunning, StatusError, true},
		{StatusRunning, StatusBlocked, true},
		{StatusRunning, StatusPending, false},
		{StatusRunning, StatusRunning, false},
		{StatusDone, StatusError, false},
		{StatusError, StatusDone, false},
		{StatusBlocked, StatusRunning, false},
	}
	for _, tt := range tests {
		t.Run(string(tt.from)+"->"+string(tt.to), func(t *testing.T) {
			err := tt.from.ValidateTransition(tt.to)
			if tt.valid {
				assert.NoError(t, err)
			} else {
				assert.Error(t, err)
			}
		})
	}
}

func TestStatus_Terminal(t *testing.T) {
	t.Parallel()
	assert.False(t, StatusPending.Terminal())
	assert.False(t, StatusRunning.Terminal())
	assert.True(t, StatusDone.Terminal())
	assert.True(t, StatusError.Terminal())
	assert.True(t, StatusBlocked.Terminal())
}
