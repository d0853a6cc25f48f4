package jobs

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound      = errors.New("job not found")
	ErrNotReady      = errors.New("job not finished")
	ErrInternalFault = errors.New("internal fault")
)

// FailedError is returned when a result is requested from a job that ended
// in StatusError.
type FailedError struct {
	Kind   ErrorKind
	Detail string
}

func (e *FailedError) Error() string {
	return fmt.Sprintf("job failed (%s): %s", e.Kind, e.Detail)
}
