package jobs

import (
	"fmt"
	"sync"
	"time"

	"github.com/raysh454/auditai/internal/eventbus"
)

// Job tracks one unit of asynchronous work. Only the coordinator that
// created a job mutates it; anyone may read it through Info.
type Job struct {
	mu sync.Mutex

	id       string
	kind     Kind
	target   string
	scanID   string
	provider string

	status    Status
	createdAt time.Time
	startedAt time.Time
	endedAt   time.Time

	result    any
	errKind   ErrorKind
	errDetail string
	mechanism string
	rawOutput string

	bus        *eventbus.Bus
	now        func() time.Time
	onTerminal func(Info)
}

// Info is a point-in-time copy of a job.
type Info struct {
	ID                string     `json:"id"`
	Kind              Kind       `json:"kind"`
	Status            Status     `json:"status"`
	Target            string     `json:"target,omitempty"`
	ScanID            string     `json:"scan_id,omitempty"`
	Provider          string     `json:"provider,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	StartedAt         *time.Time `json:"started_at,omitempty"`
	EndedAt           *time.Time `json:"ended_at,omitempty"`
	ErrorKind         ErrorKind  `json:"error_kind,omitempty"`
	ErrorDetail       string     `json:"error_detail,omitempty"`
	BlockingMechanism string     `json:"blocking_mechanism,omitempty"`
	RawOutput         string     `json:"raw_output,omitempty"`
	Result            any        `json:"result,omitempty"`
}

func (j *Job) ID() string { return j.id }

func (j *Job) Kind() Kind { return j.kind }

func (j *Job) Status() Status {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.status
}

// Result returns the stored result; it is non-nil only for done jobs.
func (j *Job) Result() any {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

func (j *Job) Info() Info {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.infoLocked()
}

func (j *Job) infoLocked() Info {
	info := Info{
		ID:                j.id,
		Kind:              j.kind,
		Status:            j.status,
		Target:            j.target,
		ScanID:            j.scanID,
		Provider:          j.provider,
		CreatedAt:         j.createdAt,
		ErrorKind:         j.errKind,
		ErrorDetail:       j.errDetail,
		BlockingMechanism: j.mechanism,
		RawOutput:         j.rawOutput,
		Result:            j.result,
	}
	if !j.startedAt.IsZero() {
		t := j.startedAt
		info.StartedAt = &t
	}
	if !j.endedAt.IsZero() {
		t := j.endedAt
		info.EndedAt = &t
	}
	return info
}

// Start moves a pending job to running and records a log event.
func (j *Job) Start() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.checkTransitionLocked(StatusRunning); err != nil {
		return err
	}
	if err := j.appendLocked(eventbus.LogEvent(eventbus.LevelInfo, fmt.Sprintf("%s job started", j.kind))); err != nil {
		return err
	}
	j.status = StatusRunning
	j.startedAt = j.now()
	return nil
}

// Log records a progress event without changing status.
func (j *Job) Log(level eventbus.Level, msg string) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.status.Terminal() {
		return fmt.Errorf("%w: log on %s job %s", ErrInternalFault, j.status, j.id)
	}
	return j.appendLocked(eventbus.LogEvent(level, msg))
}

// Complete stores result and ends the job as done.
func (j *Job) Complete(result any) error {
	if result == nil {
		return fmt.Errorf("%w: nil result for job %s", ErrInternalFault, j.id)
	}
	return j.finish(StatusDone, func() {
		j.result = result
	}, "")
}

// Fail ends the job with an error of the given kind.
func (j *Job) Fail(kind ErrorKind, detail string) error {
	return j.FailWithOutput(kind, detail, "")
}

// FailWithOutput is Fail that also keeps raw output for diagnostics.
func (j *Job) FailWithOutput(kind ErrorKind, detail, raw string) error {
	return j.finish(StatusError, func() {
		j.errKind = kind
		j.errDetail = detail
		j.rawOutput = raw
	}, detail)
}

// Block ends the job because the target refused to be probed.
func (j *Job) Block(mechanism string) error {
	return j.finish(StatusBlocked, func() {
		j.mechanism = mechanism
	}, "")
}

func (j *Job) finish(target Status, apply func(), errMsg string) error {
	j.mu.Lock()
	if err := j.checkTransitionLocked(target); err != nil {
		j.mu.Unlock()
		return err
	}
	// The status only changes once the done event is in the log.
	if err := j.appendLocked(eventbus.DoneEvent(string(target), errMsg)); err != nil {
		j.mu.Unlock()
		return err
	}
	j.status = target
	apply()
	j.endedAt = j.now()
	info := j.infoLocked()
	j.mu.Unlock()

	if j.onTerminal != nil {
		j.onTerminal(info)
	}
	return nil
}

func (j *Job) checkTransitionLocked(target Status) error {
	if err := j.status.ValidateTransition(target); err != nil {
		return fmt.Errorf("%w: job %s: %v", ErrInternalFault, j.id, err)
	}
	return nil
}

func (j *Job) appendLocked(ev eventbus.Event) error {
	if _, err := j.bus.Append(j.id, ev); err != nil {
		return fmt.Errorf("%w: append event for job %s: %v", ErrInternalFault, j.id, err)
	}
	return nil
}
