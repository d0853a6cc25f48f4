package eventbus

import "time"

// Type distinguishes progress events from the terminal one.
type Type string

const (
	TypeLog  Type = "log"
	TypeDone Type = "done"
)

// Level is the severity of a log event. LevelStream marks raw provider output.
type Level string

const (
	LevelDebug  Level = "debug"
	LevelInfo   Level = "info"
	LevelWarn   Level = "warn"
	LevelError  Level = "error"
	LevelStream Level = "stream"
)

// LogPayload is the body of a log event.
type LogPayload struct {
	Level   Level  `json:"level"`
	Message string `json:"message"`
}

// DonePayload is the body of the final event of a job.
type DonePayload struct {
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// Event is one entry of a job's log. JobID, Seq and (if zero) Timestamp are
// assigned by the bus on Append.
type Event struct {
	JobID     string       `json:"job_id"`
	Seq       uint64       `json:"seq"`
	Type      Type         `json:"type"`
	Timestamp time.Time    `json:"timestamp"`
	Log       *LogPayload  `json:"log,omitempty"`
	Done      *DonePayload `json:"done,omitempty"`
}

// LogEvent builds a log event.
func LogEvent(level Level, msg string) Event {
	return Event{Type: TypeLog, Log: &LogPayload{Level: level, Message: msg}}
}

// DoneEvent builds the terminal event carrying the job's final status.
func DoneEvent(status, errMsg string) Event {
	return Event{Type: TypeDone, Done: &DonePayload{Status: status, Error: errMsg}}
}
