package demoserver

import (
	"fmt"
	"time"
)

// Level is how well the demo site is hardened.
type Level int

const (
	LevelWeak     Level = 1
	LevelPartial  Level = 2
	LevelHardened Level = 3
)

func (l Level) String() string {
	switch l {
	case LevelWeak:
		return "weak"
	case LevelPartial:
		return "partial"
	case LevelHardened:
		return "hardened"
	}
	return fmt.Sprintf("level(%d)", int(l))
}

// Valid reports whether l is one of the known levels.
func (l Level) Valid() bool {
	return l >= LevelWeak && l <= LevelHardened
}

// Config holds configuration for the demo server.
type Config struct {
	// Port is the port on which the demo server listens.
	Port int

	// Level is the starting hardening level for every page (default: weak).
	Level Level

	// WAF makes every page answer with a challenge until the client holds
	// the clearance cookie.
	WAF bool

	ShutdownTimeout time.Duration
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() Config {
	return Config{
		Port:            9999,
		Level:           LevelWeak,
		ShutdownTimeout: 5 * time.Second,
	}
}
