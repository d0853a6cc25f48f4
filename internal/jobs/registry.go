// Package jobs holds the job state machine and the process-wide registry of
// jobs. Every status transition is mirrored onto the job's event log.
package jobs

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/raysh454/auditai/internal/eventbus"
	"github.com/raysh454/auditai/internal/logging"
)

// DefaultRetention is how long terminal jobs stay queryable.
const DefaultRetention = time.Hour

// RegistryConfig tunes retention. Retention 0 keeps jobs forever.
type RegistryConfig struct {
	Retention time.Duration
	Now       func() time.Time
}

// Params carries the inputs a job was created with.
type Params struct {
	Target   string
	ScanID   string
	Provider string
}

// Registry owns every job of the process.
type Registry struct {
	bus       *eventbus.Bus
	logger    logging.Logger
	retention time.Duration
	now       func() time.Time

	mu   sync.RWMutex
	jobs map[string]*Job

	hooksMu sync.RWMutex
	hooks   []func(Info)
}

func NewRegistry(bus *eventbus.Bus, cfg RegistryConfig, logger logging.Logger) *Registry {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Registry{
		bus:       bus,
		logger:    logger.With(logging.Field{Key: "component", Value: "jobs"}),
		retention: cfg.Retention,
		now:       now,
		jobs:      make(map[string]*Job),
	}
}

// Bus returns the event bus jobs publish to.
func (r *Registry) Bus() *eventbus.Bus { return r.bus }

// OnTerminal registers fn to be called once for every job reaching a
// terminal state. fn runs on the job's goroutine and must not block long.
func (r *Registry) OnTerminal(fn func(Info)) {
	r.hooksMu.Lock()
	defer r.hooksMu.Unlock()
	r.hooks = append(r.hooks, fn)
}

// Create registers a new pending job and opens its event log.
func (r *Registry) Create(kind Kind, p Params) *Job {
	job := &Job{
		id:        uuid.New().String(),
		kind:      kind,
		target:    p.Target,
		scanID:    p.ScanID,
		provider:  p.Provider,
		status:    StatusPending,
		createdAt: r.now().UTC(),
		bus:       r.bus,
		now:       func() time.Time { return r.now().UTC() },
	}
	job.onTerminal = r.notifyTerminal

	r.bus.Open(job.id)
	r.mu.Lock()
	r.jobs[job.id] = job
	r.mu.Unlock()

	r.logger.Debug("job created",
		logging.Field{Key: "job_id", Value: job.id},
		logging.Field{Key: "kind", Value: string(kind)})
	return job
}

func (r *Registry) notifyTerminal(info Info) {
	r.hooksMu.RLock()
	hooks := make([]func(Info), len(r.hooks))
	copy(hooks, r.hooks)
	r.hooksMu.RUnlock()

	r.logger.Info("job finished",
		logging.Field{Key: "job_id", Value: info.ID},
		logging.Field{Key: "kind", Value: string(info.Kind)},
		logging.Field{Key: "status", Value: string(info.Status)})
	for _, h := range hooks {
		h(info)
	}
}

// Get returns the job with id or ErrNotFound.
func (r *Registry) Get(id string) (*Job, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	job, ok := r.jobs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return job, nil
}

// List returns info for every job of kind (all kinds when empty), newest first.
func (r *Registry) List(kind Kind) []Info {
	r.mu.RLock()
	out := make([]Info, 0, len(r.jobs))
	for _, job := range r.jobs {
		if kind != "" && job.kind != kind {
			continue
		}
		out = append(out, job.Info())
	}
	r.mu.RUnlock()

	sort.Slice(out, func(i, k int) bool {
		return out[i].CreatedAt.After(out[k].CreatedAt)
	})
	return out
}

// Sweep evicts terminal jobs that ended more than the retention window
// before now, along with their event logs. It returns the number evicted.
func (r *Registry) Sweep(now time.Time) int {
	if r.retention <= 0 {
		return 0
	}
	cutoff := now.Add(-r.retention)

	var expired []string
	r.mu.Lock()
	for id, job := range r.jobs {
		info := job.Info()
		if info.Status.Terminal() && info.EndedAt != nil && info.EndedAt.Before(cutoff) {
			expired = append(expired, id)
			delete(r.jobs, id)
		}
	}
	r.mu.Unlock()

	for _, id := range expired {
		r.bus.Remove(id)
	}
	if len(expired) > 0 {
		r.logger.Debug("evicted expired jobs", logging.Field{Key: "count", Value: len(expired)})
	}
	return len(expired)
}

// Run sweeps every interval until ctx is done.
func (r *Registry) Run(ctx context.Context, interval time.Duration) {
	if r.retention <= 0 || interval <= 0 {
		return
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Sweep(r.now())
		}
	}
}
