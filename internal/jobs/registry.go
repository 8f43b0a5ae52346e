// Package jobs tracks in-flight enrichment jobs so they can be cancelled by id.
//
// Each job is an independent record owned by the Registry and handed to the runner
// by reference. Cancelling one job never touches another. Records live only for the
// lifetime of the process.
package jobs

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

// ErrJobExists is returned by Start when a live job already uses the id.
var ErrJobExists = errors.New("job already exists")

// Job is one end-to-end run over one table.
type Job struct {
	id      string
	started time.Time

	ctx    context.Context
	cancel context.CancelFunc

	cancelled atomic.Bool
	completed atomic.Int64
	total     atomic.Int64
}

// ID returns the process id.
func (j *Job) ID() string { return j.id }

// Started returns when the job was registered.
func (j *Job) Started() time.Time { return j.started }

// Context is cancelled when the job is cancelled or removed. Provider calls made on
// behalf of the job use it as their abort handle.
func (j *Job) Context() context.Context { return j.ctx }

// Cancel sets the cancelled flag and aborts the job context. It reports whether this
// call was the one that cancelled the job.
func (j *Job) Cancel() bool {
	if !j.cancelled.CompareAndSwap(false, true) {
		return false
	}
	j.cancel()
	return true
}

// Cancelled reports whether cancellation was requested.
func (j *Job) Cancelled() bool { return j.cancelled.Load() }

// SetTotal records the number of rows the job will visit.
func (j *Job) SetTotal(n int) { j.total.Store(int64(n)) }

// Advance records one more completed row.
func (j *Job) Advance() { j.completed.Add(1) }

// Progress returns completed and total row counts.
func (j *Job) Progress() (completed, total int) {
	return int(j.completed.Load()), int(j.total.Load())
}

// Registry is a concurrent map of live jobs keyed by process id.
type Registry struct {
	mu   sync.RWMutex
	jobs map[string]*Job
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{jobs: make(map[string]*Job)}
}

// Start registers a new job. An empty id is replaced with a random UUID. The job
// context derives from ctx.
func (r *Registry) Start(ctx context.Context, id string) (*Job, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		id = uuid.NewString()
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.jobs[id]; ok {
		return nil, ErrJobExists
	}
	jobCtx, cancel := context.WithCancel(ctx)
	j := &Job{
		id:      id,
		started: time.Now(),
		ctx:     jobCtx,
		cancel:  cancel,
	}
	r.jobs[id] = j
	return j, nil
}

// Get returns the live job with id.
func (r *Registry) Get(id string) (*Job, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	j, ok := r.jobs[id]
	return j, ok
}

// RequestCancel cancels the named job. It reports whether a live job was found;
// an unknown or finished id is not an error.
func (r *Registry) RequestCancel(id string) bool {
	j, ok := r.Get(id)
	if !ok {
		return false
	}
	j.Cancel()
	return true
}

// IsCancelled reports whether the named live job has been cancelled.
func (r *Registry) IsCancelled(id string) bool {
	j, ok := r.Get(id)
	return ok && j.Cancelled()
}

// Remove drops the job record and releases its context. Removing an unknown id is a
// no-op.
func (r *Registry) Remove(id string) {
	r.mu.Lock()
	j, ok := r.jobs[id]
	if ok {
		delete(r.jobs, id)
	}
	r.mu.Unlock()
	if ok {
		j.cancel()
	}
}

// Finish removes j if it is still the registered job for its id.
func (r *Registry) Finish(j *Job) {
	r.mu.Lock()
	if cur, ok := r.jobs[j.id]; ok && cur == j {
		delete(r.jobs, j.id)
	}
	r.mu.Unlock()
	j.cancel()
}

// Active returns the ids of live jobs, sorted.
func (r *Registry) Active() []string {
	r.mu.RLock()
	ids := make([]string, 0, len(r.jobs))
	for id := range r.jobs {
		ids = append(ids, id)
	}
	r.mu.RUnlock()
	sort.Strings(ids)
	return ids
}
