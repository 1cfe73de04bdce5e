package progress

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/alexjbarnes/relaydeck/internal/metrics"
	"github.com/alexjbarnes/relaydeck/upstream"
)

// Reconciler owns the job collection. Every change publishes a new
// slice; a slice returned by Snapshot is never modified afterwards, so
// readers can hold it without locking.
type Reconciler struct {
	logger *slog.Logger

	mu   sync.RWMutex
	jobs []upstream.Automation
}

// NewReconciler creates an empty reconciler.
func NewReconciler(logger *slog.Logger) *Reconciler {
	return &Reconciler{logger: logger}
}

// Snapshot returns the current collection. Callers must treat it as
// read-only.
func (r *Reconciler) Snapshot() []upstream.Automation {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.jobs
}

// Job returns the job whose primary id is id.
func (r *Reconciler) Job(id string) (upstream.Automation, bool) {
	for _, job := range r.Snapshot() {
		if job.ID == id {
			return job, true
		}
	}
	return upstream.Automation{}, false
}

// ReplaceSnapshot installs rows as the authoritative collection. Jobs
// missing from rows are dropped, and fields rows omit are gone even if a
// push event set them earlier.
func (r *Reconciler) ReplaceSnapshot(rows []upstream.Automation) {
	next := slices.Clone(rows)

	r.mu.Lock()
	r.jobs = next
	r.mu.Unlock()

	metrics.JobsTracked.Set(float64(len(next)))
	r.logger.Debug("job snapshot replaced", slog.Int("jobs", len(next)))
}

// ApplyEvent merges ev into every job it matches and returns how many
// jobs changed. Events without identifiers are ignored.
func (r *Reconciler) ApplyEvent(ev Event) int {
	if !ev.Valid() {
		metrics.ProgressEventsTotal.WithLabelValues("malformed").Inc()
		r.logger.Debug("ignoring progress event without identifiers")
		return 0
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	var next []upstream.Automation
	matched := 0
	for i, job := range r.jobs {
		if !Matches(ev, job) {
			continue
		}
		if next == nil {
			next = slices.Clone(r.jobs)
		}
		next[i] = merge(job, ev)
		matched++
	}

	if matched == 0 {
		metrics.ProgressEventsTotal.WithLabelValues("unmatched").Inc()
		r.logger.Debug("progress event matched no job",
			slog.String("primary_id", ev.PrimaryID),
			slog.String("secondary_id", ev.SecondaryID),
		)
		return 0
	}

	r.jobs = next
	metrics.ProgressEventsTotal.WithLabelValues("matched").Inc()

	return matched
}

// merge returns a copy of job with every field present in ev
// overwritten. Pointer fields are reallocated so the original job
// value is never aliased.
func merge(job upstream.Automation, ev Event) upstream.Automation {
	if ev.Progress != nil {
		p := *ev.Progress
		job.Progress = &p
	}
	if ev.Status != nil {
		job.Status = *ev.Status
	}
	if ev.Message != nil {
		job.Message = *ev.Message
	}
	if ev.Current != nil {
		c := *ev.Current
		job.Current = &c
	}
	if ev.Total != nil {
		t := *ev.Total
		job.Total = &t
	}
	return job
}
