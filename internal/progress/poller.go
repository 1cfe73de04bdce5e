package progress

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	errs "github.com/alexjbarnes/relaydeck/internal/errors"
	"github.com/alexjbarnes/relaydeck/internal/metrics"
	"github.com/alexjbarnes/relaydeck/internal/notice"
	"github.com/alexjbarnes/relaydeck/upstream"
)

// JobAPI is the subset of the upstream client the poller needs.
//
//go:generate mockgen -source=poller.go -destination=mock_jobapi_test.go -package=progress
type JobAPI interface {
	ListAutomations(ctx context.Context) ([]upstream.Automation, error)
	PauseAutomation(ctx context.Context, id string) error
	ResumeAutomation(ctx context.Context, id string) error
	DeleteAutomation(ctx context.Context, id string) error
}

// Notifier surfaces transient failures to the operator.
type Notifier interface {
	Post(level notice.Level, msg string)
}

// PollerConfig controls refresh timing.
type PollerConfig struct {
	Interval     time.Duration
	LoadingFloor time.Duration
}

// Poller keeps the reconciler's collection in step with the job listing
// API. A 401 halts polling until a later manual Refresh succeeds; other
// failures post a notice and leave the collection as it was.
type Poller struct {
	api     JobAPI
	rec     *Reconciler
	notices Notifier
	cfg     PollerConfig
	logger  *slog.Logger

	mu           sync.Mutex
	loading      bool
	loadingGen   uint64
	authRequired bool
	lastRefresh  time.Time
}

// NewPoller creates a poller feeding rec.
func NewPoller(api JobAPI, rec *Reconciler, notices Notifier, cfg PollerConfig, logger *slog.Logger) *Poller {
	return &Poller{
		api:     api,
		rec:     rec,
		notices: notices,
		cfg:     cfg,
		logger:  logger,
	}
}

// Run refreshes immediately and then on every interval tick until ctx is
// cancelled. It returns an error wrapping ErrAuthRequired when the API
// rejects the token; other refresh errors do not stop it.
func (p *Poller) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		if err := p.Refresh(ctx); errors.Is(err, errs.ErrAuthRequired) {
			p.logger.Error("job polling halted, reauthentication required")
			return err
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Refresh fetches the job list and replaces the collection with it.
// Loading() stays true for at least the loading floor, measured from
// the start of the refresh, even if the fetch completes sooner.
func (p *Poller) Refresh(ctx context.Context) error {
	started := time.Now()
	gen := p.beginLoading()
	defer p.endLoading(gen, started)

	jobs, err := p.api.ListAutomations(ctx)
	if err != nil {
		if errors.Is(err, errs.ErrAuthRequired) {
			metrics.SnapshotRefreshTotal.WithLabelValues("auth").Inc()
			p.setAuthRequired(true)
			return err
		}

		metrics.SnapshotRefreshTotal.WithLabelValues("error").Inc()
		p.logger.Warn("job refresh failed", slog.String("error", err.Error()))
		p.notices.Post(notice.Error, "Failed to load automations")
		return err
	}

	p.rec.ReplaceSnapshot(jobs)
	metrics.SnapshotRefreshTotal.WithLabelValues("ok").Inc()

	p.mu.Lock()
	p.authRequired = false
	p.lastRefresh = time.Now()
	p.mu.Unlock()

	return nil
}

// Pause pauses a job and refreshes the list.
func (p *Poller) Pause(ctx context.Context, id string) error {
	return p.control(ctx, "pause", id, p.api.PauseAutomation)
}

// Resume resumes a job and refreshes the list.
func (p *Poller) Resume(ctx context.Context, id string) error {
	return p.control(ctx, "resume", id, p.api.ResumeAutomation)
}

// Delete deletes a job and refreshes the list.
func (p *Poller) Delete(ctx context.Context, id string) error {
	return p.control(ctx, "delete", id, p.api.DeleteAutomation)
}

// control runs a job mutation. The collection is never patched from the
// result; a successful mutation is always followed by a full refresh.
func (p *Poller) control(ctx context.Context, action, id string, op func(context.Context, string) error) error {
	if err := op(ctx, id); err != nil {
		if errors.Is(err, errs.ErrAuthRequired) {
			p.setAuthRequired(true)
			return err
		}

		p.logger.Warn("job control failed",
			slog.String("action", action),
			slog.String("id", id),
			slog.String("error", err.Error()),
		)
		p.notices.Post(notice.Error, fmt.Sprintf("Failed to %s automation", action))
		return err
	}

	p.logger.Info("job control applied", slog.String("action", action), slog.String("id", id))

	return p.Refresh(ctx)
}

// Loading reports whether a refresh is in progress or within its
// loading floor.
func (p *Poller) Loading() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.loading
}

// AuthRequired reports whether the last API call was rejected with 401.
func (p *Poller) AuthRequired() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.authRequired
}

// LastRefresh returns the completion time of the last successful
// refresh, or the zero time.
func (p *Poller) LastRefresh() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastRefresh
}

func (p *Poller) setAuthRequired(v bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.authRequired = v
}

func (p *Poller) beginLoading() uint64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loadingGen++
	p.loading = true
	return p.loadingGen
}

// endLoading clears the loading flag once the floor has elapsed, unless
// a newer refresh has started in the meantime.
func (p *Poller) endLoading(gen uint64, started time.Time) {
	finish := func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		if p.loadingGen == gen {
			p.loading = false
		}
	}

	if remaining := p.cfg.LoadingFloor - time.Since(started); remaining > 0 {
		time.AfterFunc(remaining, finish)
		return
	}
	finish()
}
