// Package scheduler fires the runner on a cron schedule.
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"

	portssvc "github.com/SscSPs/mma_recurring/internal/core/ports/services"
)

// Config controls when the runner fires.
type Config struct {
	// Spec is a 5 or 6 field cron expression or a descriptor such as "@daily".
	Spec        string
	Location    *time.Location
	TickTimeout time.Duration
	// RunOnStart fires one tick immediately so a restart catches up without waiting.
	RunOnStart bool
}

// Driver owns the cron instance.
type Driver struct {
	cfg    Config
	runner portssvc.RunnerSvc
	log    *slog.Logger
	parser cron.Parser
	clock  func() time.Time

	mu      sync.Mutex
	c       *cron.Cron
	cancel  context.CancelFunc
	running atomic.Bool
	wg      sync.WaitGroup
}

// New validates cfg.Spec and returns a stopped driver.
func New(cfg Config, runner portssvc.RunnerSvc, log *slog.Logger) (*Driver, error) {
	if runner == nil {
		return nil, errors.New("scheduler: runner is required")
	}
	if cfg.Location == nil {
		cfg.Location = time.UTC
	}
	d := &Driver{
		cfg:    cfg,
		runner: runner,
		log:    log.With(slog.String("component", "scheduler")),
		// SecondOptional allows both 5-field and 6-field (with seconds) cron specs.
		parser: cron.NewParser(cron.SecondOptional | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow | cron.Descriptor),
		clock:  time.Now,
	}
	if _, err := d.parser.Parse(cfg.Spec); err != nil {
		return nil, fmt.Errorf("scheduler: invalid cron spec %q: %w", cfg.Spec, err)
	}
	return d, nil
}

// Start registers the tick and starts cron. Calling Start twice is a no-op.
func (d *Driver) Start(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.c != nil {
		return nil
	}

	runCtx, cancel := context.WithCancel(ctx)
	cronLog := cron.PrintfLogger(slog.NewLogLogger(d.log.Handler(), slog.LevelWarn))
	c := cron.New(
		cron.WithParser(d.parser),
		cron.WithLocation(d.cfg.Location),
		cron.WithChain(cron.Recover(cronLog), cron.SkipIfStillRunning(cronLog)),
	)
	if _, err := c.AddFunc(d.cfg.Spec, func() { d.RunOnce(runCtx) }); err != nil {
		cancel()
		return fmt.Errorf("scheduler: register tick: %w", err)
	}
	d.c = c
	d.cancel = cancel
	c.Start()

	if d.cfg.RunOnStart {
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			d.RunOnce(runCtx)
		}()
	}
	d.log.Info("Scheduler started",
		slog.String("spec", d.cfg.Spec),
		slog.String("tz", d.cfg.Location.String()),
		slog.Time("next_run", d.nextLocked()))
	return nil
}

// RunOnce runs a single tick unless one is already in flight, in which case it
// returns false.
func (d *Driver) RunOnce(ctx context.Context) (report portssvc.TickReport, ran bool) {
	if !d.running.CompareAndSwap(false, true) {
		d.log.Warn("Previous tick still running, skipping")
		return portssvc.TickReport{}, false
	}
	defer d.running.Store(false)
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("panic in scheduler tick", slog.Any("panic", r), slog.String("stack", string(debug.Stack())))
			ran = false
		}
	}()

	if d.cfg.TickTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, d.cfg.TickTimeout)
		defer cancel()
	}
	report = d.runner.Tick(ctx, d.clock())
	d.log.Info("Scheduler tick finished",
		slog.String("date", report.Date.String()),
		slog.Int("scanned", report.Scanned),
		slog.Int("materialized", report.Materialized),
		slog.Int("skipped", report.Skipped),
		slog.Int("failures", len(report.Failures)),
		slog.Duration("took", report.Duration))
	return report, true
}

// Next returns the next planned fire time, or the zero time when stopped.
func (d *Driver) Next() time.Time {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.nextLocked()
}

func (d *Driver) nextLocked() time.Time {
	if d.c == nil {
		return time.Time{}
	}
	entries := d.c.Entries()
	if len(entries) == 0 {
		return time.Time{}
	}
	return entries[0].Next
}

// Stop stops cron and waits for a running tick, or until ctx is done.
func (d *Driver) Stop(ctx context.Context) error {
	d.mu.Lock()
	c, cancel := d.c, d.cancel
	d.c, d.cancel = nil, nil
	d.mu.Unlock()
	if c == nil {
		return nil
	}

	done := make(chan struct{})
	go func() {
		<-c.Stop().Done()
		d.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		cancel()
		d.log.Info("Scheduler stopped")
		return nil
	case <-ctx.Done():
		cancel()
		return ctx.Err()
	}
}
