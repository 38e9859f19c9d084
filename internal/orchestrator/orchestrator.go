// Package orchestrator runs the polling loop: a bounded worker pool fetches
// every configured account each iteration, detected changes are dispatched,
// and per-account failures are recorded as alerts without touching siblings.
package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/gradewatch/gradewatch/internal/metrics"
	"github.com/gradewatch/gradewatch/internal/monitor"
	"github.com/gradewatch/gradewatch/internal/notify"
	"github.com/gradewatch/gradewatch/internal/session"
)

// State is the orchestrator lifecycle state.
type State string

// Lifecycle states. A stopped orchestrator may be started again; Start
// re-validates config and storage before relaunching the loop.
const (
	StateIdle    State = "idle"
	StateRunning State = "running"
	StateStopped State = "stopped"
)

// IterationConfig is the per-iteration configuration snapshot. The loop
// reloads it at the top of every iteration, so edits to the config file take
// effect without a restart.
type IterationConfig struct {
	Accounts       []monitor.Account
	Interval       time.Duration
	MaxConcurrency int
	TaskTimeout    time.Duration
	SessionTimeout time.Duration
	AutoResolve    bool
}

// ConfigSource supplies a fresh IterationConfig. A load failure keeps the
// previous snapshot in effect.
type ConfigSource func() (IterationConfig, error)

// Fetcher runs one complete fetch cycle for an account.
type Fetcher interface {
	Fetch(ctx context.Context, cfg session.Config, account monitor.Account) (monitor.Snapshot, error)
}

// Detector classifies a fresh snapshot against stored history.
type Detector interface {
	Detect(ctx context.Context, snap monitor.Snapshot) (monitor.ChangeSet, error)
}

// Dispatcher delivers events best-effort and reports how many went out.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []monitor.Event) int
}

// Orchestrator owns the polling loop lifecycle.
type Orchestrator struct {
	fetcher    Fetcher
	detector   Detector
	dispatcher Dispatcher
	snapshots  monitor.SnapshotStore
	alerts     monitor.AlertStore
	clock      monitor.Clock
	configFn   ConfigSource
	logger     *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

// New wires an Orchestrator. All collaborators are required.
func New(
	fetcher Fetcher,
	detector Detector,
	dispatcher Dispatcher,
	snapshots monitor.SnapshotStore,
	alerts monitor.AlertStore,
	clock monitor.Clock,
	configFn ConfigSource,
	logger *zap.Logger,
) (*Orchestrator, error) {
	if fetcher == nil || detector == nil || dispatcher == nil {
		return nil, fmt.Errorf("fetcher, detector and dispatcher are required")
	}
	if snapshots == nil || alerts == nil {
		return nil, fmt.Errorf("snapshot and alert stores are required")
	}
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if configFn == nil {
		return nil, fmt.Errorf("config source is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	metrics.Init()
	return &Orchestrator{
		fetcher:    fetcher,
		detector:   detector,
		dispatcher: dispatcher,
		snapshots:  snapshots,
		alerts:     alerts,
		clock:      clock,
		configFn:   configFn,
		logger:     logger,
		state:      StateIdle,
	}, nil
}

// Start validates the initial configuration and storage reachability, then
// launches the polling loop. Calling Start on a running orchestrator is a
// no-op.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state == StateRunning {
		o.logger.Debug("start ignored, already running")
		return nil
	}
	// A stopped loop may still be draining in-flight tasks. Refuse to
	// relaunch until it has fully exited so no account ever has two workers.
	if o.done != nil {
		select {
		case <-o.done:
		default:
			return fmt.Errorf("previous run still draining")
		}
	}

	cfg, err := o.configFn()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	if err := o.snapshots.Ping(ctx); err != nil {
		return fmt.Errorf("snapshot store unreachable: %w", err)
	}
	if err := o.alerts.Ping(ctx); err != nil {
		return fmt.Errorf("alert store unreachable: %w", err)
	}

	runCtx, cancel := context.WithCancel(context.Background())
	o.cancel = cancel
	o.done = make(chan struct{})
	o.state = StateRunning

	go o.run(runCtx, cfg)
	o.logger.Info("orchestrator started",
		zap.Int("accounts", len(cfg.Accounts)),
		zap.Duration("interval", cfg.Interval))
	return nil
}

// Stop signals the loop to exit and returns immediately. In-flight account
// tasks finish; the inter-iteration wait is interrupted. Calling Stop when
// not running is a no-op.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.state != StateRunning {
		return
	}
	o.cancel()
	o.state = StateStopped
	o.logger.Info("orchestrator stopping")
}

// IsRunning reports whether the loop is active.
func (o *Orchestrator) IsRunning() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state == StateRunning
}

// StateNow returns the current lifecycle state.
func (o *Orchestrator) StateNow() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// Done returns a channel closed when the loop has fully exited.
func (o *Orchestrator) Done() <-chan struct{} {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.done
}

// RunOnce executes a single iteration synchronously. Used by the one-shot
// check command; the loop state machine is not involved.
func (o *Orchestrator) RunOnce(ctx context.Context) error {
	cfg, err := o.configFn()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if len(cfg.Accounts) == 0 {
		return fmt.Errorf("no accounts configured")
	}
	o.iterate(ctx, cfg)
	return nil
}

func (o *Orchestrator) run(ctx context.Context, cfg IterationConfig) {
	defer close(o.done)

	for {
		o.iterate(ctx, cfg)
		metrics.ObserveIteration()

		select {
		case <-ctx.Done():
			o.logger.Info("orchestrator stopped")
			return
		case <-time.After(cfg.Interval):
		}

		cfg = o.reload(cfg)
	}
}

// reload fetches a fresh config snapshot. On failure the previous snapshot
// stays in effect.
func (o *Orchestrator) reload(prev IterationConfig) IterationConfig {
	cfg, err := o.configFn()
	if err != nil {
		o.logger.Warn("config reload failed, keeping previous settings", zap.Error(err))
		return prev
	}
	if len(cfg.Accounts) == 0 {
		o.logger.Warn("config reload produced no accounts, keeping previous settings")
		return prev
	}
	return cfg
}

// iterate runs one polling pass: every account gets exactly one task on a
// pool bounded by min(MaxConcurrency, len(accounts)). The barrier waits at
// most TaskTimeout per task; a task that ignores its expired context is
// counted as failed and abandoned so one stuck account cannot stall the
// iteration indefinitely.
func (o *Orchestrator) iterate(ctx context.Context, cfg IterationConfig) {
	poolSize := cfg.MaxConcurrency
	if len(cfg.Accounts) < poolSize {
		poolSize = len(cfg.Accounts)
	}
	if poolSize < 1 {
		poolSize = 1
	}

	type task struct {
		account monitor.Account
		done    chan struct{}
	}

	sem := make(chan struct{}, poolSize)
	tasks := make([]task, 0, len(cfg.Accounts))
	for _, account := range cfg.Accounts {
		t := task{account: account, done: make(chan struct{})}
		tasks = append(tasks, t)
		go func(account monitor.Account, done chan struct{}) {
			defer close(done)
			sem <- struct{}{}
			defer func() { <-sem }()

			metrics.IncActiveWorkers()
			defer metrics.DecActiveWorkers()

			taskCtx := ctx
			if cfg.TaskTimeout > 0 {
				var cancel context.CancelFunc
				taskCtx, cancel = context.WithTimeout(ctx, cfg.TaskTimeout)
				defer cancel()
			}
			o.processAccount(taskCtx, cfg, account)
		}(t.account, t.done)
	}

	for _, t := range tasks {
		if cfg.TaskTimeout <= 0 {
			<-t.done
			continue
		}
		select {
		case <-t.done:
		case <-time.After(cfg.TaskTimeout):
			o.logger.Warn("task exceeded timeout, abandoning wait",
				zap.String("account_id", t.account.ID),
				zap.Duration("timeout", cfg.TaskTimeout))
			metrics.ObserveAccount("timeout", cfg.TaskTimeout)
		}
	}

	o.publishAlertBacklog(ctx)
}

// processAccount runs fetch, detect and dispatch for one account. Every
// failure is absorbed here so sibling accounts always run.
func (o *Orchestrator) processAccount(ctx context.Context, cfg IterationConfig, account monitor.Account) {
	start := o.clock.Now()
	log := o.logger.With(zap.String("account_id", account.ID))

	snap, err := o.fetcher.Fetch(ctx, session.Config{
		Timeout:     cfg.SessionTimeout,
		AutoResolve: cfg.AutoResolve,
	}, account)
	if err != nil {
		o.handleFetchFailure(ctx, account, err, log)
		metrics.ObserveAccount("error", o.clock.Now().Sub(start))
		return
	}

	changes, err := o.detector.Detect(ctx, snap)
	if err != nil {
		log.Error("change detection failed", zap.Error(err))
		metrics.ObserveAccount("error", o.clock.Now().Sub(start))
		return
	}
	metrics.ObserveChanges(len(changes.New), len(changes.Updated), len(changes.Removed))

	if changes.Empty() {
		log.Debug("no changes detected")
		metrics.ObserveAccount("ok", o.clock.Now().Sub(start))
		return
	}

	events := notify.EventsFromChangeSet(account.ID, changes, o.clock)
	delivered := o.dispatcher.Dispatch(ctx, events)
	metrics.ObserveNotifications(delivered, len(events)-delivered)
	log.Info("changes dispatched",
		zap.Int("new", len(changes.New)),
		zap.Int("updated", len(changes.Updated)),
		zap.Int("removed", len(changes.Removed)),
		zap.Int("delivered", delivered))
	metrics.ObserveAccount("ok", o.clock.Now().Sub(start))
}

// handleFetchFailure records the matching alert kind and dispatches a single
// alert event. Alert store failures are logged; they never escalate. A fetch
// that failed only because the run was cancelled (shutdown) records nothing:
// the account did not fail, the process is going away.
func (o *Orchestrator) handleFetchFailure(ctx context.Context, account monitor.Account, ferr error, log *zap.Logger) {
	if errors.Is(ferr, context.Canceled) {
		log.Debug("fetch cycle cancelled", zap.Error(ferr))
		return
	}
	kind := monitor.AlertFetchError
	if errors.Is(ferr, monitor.ErrBlockingCondition) {
		kind = monitor.AlertBlockingCondition
	}
	log.Warn("fetch cycle failed",
		zap.String("alert_kind", string(kind)),
		zap.Error(ferr))

	if err := o.alerts.Record(ctx, account.ID, kind, ferr.Error()); err != nil {
		log.Error("alert record failed", zap.Error(err))
	}
	evt := notify.EventFromAlert(monitor.AlertRecord{
		AccountID: account.ID,
		Kind:      kind,
		Detail:    ferr.Error(),
		CreatedAt: o.clock.Now(),
	})
	delivered := o.dispatcher.Dispatch(ctx, []monitor.Event{evt})
	metrics.ObserveNotifications(delivered, 1-delivered)
}

// publishAlertBacklog refreshes the outstanding-alerts gauges. An unreadable
// store reads as empty.
func (o *Orchestrator) publishAlertBacklog(ctx context.Context) {
	for _, kind := range []monitor.AlertKind{monitor.AlertBlockingCondition, monitor.AlertFetchError} {
		recs, err := o.alerts.Get(ctx, kind)
		if err != nil {
			o.logger.Warn("alert backlog read failed",
				zap.String("kind", string(kind)),
				zap.Error(err))
			continue
		}
		metrics.SetAlertsOutstanding(string(kind), len(recs))
	}
}
