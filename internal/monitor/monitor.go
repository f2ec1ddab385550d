// Package monitor runs one health observation through the failure state
// machine and triggers remediation.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/openmined/bridgemon/internal/action"
	"github.com/openmined/bridgemon/internal/probe"
	"github.com/openmined/bridgemon/internal/state"
)

const (
	ExitHealthy   = 0
	ExitUnhealthy = 1
)

var (
	ErrPersist   = errors.New("monitor: state not persisted")
	ErrNoStore   = errors.New("monitor: state store missing")
	ErrNoChecker = errors.New("monitor: checker missing")
)

// Checker performs one bounded health check.
type Checker interface {
	Check(ctx context.Context) probe.Observation
	URL() string
}

// Store is where the failure record lives between runs.
type Store interface {
	Load() state.MonitorState
	Save(state.MonitorState) error
	Lock(ctx context.Context) error
	Unlock() error
}

type Options struct {
	Checker Checker
	Store   Store
	Restart action.Action
	Alert   action.Action

	// Lock guards the read-modify-write cycle against an overlapping run.
	Lock        bool
	LockTimeout time.Duration
}

type Monitor struct {
	checker     Checker
	store       Store
	restart     action.Action
	alert       action.Action
	lock        bool
	lockTimeout time.Duration
	now         func() time.Time
}

func New(opts Options) (*Monitor, error) {
	if opts.Store == nil {
		return nil, ErrNoStore
	}
	if opts.Checker == nil {
		return nil, ErrNoChecker
	}
	if opts.Restart == nil {
		opts.Restart = action.Noop{}
	}
	if opts.Alert == nil {
		opts.Alert = action.Noop{}
	}
	if opts.LockTimeout <= 0 {
		opts.LockTimeout = 5 * time.Second
	}

	return &Monitor{
		checker:     opts.Checker,
		store:       opts.Store,
		restart:     opts.Restart,
		alert:       opts.Alert,
		lock:        opts.Lock,
		lockTimeout: opts.LockTimeout,
		now:         time.Now,
	}, nil
}

// Result describes one completed run.
type Result struct {
	RunID       string
	Observation probe.Observation
	Prior       state.MonitorState
	Next        state.MonitorState
	Restarted   bool
	Alerted     bool
}

// ExitCode is 0 for a healthy observation and 1 otherwise, regardless of what
// the actions did.
func (r Result) ExitCode() int {
	if r.Observation.Healthy() {
		return ExitHealthy
	}
	return ExitUnhealthy
}

// Run performs a single monitor run. Health failures are folded into the
// Result; only lock and persistence failures are returned as errors.
func (m *Monitor) Run(ctx context.Context) (Result, error) {
	var res Result
	res.RunID = uuid.NewString()
	log := slog.With("run", res.RunID)

	if m.lock {
		lockCtx, cancel := context.WithTimeout(ctx, m.lockTimeout)
		lerr := m.store.Lock(lockCtx)
		cancel()
		if lerr != nil {
			return res, lerr
		}
		defer func() {
			if uerr := m.store.Unlock(); uerr != nil {
				log.Warn("state unlock failed", "error", uerr)
			}
		}()
	}

	res.Prior = m.store.Load()
	res.Observation = m.checker.Check(ctx)
	log.Info("health observed", "url", m.checker.URL(), "observation", res.Observation, "prior", res.Prior)

	d := Transition(res.Prior, res.Observation)
	res.Next = d.Next

	ev := action.Event{
		Reason:   d.Next.Reason,
		Failures: d.Next.Failures,
		URL:      m.checker.URL(),
		RunID:    res.RunID,
		Time:     m.now(),
	}

	if d.Restart {
		ev.Kind = action.KindRestart
		m.invoke(ctx, log, m.restart, ev)
		res.Restarted = true
	}
	if d.Alert {
		ev.Kind = action.KindAlert
		m.invoke(ctx, log, m.alert, ev)
		res.Alerted = true
	}

	if err := m.store.Save(res.Next); err != nil {
		log.Error("state persist failed", "error", err)
		return res, fmt.Errorf("%w: %w", ErrPersist, err)
	}

	if res.Observation.Healthy() {
		if !res.Prior.Healthy() {
			log.Info("bridge recovered", "after_failures", res.Prior.Failures)
		}
	} else {
		log.Warn("bridge not healthy", "state", res.Next, "restart", d.Restart, "alert", d.Alert)
	}

	return res, nil
}

// invoke runs an action fire-and-forget; its error is logged and dropped.
func (m *Monitor) invoke(ctx context.Context, log *slog.Logger, a action.Action, ev action.Event) {
	log.Info("invoking action", "action", a.Name(), "event", ev)
	if err := a.Run(ctx, ev); err != nil {
		log.Error("action failed", "action", a.Name(), "kind", ev.Kind, "error", err)
	}
}
