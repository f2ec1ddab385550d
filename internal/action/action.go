// Package action holds the remediation capabilities a monitor run can invoke:
// restart on every failure, alert once the failure streak escalates.
package action

import (
	"context"
	"errors"
	"log/slog"
	"strconv"
	"time"
)

// Kind tells an action why it is being invoked.
type Kind string

const (
	KindRestart Kind = "restart"
	KindAlert   Kind = "alert"
)

// Event is the context handed to an action.
type Event struct {
	Kind     Kind      `json:"event"`
	Reason   string    `json:"reason"`
	Failures int       `json:"failures"`
	URL      string    `json:"url"`
	RunID    string    `json:"run_id"`
	Time     time.Time `json:"time"`
}

// Environ renders the event as environment entries for subprocess actions.
func (e Event) Environ() []string {
	return []string{
		"BRIDGEMON_EVENT=" + string(e.Kind),
		"BRIDGEMON_REASON=" + e.Reason,
		"BRIDGEMON_FAILURES=" + strconv.Itoa(e.Failures),
		"BRIDGEMON_URL=" + e.URL,
		"BRIDGEMON_RUN_ID=" + e.RunID,
	}
}

func (e Event) LogValue() slog.Value {
	return slog.GroupValue(
		slog.String("kind", string(e.Kind)),
		slog.String("reason", e.Reason),
		slog.Int("failures", e.Failures),
	)
}

// Action is an opaque remediation step. Errors are reported, never acted on.
type Action interface {
	Name() string
	Run(ctx context.Context, ev Event) error
}

// Func adapts a plain function to Action.
type Func func(ctx context.Context, ev Event) error

func (f Func) Name() string { return "func" }

func (f Func) Run(ctx context.Context, ev Event) error { return f(ctx, ev) }

// Noop does nothing. It is the default when no action is configured.
type Noop struct{}

func (Noop) Name() string { return "noop" }
func (Noop) Run(context.Context, Event) error { return nil }

// Multi runs every action in order, even when an earlier one fails.
type Multi []Action

func (m Multi) Name() string {
	name := "multi["
	for i, a := range m {
		if i > 0 {
			name += ","
		}
		name += a.Name()
	}
	return name + "]"
}

func (m Multi) Run(ctx context.Context, ev Event) error {
	var errs []error
	for _, a := range m {
		if err := a.Run(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Combine drops Noops and collapses the rest into a single Action.
func Combine(actions ...Action) Action {
	var kept Multi
	for _, a := range actions {
		if a == nil {
			continue
		}
		if _, ok := a.(Noop); ok {
			continue
		}
		kept = append(kept, a)
	}

	switch len(kept) {
	case 0:
		return Noop{}
	case 1:
		return kept[0]
	default:
		return kept
	}
}
