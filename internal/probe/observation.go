package probe

import (
	"log/slog"
	"time"
)

// Outcome classifies a single health check.
type Outcome int

const (
	Healthy Outcome = iota
	Unhealthy
	Unreachable
)

const (
	ReasonHealthy     = "healthy"
	ReasonUnknown     = "unknown"
	ReasonUnreachable = "unreachable"
)

func (o Outcome) String() string {
	switch o {
	case Healthy:
		return "healthy"
	case Unhealthy:
		return "unhealthy"
	case Unreachable:
		return "unreachable"
	default:
		return "unknown"
	}
}

// Observation is the result of one check. It is never persisted.
type Observation struct {
	Outcome    Outcome
	Reason     string        // "healthy", the endpoint's status, "unknown" or "unreachable"
	StatusCode int           // 0 when no response arrived
	Latency    time.Duration
	Err        error // transport or decode error, if any
}

func (o Observation) Healthy() bool {
	return o.Outcome == Healthy
}

func (o Observation) LogValue() slog.Value {
	attrs := []slog.Attr{
		slog.String("outcome", o.Outcome.String()),
		slog.String("reason", o.Reason),
		slog.Duration("latency", o.Latency),
	}
	if o.StatusCode != 0 {
		attrs = append(attrs, slog.Int("status_code", o.StatusCode))
	}
	if o.Err != nil {
		attrs = append(attrs, slog.String("error", o.Err.Error()))
	}
	return slog.GroupValue(attrs...)
}

func healthy() Observation {
	return Observation{Outcome: Healthy, Reason: ReasonHealthy}
}

func unhealthy(reason string) Observation {
	if reason == "" {
		reason = ReasonUnknown
	}
	return Observation{Outcome: Unhealthy, Reason: reason}
}

func unreachable(err error) Observation {
	return Observation{Outcome: Unreachable, Reason: ReasonUnreachable, Err: err}
}
