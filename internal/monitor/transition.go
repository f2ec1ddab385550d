package monitor

import (
	"math"

	"github.com/openmined/bridgemon/internal/probe"
	"github.com/openmined/bridgemon/internal/state"
)

// Decision is what a single observation does to the failure streak.
type Decision struct {
	Next    state.MonitorState
	Restart bool
	Alert   bool
}

// Transition applies one observation to the prior record.
//
//	healthy                -> {0, "healthy"}, no action
//	failure, prior == 0    -> {1, reason}, restart
//	failure, prior >= 1    -> {prior+1, reason}, restart then alert
//
// The reason is always the latest observation's, never the first.
func Transition(prior state.MonitorState, obs probe.Observation) Decision {
	if obs.Healthy() {
		return Decision{Next: state.MonitorState{Failures: 0, Reason: state.ReasonHealthy}}
	}

	reason := state.CleanReason(obs.Reason)
	if reason == "" {
		reason = probe.ReasonUnknown
	}

	failures := prior.Failures
	if failures < math.MaxInt {
		failures++
	}

	return Decision{
		Next:    state.MonitorState{Failures: failures, Reason: reason},
		Restart: true,
		Alert:   prior.Failures >= 1,
	}
}
