package system

import (
	"sync"
	"time"
)

// SupervisorDirective is what a parent decides after a child reports a
// Failure (spec.md §4.2): "a Restart sends Recreate to every affected
// sibling; if the Recreate send fails, the failure is re-raised to the
// grandparent."
type SupervisorDirective int

const (
	DirectiveRestart SupervisorDirective = iota
	DirectiveStop
	DirectiveEscalate
)

// FailureOutcome records what ultimately happened to a reported failure,
// for the failure_restart_total/failure_stop_total/failure_escalate_total
// counters in spec.md §4.2.
type FailureOutcome int

const (
	OutcomeRestart FailureOutcome = iota
	OutcomeStop
	OutcomeEscalate
)

// RestartStatistics tracks restart attempts within a sliding window, in the
// style of protoactor-go's RestartStatistics: a failure count plus the time
// of the first failure in the current window, reset once the window has
// elapsed without reaching the limit.
type RestartStatistics struct {
	mu             sync.Mutex
	failureCount   int
	windowStart    time.Time
	hasWindowStart bool
}

func NewRestartStatistics() *RestartStatistics {
	return &RestartStatistics{}
}

// Fail records one more failure and returns the number of failures
// recorded within the window ending at now.
func (rs *RestartStatistics) Fail(now time.Time, window time.Duration) int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	if !rs.hasWindowStart || (window > 0 && now.Sub(rs.windowStart) > window) {
		rs.windowStart = now
		rs.hasWindowStart = true
		rs.failureCount = 0
	}
	rs.failureCount++
	return rs.failureCount
}

// Reset clears the failure count, e.g. after a successful restart.
func (rs *RestartStatistics) Reset() {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.failureCount = 0
	rs.hasWindowStart = false
}

// Snapshot returns the current failure count without mutating state.
func (rs *RestartStatistics) Snapshot() int {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return rs.failureCount
}

// SupervisorStrategy decides the directive for a child failure given its
// restart statistics. maxRestarts <= 0 means unlimited.
type SupervisorStrategy struct {
	MaxRestarts  int
	Within       time.Duration
	OnFailure    func(err error) SupervisorDirective
}

func DefaultSupervisorStrategy() SupervisorStrategy {
	return SupervisorStrategy{
		MaxRestarts: 10,
		Within:      time.Minute,
		OnFailure:   func(error) SupervisorDirective { return DirectiveRestart },
	}
}

// Decide applies the strategy: if the failure is fatal, always stop; else
// ask OnFailure, but escalate once MaxRestarts is exceeded within Within.
func (s SupervisorStrategy) Decide(err *ActorError, stats *RestartStatistics, now time.Time) SupervisorDirective {
	if err != nil && err.Kind == ActorErrorFatal {
		return DirectiveStop
	}
	directive := DirectiveRestart
	if s.OnFailure != nil {
		var plain error
		if err != nil {
			plain = err
		}
		directive = s.OnFailure(plain)
	}
	if directive == DirectiveRestart && s.MaxRestarts > 0 && stats != nil {
		count := stats.Fail(now, s.Within)
		if count > s.MaxRestarts {
			return DirectiveEscalate
		}
	}
	return directive
}
