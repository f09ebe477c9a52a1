// Package retry computes whether and when a failed operation may be
// retried, using per-error-kind backoff schedules.
package retry

import (
	"sync"
	"time"

	"github.com/stefanochermazts/ChatbotPlatform-sub000/internal/errclass"
)

// Schedule is the backoff table for one error kind.
type Schedule struct {
	MaxAttempts       int
	BaseDelay         time.Duration
	BackoffMultiplier float64
}

// DefaultSchedules mirrors the reference retry tables. Rate-limit delays
// come from the server when provided; the base here is the fallback.
var DefaultSchedules = map[errclass.Kind]Schedule{
	errclass.KindNetwork:   {MaxAttempts: 3, BaseDelay: time.Second, BackoffMultiplier: 2},
	errclass.KindServer:    {MaxAttempts: 2, BaseDelay: 2 * time.Second, BackoffMultiplier: 1.5},
	errclass.KindTimeout:   {MaxAttempts: 2, BaseDelay: 1500 * time.Millisecond, BackoffMultiplier: 2},
	errclass.KindRateLimit: {MaxAttempts: 1, BaseDelay: errclass.DefaultRateLimitDelay, BackoffMultiplier: 1},
}

// defaultSchedule covers kinds without an explicit entry.
var defaultSchedule = Schedule{MaxAttempts: 1, BaseDelay: 5 * time.Second, BackoffMultiplier: 1}

// Decision is the engine's answer for one failure.
type Decision struct {
	// Retry is false when the error is not retryable or attempts are
	// exhausted; the caller must surface a terminal error instead.
	Retry bool
	// Delay to wait before the retry.
	Delay time.Duration
	// Attempt is the attempt number this decision authorizes (1-based).
	Attempt int
	// Exhausted distinguishes "never retryable" from "budget spent".
	Exhausted bool
}

type opState struct {
	kind     errclass.Kind
	attempts int
}

// Engine holds per-operation attempt counters. Counters are scoped per
// logical operation identity (for example, per outgoing message), so
// unrelated operations do not share backoff budgets.
type Engine struct {
	schedules map[errclass.Kind]Schedule

	mu    sync.Mutex
	state map[string]*opState
}

// NewEngine creates an engine with the default schedules.
func NewEngine() *Engine {
	return NewEngineWithSchedules(DefaultSchedules)
}

// NewEngineWithSchedules creates an engine with custom schedules.
func NewEngineWithSchedules(schedules map[errclass.Kind]Schedule) *Engine {
	return &Engine{
		schedules: schedules,
		state:     make(map[string]*opState),
	}
}

// ScheduleFor returns the schedule applied to kind.
func (e *Engine) ScheduleFor(kind errclass.Kind) Schedule {
	if s, ok := e.schedules[kind]; ok {
		return s
	}
	return defaultSchedule
}

// NextDelay computes the delay before attempt number attempt (1-based):
// baseDelay × backoffMultiplier^(attempt-1).
func (e *Engine) NextDelay(kind errclass.Kind, attempt int) time.Duration {
	s := e.ScheduleFor(kind)
	if attempt < 1 {
		attempt = 1
	}
	delay := float64(s.BaseDelay)
	for i := 1; i < attempt; i++ {
		delay *= s.BackoffMultiplier
	}
	return time.Duration(delay)
}

// Next records a failure of the given classification for the operation
// identified by opID and decides whether to retry.
//
// A change of error kind for the same operation resets the counter: the
// budget is per failed-operation-class, not per operation lifetime.
func (e *Engine) Next(opID string, c errclass.Classification) Decision {
	if !c.Retryable {
		return Decision{Retry: false}
	}

	e.mu.Lock()
	st, ok := e.state[opID]
	if !ok || st.kind != c.Kind {
		st = &opState{kind: c.Kind}
		e.state[opID] = st
	}
	st.attempts++
	attempt := st.attempts
	e.mu.Unlock()

	s := e.ScheduleFor(c.Kind)
	if attempt > s.MaxAttempts {
		return Decision{Retry: false, Attempt: attempt, Exhausted: true}
	}

	delay := e.NextDelay(c.Kind, attempt)
	if c.Kind == errclass.KindRateLimit && c.RetryAfter > 0 {
		delay = c.RetryAfter
	}

	return Decision{Retry: true, Delay: delay, Attempt: attempt}
}

// Reset clears the attempt counter for an operation, on success or on a
// manual "retry now".
func (e *Engine) Reset(opID string) {
	e.mu.Lock()
	delete(e.state, opID)
	e.mu.Unlock()
}

// Attempts returns the recorded attempt count for an operation.
func (e *Engine) Attempts(opID string) int {
	e.mu.Lock()
	defer e.mu.Unlock()
	if st, ok := e.state[opID]; ok {
		return st.attempts
	}
	return 0
}
