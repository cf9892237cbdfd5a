package fetch

import (
	"context"
	"math"
	"math/rand/v2"
	"net/http"
	"time"

	"gamecatalog/internal/config"
)

// Class is the retry classification of one upstream response.
type Class int

const (
	ClassOK Class = iota
	ClassQueued
	ClassThrottled
	ClassForbidden
	ClassMalformed
	ClassOther
)

func (c Class) String() string {
	switch c {
	case ClassOK:
		return "ok"
	case ClassQueued:
		return "queued"
	case ClassThrottled:
		return "throttled"
	case ClassForbidden:
		return "forbidden"
	case ClassMalformed:
		return "malformed"
	default:
		return "other"
	}
}

// Classify maps a response to a Class. parseErr is only consulted for 2xx
// statuses other than 202.
func Classify(status int, transportErr, parseErr error) Class {
	if transportErr != nil {
		return ClassOther
	}
	switch {
	case status == http.StatusAccepted:
		return ClassQueued
	case status == http.StatusTooManyRequests, status == http.StatusServiceUnavailable:
		return ClassThrottled
	case status == http.StatusUnauthorized, status == http.StatusForbidden:
		return ClassForbidden
	case status >= 200 && status < 300:
		if parseErr != nil {
			return ClassMalformed
		}
		return ClassOK
	default:
		return ClassOther
	}
}

// ActionKind enumerates policy decisions. ClassOK yields ActionNone.
type ActionKind int

const (
	ActionNone ActionKind = iota
	ActionRetry
	ActionSwitchHost
	ActionAbandon
)

func (k ActionKind) String() string {
	switch k {
	case ActionRetry:
		return "retry_same_host"
	case ActionSwitchHost:
		return "switch_host"
	case ActionAbandon:
		return "abandon_chunk"
	default:
		return "none"
	}
}

// Action is a policy decision. Delay is only meaningful for ActionRetry.
type Action struct {
	Kind  ActionKind
	Delay time.Duration
}

// State is the per-host bookkeeping threaded through Decide. The zero value
// is the state before the first request on a host.
type State struct {
	// Attempts counts retries charged against MaxRetries. Queued polls are not charged.
	Attempts    int
	QueuedPolls int
	// LastDelay is the most recent backoff delay, used to keep backoff non-decreasing.
	LastDelay time.Duration
}

// JitterFunc returns a random duration in [0, bound].
type JitterFunc func(bound time.Duration) time.Duration

// DefaultJitter draws uniformly from [0, bound].
func DefaultJitter(bound time.Duration) time.Duration {
	if bound <= 0 {
		return 0
	}
	return rand.N(bound + 1)
}

// Policy holds retry and failover parameters.
type Policy struct {
	MaxRetries     int
	BaseDelay      time.Duration
	Multiplier     float64
	MaxDelay       time.Duration
	QueuedDelay    time.Duration
	MaxQueuedPolls int
	FixedDelay     time.Duration
	Jitter         time.Duration
	// Rand supplies jitter; DefaultJitter is used when nil.
	Rand JitterFunc
}

// PolicyFromSettings builds a Policy from configuration.
func PolicyFromSettings(s config.RetrySettings) Policy {
	return Policy{
		MaxRetries:     s.MaxRetries,
		BaseDelay:      s.BaseDelay,
		Multiplier:     s.Multiplier,
		MaxDelay:       s.MaxDelay,
		QueuedDelay:    s.QueuedDelay,
		MaxQueuedPolls: s.MaxQueuedPolls,
		FixedDelay:     s.FixedDelay,
		Jitter:         s.Jitter,
	}
}

// Decide returns the next action for a response of class c observed on host
// hostIndex of hostCount, along with the updated state. A host switch resets
// the state; switching away from the last host abandons the chunk.
func (p Policy) Decide(state State, c Class, hostIndex, hostCount int) (Action, State) {
	switch c {
	case ClassOK:
		return Action{Kind: ActionNone}, state
	case ClassQueued:
		if state.QueuedPolls >= p.MaxQueuedPolls {
			return p.leaveHost(hostIndex, hostCount)
		}
		state.QueuedPolls++
		return Action{Kind: ActionRetry, Delay: p.QueuedDelay + p.jitter()}, state
	case ClassThrottled, ClassMalformed:
		if state.Attempts >= p.MaxRetries {
			return p.leaveHost(hostIndex, hostCount)
		}
		delay := max(p.backoff(state.Attempts)+p.jitter(), state.LastDelay)
		state.Attempts++
		state.LastDelay = delay
		return Action{Kind: ActionRetry, Delay: delay}, state
	case ClassForbidden:
		return p.leaveHost(hostIndex, hostCount)
	default:
		if state.Attempts >= p.MaxRetries {
			return p.leaveHost(hostIndex, hostCount)
		}
		state.Attempts++
		return Action{Kind: ActionRetry, Delay: p.FixedDelay + p.jitter()}, state
	}
}

func (p Policy) leaveHost(hostIndex, hostCount int) (Action, State) {
	if hostIndex+1 >= hostCount {
		return Action{Kind: ActionAbandon}, State{}
	}
	return Action{Kind: ActionSwitchHost}, State{}
}

// backoff returns min(BaseDelay * Multiplier^attempt, MaxDelay).
func (p Policy) backoff(attempt int) time.Duration {
	multiplier := p.Multiplier
	if multiplier < 1 {
		multiplier = 1
	}
	raw := float64(p.BaseDelay) * math.Pow(multiplier, float64(attempt))
	if p.MaxDelay > 0 && raw >= float64(p.MaxDelay) {
		return p.MaxDelay
	}
	if raw >= math.MaxInt64 {
		return time.Duration(math.MaxInt64)
	}
	return time.Duration(raw)
}

func (p Policy) jitter() time.Duration {
	if p.Jitter <= 0 {
		return 0
	}
	source := p.Rand
	if source == nil {
		source = DefaultJitter
	}
	d := source(p.Jitter)
	if d < 0 {
		return 0
	}
	return min(d, p.Jitter)
}

// SleepWithContext blocks for the given duration, returning early if the
// context is cancelled.
func SleepWithContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
