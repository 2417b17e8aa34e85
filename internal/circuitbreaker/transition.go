package circuitbreaker

import "time"

type State int

const (
	StateClosed   State = iota // Normal operation
	StateOpen                  // Primary blocked
	StateHalfOpen              // Testing with a trial request
)

func (s State) String() string {
	switch s {
	case StateClosed:
		return "CLOSED"
	case StateOpen:
		return "OPEN"
	case StateHalfOpen:
		return "HALF-OPEN"
	default:
		return "UNKNOWN"
	}
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Event is an input to the state machine.
type Event int

const (
	EventAllow Event = iota
	EventFailure
	EventSuccess
	EventHealthFailing
	EventHealthPassing
)

// Policy holds the tunables of the breaker.
type Policy struct {
	FailureThreshold int
	FailureWindow    time.Duration
	ResetTimeout     time.Duration
	// SingleTrial limits HALF-OPEN to one outstanding trial request.
	SingleTrial bool
}

func DefaultPolicy() Policy {
	return Policy{
		FailureThreshold: 5,
		FailureWindow:    time.Minute,
		ResetTimeout:     10 * time.Second,
		SingleTrial:      true,
	}
}

// Status is the full breaker state. The zero value is a closed breaker.
type Status struct {
	State          State     `json:"state"`
	Failures       int       `json:"failureCount"`
	LastFailureAt  time.Time `json:"lastFailureAt"`
	OpenedAt       time.Time `json:"lastOpenedAt"`
	HealthFailing  bool      `json:"healthCheckFailing"`
	TrialStartedAt time.Time `json:"trialStartedAt"`
}

// Transition applies ev at time now and returns the next status.
// The boolean is the routing decision for EventAllow and false otherwise.
func Transition(st Status, ev Event, now time.Time, p Policy) (Status, bool) {
	switch ev {
	case EventAllow:
		return allow(st, now, p)

	case EventFailure:
		if !st.LastFailureAt.IsZero() && now.Sub(st.LastFailureAt) <= p.FailureWindow {
			st.Failures++
		} else {
			st.Failures = 1
		}
		st.LastFailureAt = now

		switch {
		case st.State == StateHalfOpen:
			st = open(st, now)
		case st.State == StateClosed && st.Failures >= p.FailureThreshold:
			st = open(st, now)
		}
		return st, false

	case EventSuccess:
		if st.State == StateHalfOpen {
			st.State = StateClosed
			st.OpenedAt = time.Time{}
			st.TrialStartedAt = time.Time{}
		}
		st.Failures = 0
		return st, false

	case EventHealthFailing:
		st.HealthFailing = true
		if st.State == StateClosed {
			st = open(st, now)
		}
		return st, false

	case EventHealthPassing:
		st.HealthFailing = false
		return st, false
	}

	return st, false
}

func allow(st Status, now time.Time, p Policy) (Status, bool) {
	switch st.State {
	case StateClosed:
		return st, !st.HealthFailing

	case StateOpen:
		if now.Sub(st.OpenedAt) < p.ResetTimeout {
			return st, false
		}
		st.State = StateHalfOpen
		st.TrialStartedAt = now
		return st, true

	case StateHalfOpen:
		if !p.SingleTrial {
			return st, true
		}
		// A trial that never reported back is treated as lost.
		if !st.TrialStartedAt.IsZero() && now.Sub(st.TrialStartedAt) < p.ResetTimeout {
			return st, false
		}
		st.TrialStartedAt = now
		return st, true
	}

	return st, true
}

func open(st Status, now time.Time) Status {
	st.State = StateOpen
	st.OpenedAt = now
	st.TrialStartedAt = time.Time{}
	return st
}
