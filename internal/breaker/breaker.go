// Package breaker implements a per-endpoint circuit breaker for
// outbound brokerage calls: CLOSED under normal operation, OPEN after
// 5 failures within a 30-second window (rejecting calls for 60
// seconds), then HALF_OPEN for exactly one probe call that decides
// whether to close or re-open. No third-party breaker appears in the
// retrieval pack, so this is a hand-rolled state machine in the
// teacher's mutex-guarded struct idiom.
package breaker

import (
	"errors"
	"sync"
	"time"
)

type state int

const (
	closed state = iota
	open
	halfOpen
)

// ErrOpen is returned by Allow when the breaker is rejecting calls.
var ErrOpen = errors.New("breaker: open")

const (
	failureThreshold = 5
	failureWindow    = 30 * time.Second
	openDuration     = 60 * time.Second
)

// Breaker tracks failures for one named endpoint.
type Breaker struct {
	mu           sync.Mutex
	name         string
	state        state
	failures     []time.Time
	openedAt     time.Time
	probeInFlight bool
	onTrip       func(name string)
}

// New creates a breaker for the given endpoint name. onTrip, if
// non-nil, fires each time the breaker transitions CLOSED/HALF_OPEN ->
// OPEN, used to drive the trading_circuit_breaker_trips_total metric.
func New(name string, onTrip func(name string)) *Breaker {
	return &Breaker{name: name, onTrip: onTrip}
}

// Allow reports whether a call may proceed. It transitions OPEN ->
// HALF_OPEN once openDuration has elapsed and admits exactly one probe
// call while HALF_OPEN.
func (b *Breaker) Allow() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case closed:
		return nil
	case open:
		if time.Since(b.openedAt) < openDuration {
			return ErrOpen
		}
		b.state = halfOpen
		b.probeInFlight = false
		fallthrough
	case halfOpen:
		if b.probeInFlight {
			return ErrOpen
		}
		b.probeInFlight = true
		return nil
	}
	return nil
}

// Success reports a successful call, closing the breaker if it was
// HALF_OPEN and clearing the failure window if it was CLOSED.
func (b *Breaker) Success() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = closed
	b.failures = nil
	b.probeInFlight = false
}

// Failure reports a failed call. In CLOSED state it trips to OPEN once
// failureThreshold failures land inside failureWindow. In HALF_OPEN
// state any failure re-opens the breaker immediately.
func (b *Breaker) Failure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := time.Now()

	if b.state == halfOpen {
		b.trip(now)
		return
	}

	b.failures = append(b.failures, now)
	cutoff := now.Add(-failureWindow)
	kept := b.failures[:0]
	for _, t := range b.failures {
		if t.After(cutoff) {
			kept = append(kept, t)
		}
	}
	b.failures = kept

	if len(b.failures) >= failureThreshold {
		b.trip(now)
	}
}

func (b *Breaker) trip(now time.Time) {
	b.state = open
	b.openedAt = now
	b.failures = nil
	b.probeInFlight = false
	if b.onTrip != nil {
		b.onTrip(b.name)
	}
}
