package breaker

import (
	"errors"
	"testing"
	"time"
)

func TestBreaker_AllowsCallsWhileClosed(t *testing.T) {
	b := New("kis.buy", nil)
	for i := 0; i < 4; i++ {
		if err := b.Allow(); err != nil {
			t.Fatalf("unexpected rejection while closed: %v", err)
		}
		b.Failure()
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected 4 failures to stay under threshold, got: %v", err)
	}
}

func TestBreaker_TripsAfterThresholdFailures(t *testing.T) {
	tripped := ""
	b := New("kis.buy", func(name string) { tripped = name })
	for i := 0; i < failureThreshold; i++ {
		b.Allow()
		b.Failure()
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected breaker to be open after %d failures, got: %v", failureThreshold, err)
	}
	if tripped != "kis.buy" {
		t.Errorf("expected onTrip to fire with the breaker name, got %q", tripped)
	}
}

func TestBreaker_SuccessResetsFailureCount(t *testing.T) {
	b := New("kis.buy", nil)
	for i := 0; i < failureThreshold-1; i++ {
		b.Failure()
	}
	b.Success()
	for i := 0; i < failureThreshold-1; i++ {
		b.Failure()
	}
	if err := b.Allow(); err != nil {
		t.Fatalf("expected the reset failure count to stay under threshold, got: %v", err)
	}
}

func TestBreaker_HalfOpenAdmitsOneProbeAndCloses(t *testing.T) {
	b := &Breaker{name: "kis.buy"}
	b.trip(time.Now().Add(-openDuration - time.Second))

	if err := b.Allow(); err != nil {
		t.Fatalf("expected the first probe to be admitted, got: %v", err)
	}
	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected a second concurrent probe to be rejected, got: %v", err)
	}
	b.Success()
	if err := b.Allow(); err != nil {
		t.Fatalf("expected the breaker to close after a successful probe, got: %v", err)
	}
}

func TestBreaker_HalfOpenFailureReopens(t *testing.T) {
	b := &Breaker{name: "kis.buy"}
	b.trip(time.Now().Add(-openDuration - time.Second))
	b.Allow()
	b.Failure()

	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected a half-open failure to re-open the breaker, got: %v", err)
	}
}

func TestBreaker_RejectsWhileOpenBeforeTimeout(t *testing.T) {
	b := &Breaker{name: "kis.buy"}
	b.trip(time.Now())

	if err := b.Allow(); !errors.Is(err, ErrOpen) {
		t.Fatalf("expected rejection immediately after tripping, got: %v", err)
	}
}
