package breaker

import (
	"errors"
	"testing"
	"time"
)

func TestBreakerTripsAfterThreshold(t *testing.T) {
	b := New("provider", Config{FailureThreshold: 3, RecoveryTimeout: time.Minute})

	for i := 0; i < 3; i++ {
		_ = b.Execute(func() error { return errors.New("boom") })
	}

	if b.State() != Open {
		t.Fatalf("expected Open after 3 failures, got %s", b.State())
	}

	err := b.Execute(func() error { return nil })
	if err == nil {
		t.Fatal("expected circuit-open error while OPEN")
	}
}

func TestBreakerHalfOpenRecovers(t *testing.T) {
	b := New("provider", Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond})

	_ = b.Execute(func() error { return errors.New("boom") })
	if b.State() != Open {
		t.Fatalf("expected Open, got %s", b.State())
	}

	time.Sleep(5 * time.Millisecond)

	if err := b.Execute(func() error { return nil }); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if b.State() != Closed {
		t.Fatalf("expected Closed after a successful half-open trial, got %s", b.State())
	}
}

func TestHalfOpenAllowsOnlyOneInFlightProbe(t *testing.T) {
	b := New("provider", Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond})

	_ = b.Execute(func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	if !b.Allow() {
		t.Fatal("expected the first half-open caller to be allowed through")
	}
	if b.Allow() {
		t.Fatal("expected a second concurrent half-open caller to be refused")
	}

	b.record(nil) // the in-flight probe succeeds

	if b.State() != Closed {
		t.Fatalf("expected Closed after the probe succeeds, got %s", b.State())
	}
	if !b.Allow() {
		t.Fatal("expected Allow to succeed again once the circuit is closed")
	}
}

func TestBreakerIgnoresExpectedErrors(t *testing.T) {
	b := New("provider", Config{
		FailureThreshold: 1,
		RecoveryTimeout:  time.Minute,
		ExpectedErrors:   []string{"invalid audio format"},
	})

	err := b.Execute(func() error { return errors.New("invalid audio format: not a wav file") })
	if err == nil {
		t.Fatal("expected the underlying error to propagate")
	}
	if b.State() != Closed {
		t.Fatalf("expected expected-errors to not trip the breaker, got %s", b.State())
	}
}

func TestHalfOpenFailureReopens(t *testing.T) {
	b := New("provider", Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond})

	_ = b.Execute(func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)

	_ = b.Execute(func() error { return errors.New("boom again") })
	if b.State() != Open {
		t.Fatalf("expected a half-open failure to reopen the circuit, got %s", b.State())
	}
}

type fakeReporter struct {
	transitions []string
}

func (f *fakeReporter) RecordBreakerTransition(dependency, state string) {
	f.transitions = append(f.transitions, dependency+":"+state)
}

func TestBreakerReportsStateTransitions(t *testing.T) {
	rep := &fakeReporter{}
	b := New("provider", Config{FailureThreshold: 1, RecoveryTimeout: time.Millisecond}).SetReporter(rep)

	_ = b.Execute(func() error { return errors.New("boom") })
	time.Sleep(5 * time.Millisecond)
	_ = b.Execute(func() error { return nil })

	want := []string{"provider:OPEN", "provider:HALF_OPEN", "provider:CLOSED"}
	if len(rep.transitions) != len(want) {
		t.Fatalf("expected transitions %v, got %v", want, rep.transitions)
	}
	for i, w := range want {
		if rep.transitions[i] != w {
			t.Fatalf("expected transitions %v, got %v", want, rep.transitions)
		}
	}
}
