package cache

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"
)

var errRemote = errors.New("remote down")

func newTestBreaker(threshold, probes int, cooldown time.Duration) (*CircuitBreaker, *time.Time) {
	now := time.Now()
	b := NewCircuitBreaker(BreakerConfig{
		Name:             "test",
		FailureThreshold: threshold,
		Cooldown:         cooldown,
		Probes:           probes,
	}, slog.New(slog.DiscardHandler))
	b.now = func() time.Time { return now }
	return b, &now
}

func TestBreakerStaysClosedOnSuccess(t *testing.T) {
	b, _ := newTestBreaker(3, 2, time.Minute)

	if err := b.Do(func() error { return nil }); err != nil {
		t.Errorf("Expected no error, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("Expected Closed, got %v", b.State())
	}
}

func TestBreakerOpensAtThreshold(t *testing.T) {
	b, _ := newTestBreaker(2, 2, time.Minute)

	b.Do(func() error { return errRemote })
	if b.State() != StateClosed {
		t.Errorf("Expected Closed after one failure, got %v", b.State())
	}

	b.Do(func() error { return errRemote })
	if b.State() != StateOpen {
		t.Errorf("Expected Open at threshold, got %v", b.State())
	}
}

func TestBreakerSuccessResetsFailureCount(t *testing.T) {
	b, _ := newTestBreaker(2, 1, time.Minute)

	b.Do(func() error { return errRemote })
	b.Do(func() error { return nil })
	b.Do(func() error { return errRemote })

	if b.State() != StateClosed {
		t.Errorf("Expected Closed, failures are not consecutive; got %v", b.State())
	}
}

func TestBreakerOpenRejectsWithoutCalling(t *testing.T) {
	b, _ := newTestBreaker(1, 1, time.Hour)
	b.Do(func() error { return errRemote })

	err := b.Do(func() error {
		t.Error("fn must not run while open")
		return nil
	})
	if !errors.Is(err, ErrBreakerOpen) {
		t.Errorf("Expected ErrBreakerOpen, got %v", err)
	}
}

func TestBreakerProbesCloseIt(t *testing.T) {
	b, now := newTestBreaker(1, 2, time.Minute)
	b.Do(func() error { return errRemote })
	*now = now.Add(2 * time.Minute)

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("Expected first probe to run, got %v", err)
	}
	if b.State() != StateHalfOpen {
		t.Errorf("Expected HalfOpen after one probe, got %v", b.State())
	}

	if err := b.Do(func() error { return nil }); err != nil {
		t.Fatalf("Expected second probe to run, got %v", err)
	}
	if b.State() != StateClosed {
		t.Errorf("Expected Closed after enough probes, got %v", b.State())
	}
}

func TestBreakerFailedProbeReopens(t *testing.T) {
	b, now := newTestBreaker(1, 2, time.Minute)
	b.Do(func() error { return errRemote })
	*now = now.Add(2 * time.Minute)

	b.Do(func() error { return errRemote })

	if b.State() != StateOpen {
		t.Errorf("Expected Open after failed probe, got %v", b.State())
	}
	snap := b.Snapshot()
	if snap.State != "open" || snap.Name != "test" {
		t.Errorf("Unexpected snapshot %+v", snap)
	}
}

func TestBreakerConfigDefaults(t *testing.T) {
	b := NewCircuitBreaker(BreakerConfig{}, nil)
	want := DefaultBreakerConfig("default")
	if b.cfg != want {
		t.Errorf("Expected defaults %+v, got %+v", want, b.cfg)
	}
}

func TestBreakerConcurrency(t *testing.T) {
	b, _ := newTestBreaker(5, 3, 100*time.Millisecond)

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			for j := 0; j < 10; j++ {
				b.Do(func() error {
					if (id+j)%3 == 0 {
						return fmt.Errorf("failure %d-%d", id, j)
					}
					return nil
				})
			}
		}(i)
	}
	wg.Wait()

	switch b.State() {
	case StateClosed, StateOpen, StateHalfOpen:
	default:
		t.Errorf("Unexpected state %v", b.State())
	}
}
