package pacing

import (
	"context"
	"errors"
	"testing"
	"time"
)

// newTestPacer pins the clock and captures sleeps instead of performing them.
func newTestPacer(interval time.Duration) (*Pacer, *[]time.Duration) {
	p := New(interval)
	slept := &[]time.Duration{}
	fixed := time.Unix(1700000000, 0)
	p.now = func() time.Time { return fixed }
	p.sleep = func(_ context.Context, d time.Duration) error {
		*slept = append(*slept, d)
		return nil
	}
	return p, slept
}

func TestNew_DefaultInterval(t *testing.T) {
	p := New(0)
	if p.interval != DefaultInterval {
		t.Fatalf("expected default interval %v, got %v", DefaultInterval, p.interval)
	}
	if p.maxPenalty != DefaultMaxPenalty {
		t.Fatalf("expected default max penalty %v, got %v", DefaultMaxPenalty, p.maxPenalty)
	}
}

func TestWait_FirstCallImmediate(t *testing.T) {
	p := New(50 * time.Millisecond)

	start := time.Now()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if elapsed := time.Since(start); elapsed > 25*time.Millisecond {
		t.Errorf("first call should not block, took %v", elapsed)
	}
}

func TestWait_SpacesCalls(t *testing.T) {
	p := New(10 * time.Millisecond)

	start := time.Now()
	for i := 0; i < 3; i++ {
		if err := p.Wait(context.Background()); err != nil {
			t.Fatalf("wait %d: unexpected error: %v", i, err)
		}
	}
	if elapsed := time.Since(start); elapsed < 18*time.Millisecond {
		t.Errorf("three calls should span at least two intervals, took %v", elapsed)
	}
}

func TestWait_NoPenaltyNoSleep(t *testing.T) {
	p, slept := newTestPacer(2 * time.Second)

	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 0 {
		t.Errorf("expected no penalty sleeps, got %v", *slept)
	}
}

func TestRecordError_DoublesGap(t *testing.T) {
	p, slept := newTestPacer(2 * time.Second)

	p.RecordError()
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 4*time.Second {
		t.Fatalf("expected one 4s pause, got %v", *slept)
	}
}

func TestRecordRateLimit_HonorsHint(t *testing.T) {
	p, slept := newTestPacer(2 * time.Second)

	p.RecordRateLimit(2500 * time.Millisecond)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 2500*time.Millisecond {
		t.Fatalf("expected one 2.5s pause, got %v", *slept)
	}
}

func TestRecordRateLimit_CapsHint(t *testing.T) {
	p, slept := newTestPacer(2 * time.Second)

	p.RecordRateLimit(5 * time.Minute)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != DefaultMaxPenalty {
		t.Fatalf("expected pause capped at %v, got %v", DefaultMaxPenalty, *slept)
	}
}

func TestRecordRateLimit_MissingHintGetsCap(t *testing.T) {
	p, slept := newTestPacer(2 * time.Second)

	p.RecordRateLimit(0)
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != DefaultMaxPenalty {
		t.Fatalf("expected full cap pause %v, got %v", DefaultMaxPenalty, *slept)
	}
}

func TestPenalty_NeverShortens(t *testing.T) {
	p, slept := newTestPacer(2 * time.Second)

	p.RecordRateLimit(10 * time.Second)
	p.RecordError() // 4s, должен проиграть более позднему дедлайну
	if err := p.Wait(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(*slept) != 1 || (*slept)[0] != 10*time.Second {
		t.Fatalf("expected the longer 10s pause to win, got %v", *slept)
	}
}

func TestWait_ContextCanceled(t *testing.T) {
	p := New(time.Millisecond)
	p.RecordRateLimit(30 * time.Second)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}
