package pacing

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestNew(t *testing.T) {
	tests := []struct {
		name    string
		opts    Options
		check   func(Pacer) bool
		wantErr bool
	}{
		{name: "default fixed", opts: Options{}, check: func(p Pacer) bool { f, ok := p.(Fixed); return ok && f.Delay == DefaultDelay }},
		{name: "fixed delay", opts: Options{Mode: "fixed", Delay: time.Millisecond}, check: func(p Pacer) bool { f, ok := p.(Fixed); return ok && f.Delay == time.Millisecond }},
		{name: "rate", opts: Options{Mode: "RATE", Rate: 10, Burst: 2}, check: func(p Pacer) bool { _, ok := p.(*Limiter); return ok }},
		{name: "none", opts: Options{Mode: "none"}, check: func(p Pacer) bool { _, ok := p.(None); return ok }},
		{name: "rate without rate", opts: Options{Mode: "rate"}, wantErr: true},
		{name: "unknown", opts: Options{Mode: "bursty"}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := New(tt.opts)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("New: %v", err)
			}
			if !tt.check(p) {
				t.Fatalf("unexpected pacer %#v", p)
			}
		})
	}
}

func TestFixedWaits(t *testing.T) {
	start := time.Now()
	if err := (Fixed{Delay: 5 * time.Millisecond}).Wait(context.Background()); err != nil {
		t.Fatalf("Wait: %v", err)
	}
	if elapsed := time.Since(start); elapsed < 5*time.Millisecond {
		t.Fatalf("waited %v, want at least 5ms", elapsed)
	}
}

func TestWaitHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	for name, p := range map[string]Pacer{
		"fixed":   Fixed{Delay: time.Hour},
		"none":    None{},
		"limiter": NewLimiter(0.001, 1),
	} {
		if err := p.Wait(ctx); !errors.Is(err, context.Canceled) {
			t.Fatalf("%s: expected context.Canceled, got %v", name, err)
		}
	}
}

func TestLimiterBurst(t *testing.T) {
	l := NewLimiter(1000, 3)
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	for i := 0; i < 3; i++ {
		if err := l.Wait(ctx); err != nil {
			t.Fatalf("wait %d: %v", i, err)
		}
	}
}
