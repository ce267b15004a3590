// Package pacing spaces out consecutive remote calls made by bulk
// operations.
package pacing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	ModeFixed = "fixed"
	ModeRate  = "rate"
	ModeNone  = "none"

	DefaultDelay = 50 * time.Microsecond
)

// Pacer blocks until the next remote call may be issued.
type Pacer interface {
	Wait(ctx context.Context) error
}

// Fixed sleeps for a constant delay.
type Fixed struct {
	Delay time.Duration
}

func (f Fixed) Wait(ctx context.Context) error {
	if f.Delay <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(f.Delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// Limiter admits calls through a token bucket.
type Limiter struct {
	limiter *rate.Limiter
}

// NewLimiter allows perSecond calls on average with bursts of up to burst.
func NewLimiter(perSecond float64, burst int) *Limiter {
	if burst < 1 {
		burst = 1
	}
	return &Limiter{limiter: rate.NewLimiter(rate.Limit(perSecond), burst)}
}

func (l *Limiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// None never waits.
type None struct{}

func (None) Wait(ctx context.Context) error { return ctx.Err() }

// Options mirrors the [pacing] config table.
type Options struct {
	Mode  string
	Delay time.Duration
	Rate  float64
	Burst int
}

// New builds the pacer selected by opts.Mode. An empty mode is fixed.
func New(opts Options) (Pacer, error) {
	switch strings.ToLower(strings.TrimSpace(opts.Mode)) {
	case "", ModeFixed:
		delay := opts.Delay
		if delay == 0 {
			delay = DefaultDelay
		}
		return Fixed{Delay: delay}, nil
	case ModeRate:
		if opts.Rate <= 0 {
			return nil, fmt.Errorf("pacing rate must be positive, got %v", opts.Rate)
		}
		return NewLimiter(opts.Rate, opts.Burst), nil
	case ModeNone:
		return None{}, nil
	default:
		return nil, fmt.Errorf("unknown pacing mode %q (want %s, %s or %s)", opts.Mode, ModeFixed, ModeRate, ModeNone)
	}
}
