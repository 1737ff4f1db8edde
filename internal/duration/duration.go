// Package duration estimates the playback length of an audio or video file.
//
// Estimation runs an ordered chain of strategies and stops at the first one
// that yields a finite, positive length. The chain always ends in a
// size-based heuristic, so Estimate never fails; a result of 0 means the
// length is unknown and callers must treat it as such.
package duration

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math"
	"time"

	"github.com/podushkina/meetscribe/internal/observability"
)

var ErrInvalidDuration = errors.New("invalid duration")

// Strategy is one way of measuring a file. Timeout bounds a single attempt;
// zero means the attempt is only bounded by the caller's context.
type Strategy struct {
	Name     string
	Timeout  time.Duration
	Estimate func(ctx context.Context, path string) (float64, error)
}

type Estimator struct {
	strategies []Strategy
}

func New(strategies ...Strategy) *Estimator {
	return &Estimator{strategies: strategies}
}

// Default is the probe -> full decode -> file size chain.
func Default() *Estimator {
	return New(Probe(), Decode(), SizeHeuristic())
}

// Estimate returns the length of the file at path in whole seconds.
func (e *Estimator) Estimate(ctx context.Context, path string) int {
	for _, s := range e.strategies {
		seconds, err := e.attempt(ctx, s, path)
		if err != nil {
			log.Printf("Duration %s failed for %s: %v", s.Name, path, err)
			observability.Default.IncCounter("duration_attempts_total", map[string]string{"strategy": s.Name, "result": "failed"}, 1)
			continue
		}
		observability.Default.IncCounter("duration_attempts_total", map[string]string{"strategy": s.Name, "result": "ok"}, 1)
		return toSeconds(seconds)
	}
	return 0
}

func (e *Estimator) attempt(ctx context.Context, s Strategy, path string) (float64, error) {
	if s.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.Timeout)
		defer cancel()
	}

	type result struct {
		seconds float64
		err     error
	}
	done := make(chan result, 1)
	go func() {
		v, err := s.Estimate(ctx, path)
		done <- result{v, err}
	}()

	select {
	case <-ctx.Done():
		return 0, fmt.Errorf("%s: %w", s.Name, ctx.Err())
	case r := <-done:
		if r.err != nil {
			return 0, r.err
		}
		if math.IsNaN(r.seconds) || math.IsInf(r.seconds, 0) || r.seconds <= 0 {
			return 0, fmt.Errorf("%s returned %v: %w", s.Name, r.seconds, ErrInvalidDuration)
		}
		return r.seconds, nil
	}
}

func toSeconds(v float64) int {
	s := int(math.Round(v))
	if s == 0 && v > 0 {
		return 1
	}
	return s
}
