package retry

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/podushkina/meetscribe/internal/observability"
)

// Retryable is implemented by errors that may succeed when repeated,
// e.g. rate-limit responses.
type Retryable interface {
	Retryable() bool
}

type Policy struct {
	Name string
	// Delays holds the wait before each retry; its length is the number of
	// retries after the first attempt.
	Delays []time.Duration
	// OnRetry is called before each wait, e.g. to surface a status line.
	OnRetry func(attempt int, delay time.Duration, err error)

	sleep func(ctx context.Context, d time.Duration) error
}

// Transcription retries rate-limited transcription calls after 2s, 4s and 8s.
func Transcription() Policy { return Exponential("transcription", 2*time.Second, 3) }

// Summary retries rate-limited summarization calls after 1s, 2s and 4s.
func Summary() Policy { return Exponential("summarization", time.Second, 3) }

func Exponential(name string, base time.Duration, retries int) Policy {
	delays := make([]time.Duration, retries)
	d := base
	for i := range delays {
		delays[i] = d
		d *= 2
	}
	return Policy{Name: name, Delays: delays}
}

// Do calls fn until it succeeds, returns a non-retryable error, or the
// retries are used up. The last error is returned as is.
func (p Policy) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	sleep := p.sleep
	if sleep == nil {
		sleep = sleepCtx
	}

	for attempt := 0; ; attempt++ {
		err := fn(ctx)
		if err == nil {
			return nil
		}
		if !IsRetryable(err) || attempt >= len(p.Delays) {
			return err
		}

		delay := p.Delays[attempt]
		observability.Default.IncCounter("remote_retries_total", map[string]string{"service": p.Name}, 1)
		log.Printf("%s: retryable error, retry %d/%d in %s: %v", p.Name, attempt+1, len(p.Delays), delay, err)
		if p.OnRetry != nil {
			p.OnRetry(attempt+1, delay, err)
		}
		if err := sleep(ctx, delay); err != nil {
			return err
		}
	}
}

func IsRetryable(err error) bool {
	var r Retryable
	return errors.As(err, &r) && r.Retryable()
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
