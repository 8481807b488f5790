package loader

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"
)

// ErrDescriptorExhausted marks an error as a descriptor shortage. Operating
// system errors (EMFILE, ENFILE) are recognised without it.
var ErrDescriptorExhausted = errors.New("file descriptors exhausted")

// IsDescriptorExhausted reports whether err means no descriptor was available.
func IsDescriptorExhausted(err error) bool {
	return errors.Is(err, ErrDescriptorExhausted) || isSystemExhaustion(err)
}

// RetryPolicy describes the backoff applied to descriptor exhaustion.
type RetryPolicy struct {
	Initial    time.Duration
	Multiplier float64
	MaxRetries int
}

// DefaultRetryPolicy waits 100ms, 200ms and 400ms: four attempts in total.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{Initial: 100 * time.Millisecond, Multiplier: 2, MaxRetries: 3}
}

func (p RetryPolicy) schedule() backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = p.Initial
	b.Multiplier = p.Multiplier
	if b.Multiplier < 1 {
		b.Multiplier = 1
	}
	b.RandomizationFactor = 0
	b.MaxInterval = time.Hour
	b.MaxElapsedTime = 0
	b.Reset()
	return backoff.WithMaxRetries(b, uint64(max(p.MaxRetries, 0)))
}

// Sleeper blocks for a backoff interval. Sleep returns early with the
// context error when ctx is done.
type Sleeper interface {
	Sleep(ctx context.Context, d time.Duration) error
}

// TimerSleeper sleeps on a real timer.
type TimerSleeper struct{}

func (TimerSleeper) Sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// RetryState is a state of one retried operation.
type RetryState int

const (
	Attempting RetryState = iota
	BackingOff
	Succeeded
	GaveUp
)

func (s RetryState) String() string {
	switch s {
	case Attempting:
		return "attempting"
	case BackingOff:
		return "backoff"
	case Succeeded:
		return "succeeded"
	case GaveUp:
		return "failed"
	}
	return fmt.Sprintf("RetryState(%d)", int(s))
}

// retryMachine tracks one operation through Attempting, BackingOff and a
// final Succeeded or GaveUp. It performs no I/O and never sleeps itself.
type retryMachine struct {
	state    RetryState
	attempts int
	wait     time.Duration
	err      error
	schedule backoff.BackOff
}

func newRetryMachine(p RetryPolicy) *retryMachine {
	return &retryMachine{state: Attempting, schedule: p.schedule()}
}

// observe moves the machine on after an attempt finished with err.
func (m *retryMachine) observe(err error) {
	m.attempts++
	m.err = err
	switch {
	case err == nil:
		m.state = Succeeded
	case !IsDescriptorExhausted(err):
		m.state = GaveUp
	default:
		next := m.schedule.NextBackOff()
		if next == backoff.Stop {
			m.state = GaveUp
			m.err = fmt.Errorf("giving up after %d attempts: %w", m.attempts, err)
			return
		}
		m.wait = next
		m.state = BackingOff
	}
}

// slept resumes attempting after a completed backoff.
func (m *retryMachine) slept() {
	m.state = Attempting
}

// Retrier runs operations under a RetryPolicy. Only descriptor exhaustion is
// retried; any other error ends the operation at once.
type Retrier struct {
	policy  RetryPolicy
	sleeper Sleeper
	log     *zap.Logger
}

// NewRetrier returns a Retrier. A nil sleeper uses real timers and a nil
// logger discards output.
func NewRetrier(policy RetryPolicy, sleeper Sleeper, log *zap.Logger) *Retrier {
	if sleeper == nil {
		sleeper = TimerSleeper{}
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Retrier{policy: policy, sleeper: sleeper, log: log}
}

// Do calls op until it succeeds, fails for a reason other than descriptor
// exhaustion, or the retries run out. It returns the number of attempts made
// and the final error.
func (r *Retrier) Do(ctx context.Context, name string, op func() error) (int, error) {
	m := newRetryMachine(r.policy)
	for {
		switch m.state {
		case Attempting:
			m.observe(op())
		case BackingOff:
			r.log.Debug("descriptor exhaustion, backing off",
				zap.String("path", name),
				zap.Int("attempt", m.attempts),
				zap.Duration("wait", m.wait),
				zap.Error(m.err))
			if err := r.sleeper.Sleep(ctx, m.wait); err != nil {
				return m.attempts, fmt.Errorf("retry %s interrupted: %w", name, err)
			}
			m.slept()
		case Succeeded:
			return m.attempts, nil
		case GaveUp:
			return m.attempts, m.err
		}
	}
}
