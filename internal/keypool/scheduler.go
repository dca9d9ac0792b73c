// Package keypool rotates a pool of provider API keys and paces their
// issuance so the aggregate request rate stays under the provider's combined
// per-key cap.
//
// Rotation state lives in a single owner goroutine; callers obtain keys
// through a request/response channel, so the scheduler is safe to drive from
// one sequential loop or from many concurrent workers without any shared
// mutable counter.
package keypool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// ErrClosed is returned by Acquire after Close.
var ErrClosed = errors.New("keypool: scheduler closed")

// Scheduler hands out API keys in round-robin order. With N keys each capped
// at R requests per window W, it pauses after every N*R issuances until a
// full window has elapsed since the last of them. Issuances from consecutive
// batches are therefore always at least W apart, so no rolling window of
// length W ever sees more than N*R keys, however a batch spreads out.
type Scheduler struct {
	keys      []string
	perKey    int
	window    time.Duration
	requests  chan request
	done      chan struct{}
	ownerDone chan struct{}

	// now and sleep are injectable for pacing tests.
	now   func() time.Time
	sleep func(d time.Duration) bool // false when interrupted by Close
	log   *slog.Logger
}

type request struct {
	reply  chan string
	cancel <-chan struct{}
}

// Option configures the scheduler.
type Option func(*Scheduler)

// WithClock replaces the wall clock and sleeper. Used by tests to simulate
// time; the sleep function must return false if the scheduler shut down while
// sleeping.
func WithClock(now func() time.Time, sleep func(d time.Duration) bool) Option {
	return func(s *Scheduler) {
		s.now = now
		s.sleep = sleep
	}
}

// New creates a Scheduler for the given key pool and starts its owner
// goroutine. perKey is the provider's per-key request cap within window.
func New(keys []string, perKey int, window time.Duration, logger *slog.Logger, opts ...Option) (*Scheduler, error) {
	if len(keys) == 0 {
		return nil, fmt.Errorf("keypool: at least one key is required")
	}
	if perKey < 1 {
		return nil, fmt.Errorf("keypool: perKey must be >= 1, got %d", perKey)
	}
	if window <= 0 {
		return nil, fmt.Errorf("keypool: window must be positive, got %s", window)
	}

	s := &Scheduler{
		keys:      keys,
		perKey:    perKey,
		window:    window,
		requests:  make(chan request),
		done:      make(chan struct{}),
		ownerDone: make(chan struct{}),
		now:       time.Now,
		log:       logger.With(slog.String("component", "keypool")),
	}
	s.sleep = s.defaultSleep

	for _, opt := range opts {
		opt(s)
	}

	go s.run()
	return s, nil
}

// Acquire blocks until the scheduler can issue a key within the rate budget,
// then returns the next key in rotation.
func (s *Scheduler) Acquire(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	req := request{
		reply:  make(chan string, 1),
		cancel: ctx.Done(),
	}

	select {
	case s.requests <- req:
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	}

	select {
	case key := <-req.reply:
		return key, nil
	case <-ctx.Done():
		return "", ctx.Err()
	case <-s.done:
		return "", ErrClosed
	}
}

// Close stops the owner goroutine. Pending and subsequent Acquire calls
// return ErrClosed. Close is idempotent.
func (s *Scheduler) Close() {
	select {
	case <-s.done:
		return
	default:
	}
	close(s.done)
	<-s.ownerDone
}

// run is the owner goroutine. It holds the only copy of the issuance counter
// and pacing clock.
func (s *Scheduler) run() {
	defer close(s.ownerDone)

	batch := len(s.keys) * s.perKey
	total := 0  // monotonic issuance counter; key choice is a pure function of it
	issued := 0 // issuances in the current batch
	var lastIssued time.Time

	for {
		select {
		case <-s.done:
			return
		case req := <-s.requests:
			// Central pacing: once a full batch has been issued, wait until
			// a full window has passed since the batch's last issuance. The
			// pause must be anchored on the last issuance, not the first: a
			// batch that trickles out still counts fully against any rolling
			// window ending just after its final key.
			if issued >= batch {
				pause := s.window - s.now().Sub(lastIssued)
				if pause > 0 {
					s.log.Info("key budget exhausted, pausing issuance",
						slog.Int("issued", issued),
						slog.Duration("pause", pause),
					)
					if !s.sleep(pause) {
						return
					}
				}
				issued = 0
			}

			key := s.keys[total%len(s.keys)]
			total++
			issued++
			lastIssued = s.now()

			select {
			case req.reply <- key:
			case <-req.cancel:
				// Caller gave up while we were pacing; the issuance still
				// counts against the budget because the pause already ran.
			case <-s.done:
				return
			}
		}
	}
}

// defaultSleep waits for d or until Close, reporting false on shutdown.
func (s *Scheduler) defaultSleep(d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-s.done:
		return false
	}
}
