package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// TickFunc is invoked on every interval.
type TickFunc func(ctx context.Context, at time.Time) error

// IntervalFunc resolves the current poll period. It is consulted after every
// tick so a changed runtime setting applies to the very next wait.
type IntervalFunc func() time.Duration

// Options tune scheduler behaviour.
type Options struct {
	Interval     time.Duration
	IntervalFunc IntervalFunc
	AlignToStart bool
	StartupDelay time.Duration
	RunOnStart   bool
}

// Scheduler drives sequential execution of poll cycles. A tick never
// overlaps the previous one; an overrunning tick pushes the next one out.
type Scheduler struct {
	opts   Options
	logger zerolog.Logger
}

// New constructs a Scheduler instance.
func New(opts Options, logger zerolog.Logger) *Scheduler {
	if opts.Interval <= 0 {
		panic("scheduler interval must be positive")
	}
	return &Scheduler{opts: opts, logger: logger.With().Str("component", "scheduler").Logger()}
}

// Run blocks, invoking tick on every interval until ctx is cancelled.
// Cancellation stops the timer; a tick already in progress runs to completion
// on a context that is not cancelled with ctx.
func (s *Scheduler) Run(ctx context.Context, tick TickFunc) error {
	if s.opts.StartupDelay > 0 {
		timer := time.NewTimer(s.opts.StartupDelay)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}

	interval := s.interval()
	if s.opts.RunOnStart {
		s.execute(ctx, tick, time.Now().UTC())
		if ctx.Err() != nil {
			return ctx.Err()
		}
		interval = s.interval()
	}

	next := s.nextTick(time.Now().UTC(), interval)
	for {
		delay := time.Until(next)
		if delay < 0 {
			s.logger.Warn().Dur("overrun", -delay).Msg("tick overran the interval, skipping missed slot")
			next = s.nextTick(time.Now().UTC(), interval)
			delay = time.Until(next)
		}

		timer := time.NewTimer(delay)
		s.logger.Debug().Time("next_tick", next).Dur("interval", interval).Msg("waiting for next tick")

		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
			timer.Stop()
		}

		s.execute(ctx, tick, s.bucketStart(next, interval))
		if ctx.Err() != nil {
			return ctx.Err()
		}

		resolved := s.interval()
		if resolved != interval {
			s.logger.Info().Dur("old", interval).Dur("new", resolved).Msg("poll interval changed")
			interval = resolved
			next = s.nextTick(time.Now().UTC(), interval)
			continue
		}
		next = next.Add(interval)
	}
}

func (s *Scheduler) execute(ctx context.Context, tick TickFunc, at time.Time) {
	s.logger.Info().Time("at", at).Msg("executing scheduled tick")
	if err := tick(context.WithoutCancel(ctx), at); err != nil {
		s.logger.Error().Err(err).Time("at", at).Msg("tick execution failed")
	}
}

func (s *Scheduler) interval() time.Duration {
	if s.opts.IntervalFunc != nil {
		if d := s.opts.IntervalFunc(); d > 0 {
			return d
		}
	}
	return s.opts.Interval
}

func (s *Scheduler) nextTick(now time.Time, interval time.Duration) time.Time {
	if !s.opts.AlignToStart {
		return now.Add(interval)
	}
	bucket := now.Truncate(interval)
	if !bucket.After(now) {
		bucket = bucket.Add(interval)
	}
	return bucket
}

func (s *Scheduler) bucketStart(t time.Time, interval time.Duration) time.Time {
	if !s.opts.AlignToStart {
		return t
	}
	return t.Truncate(interval)
}
