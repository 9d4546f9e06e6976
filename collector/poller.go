package collector

import (
	"context"
	"time"

	"github.com/sourcegraph/conc/pool"

	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/logging"
	"github.com/realgrapedrop/xrpl-validator-dashboard-sub000/retry"
)

// PollLoop is one independently timed polling loop against the upstream node.
type PollLoop struct {
	Name     string
	Interval time.Duration

	// Policy bounds the in-tick retries. A tick that exhausts its retries is
	// abandoned; the loop simply waits for the next tick.
	Policy retry.Policy

	Tick func(ctx context.Context) error
}

// Scheduler runs its poll loops concurrently. Loops never block each other: a
// failing or slow loop has no effect on any other loop's schedule.
type Scheduler struct {
	logger logging.Logger
	loops  []PollLoop
}

// NewScheduler builds a scheduler over the given loops.
func NewScheduler(logger logging.Logger, loops ...PollLoop) *Scheduler {
	return &Scheduler{
		logger: logging.ForComponent(logger, logging.ComponentPoller),
		loops:  loops,
	}
}

// Run blocks until the context ends and every loop has exited.
func (s *Scheduler) Run(ctx context.Context) {
	p := pool.New().WithContext(ctx)
	for _, loop := range s.loops {
		p.Go(func(ctx context.Context) error {
			s.runLoop(ctx, loop)
			return nil
		})
	}
	_ = p.Wait()
}

func (s *Scheduler) runLoop(ctx context.Context, loop PollLoop) {
	ticker := time.NewTicker(loop.Interval)
	defer ticker.Stop()

	s.logger.Info().
		Str("loop", loop.Name).
		Dur("interval", loop.Interval).
		Msg("poll loop started")

	for {
		select {
		case <-ctx.Done():
			s.logger.Info().Str("loop", loop.Name).Msg("poll loop stopped")
			return
		case <-ticker.C:
			if err := loop.Policy.Do(ctx, loop.Tick); err != nil {
				if ctx.Err() != nil {
					continue
				}
				pollTicks.WithLabelValues(loop.Name, "failure").Inc()
				s.logger.Warn().
					Err(err).
					Str("loop", loop.Name).
					Msg("poll tick failed after retries, waiting for next tick")
				continue
			}
			pollTicks.WithLabelValues(loop.Name, "success").Inc()
		}
	}
}
