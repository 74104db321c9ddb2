// Package sweeper periodically switches off vouchers and promotions whose
// expiration date has passed. Usability checks never depend on it; it keeps
// the stored is_active flag truthful for admin listings.
//
// A swept rule whose expiration date is later moved into the future is
// switched back on by the voucher and promotion services' Update, unless
// the same update sets isActive explicitly.
package sweeper

import (
	"context"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/go-faster/errors"
	"go.uber.org/zap"
)

// Deactivator switches off expired rules and reports how many changed.
type Deactivator interface {
	DeactivateExpired(ctx context.Context) (int64, error)
}

// Target is a named rule store swept on every run.
type Target struct {
	Name  string
	Rules Deactivator
}

// Sweeper runs the expiry sweep on a fixed interval.
type Sweeper struct {
	scheduler gocron.Scheduler
	interval  time.Duration
	targets   []Target
	lg        *zap.Logger
}

// New creates a Sweeper. Call Start to schedule it.
func New(lg *zap.Logger, interval time.Duration, targets ...Target) (*Sweeper, error) {
	if interval <= 0 {
		return nil, errors.Errorf("invalid sweep interval %s", interval)
	}
	s, err := gocron.NewScheduler(gocron.WithLocation(time.UTC))
	if err != nil {
		return nil, errors.Wrap(err, "create scheduler")
	}
	return &Sweeper{
		scheduler: s,
		interval:  interval,
		targets:   targets,
		lg:        lg,
	}, nil
}

// Start schedules the sweep, running it once right away. Runs never overlap.
func (s *Sweeper) Start(ctx context.Context) error {
	_, err := s.scheduler.NewJob(
		gocron.DurationJob(s.interval),
		gocron.NewTask(func() {
			_ = s.Sweep(ctx)
		}),
		gocron.WithName("expiry-sweep"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		return errors.Wrap(err, "schedule sweep")
	}
	s.scheduler.Start()
	s.lg.Info("Expiry sweeper started", zap.Duration("interval", s.interval))
	return nil
}

// Stop waits for a running sweep and shuts the scheduler down.
func (s *Sweeper) Stop() error {
	if err := s.scheduler.Shutdown(); err != nil {
		return errors.Wrap(err, "shutdown scheduler")
	}
	return nil
}

// Sweep deactivates expired rules in every target. A failing target does
// not stop the others; the first failure is returned.
func (s *Sweeper) Sweep(ctx context.Context) error {
	var first error
	for _, t := range s.targets {
		n, err := t.Rules.DeactivateExpired(ctx)
		if err != nil {
			s.lg.Error("Expiry sweep failed", zap.String("target", t.Name), zap.Error(err))
			if first == nil {
				first = errors.Wrapf(err, "sweep %s", t.Name)
			}
			continue
		}
		if n > 0 {
			s.lg.Info("Deactivated expired rules", zap.String("target", t.Name), zap.Int64("count", n))
		}
	}
	return first
}
