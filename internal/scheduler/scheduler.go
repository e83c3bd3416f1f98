package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"github.com/MJE43/neon-arcade/internal/config"
)

// Sweeper is the part of the round manager the scheduler drives.
type Sweeper interface {
	AbandonIdle(ctx context.Context, ttl time.Duration) int
}

// Scheduler manages the background cron tasks.
type Scheduler struct {
	Cron    *cron.Cron
	sweeper Sweeper
	ttl     time.Duration
	log     *zap.Logger
	ctx     context.Context
}

// New creates a scheduler. Cron expressions may carry a leading seconds field.
func New(ctx context.Context, sweeper Sweeper, ttl time.Duration, log *zap.Logger) *Scheduler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Scheduler{
		Cron:    cron.New(cron.WithParser(config.CronParser)),
		sweeper: sweeper,
		ttl:     ttl,
		log:     log,
		ctx:     ctx,
	}
}

// RegisterSweep schedules the idle-round sweep.
func (s *Scheduler) RegisterSweep(spec string) error {
	if _, err := s.Cron.AddFunc(spec, s.sweep); err != nil {
		return fmt.Errorf("register sweep task: %w", err)
	}
	return nil
}

func (s *Scheduler) Start() {
	s.Cron.Start()
	s.log.Info("scheduler started", zap.Int("tasks", len(s.Cron.Entries())))
}

// Stop stops the scheduler and waits for a running task to finish.
func (s *Scheduler) Stop() {
	<-s.Cron.Stop().Done()
	s.log.Info("scheduler stopped")
}

// SweepNow runs the idle sweep immediately.
func (s *Scheduler) SweepNow() int {
	return s.sweepOnce()
}

func (s *Scheduler) sweep() { s.sweepOnce() }

func (s *Scheduler) sweepOnce() int {
	n := s.sweeper.AbandonIdle(s.ctx, s.ttl)
	if n > 0 {
		s.log.Info("abandoned idle rounds", zap.Int("count", n), zap.Duration("ttl", s.ttl))
	}
	return n
}
