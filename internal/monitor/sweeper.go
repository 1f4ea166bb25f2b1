package monitor

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rileyhilliard/gpustat/internal/logger"
	"github.com/robfig/cron/v3"
)

// DefaultSweepInterval is how often expired connections are cleaned up.
const DefaultSweepInterval = 30 * time.Second

// Sweeper periodically removes expired connections from a Registry,
// independent of poll traffic.
type Sweeper struct {
	registry *Registry
	interval time.Duration
	cron     *cron.Cron
	log      logger.Logger

	runs     atomic.Int64
	stopOnce sync.Once
}

// NewSweeper schedules registry.Sweep every interval. Intervals below one
// second are rounded up to one second.
func NewSweeper(registry *Registry, interval time.Duration) *Sweeper {
	if interval <= 0 {
		interval = DefaultSweepInterval
	}

	s := &Sweeper{
		registry: registry,
		interval: interval,
		log:      logger.NewEnvLogger("[sweeper]"),
	}

	cl := cronLogger{log: s.log}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)
	s.cron.Schedule(cron.Every(interval), cron.FuncJob(s.RunOnce))
	return s
}

// Interval returns the sweep period.
func (s *Sweeper) Interval() time.Duration {
	return s.interval
}

// Start begins sweeping in the background.
func (s *Sweeper) Start() {
	s.log.Debug("Sweeping expired connections every %s", s.interval)
	s.cron.Start()
}

// RunOnce sweeps immediately.
func (s *Sweeper) RunOnce() {
	removed := s.registry.Sweep()
	s.runs.Add(1)
	if removed > 0 {
		s.log.Info("Cleaned up %d expired connection(s)", removed)
	}
}

// Runs returns how many sweeps have completed.
func (s *Sweeper) Runs() int64 {
	return s.runs.Load()
}

// Stop halts the schedule, waits for a running sweep (or ctx), then shuts
// the registry down. Only the first call does anything.
func (s *Sweeper) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		done := s.cron.Stop()
		select {
		case <-done.Done():
		case <-ctx.Done():
			err = ctx.Err()
		}
		s.registry.Shutdown()
	})
	return err
}

// cronLogger routes cron's internal messages through our logger.
type cronLogger struct {
	log logger.Logger
}

func (c cronLogger) Info(msg string, keysAndValues ...interface{}) {
	c.log.Debug("cron %s%s", msg, formatKV(keysAndValues))
}

func (c cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	c.log.Error("cron %s: %v%s", msg, err, formatKV(keysAndValues))
}

func formatKV(kv []interface{}) string {
	out := ""
	for i := 0; i+1 < len(kv); i += 2 {
		out += fmt.Sprintf(" %v=%v", kv[i], kv[i+1])
	}
	return out
}
