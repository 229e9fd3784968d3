package cache

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sweepable is anything that can proactively drop expired entries.
type Sweepable interface {
	Sweep(now time.Time) int
}

// Sweeper drives periodic expiry sweeps across registered targets,
// independent of read traffic.
type Sweeper struct {
	interval time.Duration
	targets  []Sweepable
	logger   *zap.Logger

	stop chan struct{}
	done chan struct{}
	once sync.Once
}

// NewSweeper creates a sweeper over the given targets.
func NewSweeper(interval time.Duration, logger *zap.Logger, targets ...Sweepable) *Sweeper {
	return &Sweeper{
		interval: interval,
		targets:  targets,
		logger:   logger,
		stop:     make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start launches the sweep loop.
func (s *Sweeper) Start() {
	go s.run()
}

func (s *Sweeper) run() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case now := <-ticker.C:
			dropped := 0
			for _, target := range s.targets {
				dropped += target.Sweep(now)
			}
			if dropped > 0 {
				s.logger.Debug("sweep removed expired entries", zap.Int("count", dropped))
			}
		case <-s.stop:
			return
		}
	}
}

// Shutdown stops the loop. Safe to call more than once.
func (s *Sweeper) Shutdown() {
	s.once.Do(func() { close(s.stop) })
	<-s.done
}
