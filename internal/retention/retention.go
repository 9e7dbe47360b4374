package retention

import (
	"log/slog"
	"sync"
	"time"
)

// Store is the history that gets pruned.
type Store interface {
	PruneBefore(t time.Time) (searches, developers int64, err error)
}

// Pruner periodically drops history older than a fixed age.
type Pruner struct {
	store    Store
	maxAge   time.Duration
	interval time.Duration
	now      func() time.Time
	stop     chan struct{}
	wg       sync.WaitGroup
	logger   *slog.Logger
}

// New returns a pruner keeping days of history. days <= 0 disables pruning.
func New(store Store, days int, logger *slog.Logger) *Pruner {
	return &Pruner{
		store:    store,
		maxAge:   time.Duration(days) * 24 * time.Hour,
		interval: time.Hour,
		now:      time.Now,
		stop:     make(chan struct{}),
		logger:   logger,
	}
}

// SetNow replaces the clock. Used in tests.
func (p *Pruner) SetNow(fn func() time.Time) {
	p.now = fn
}

// Start prunes once immediately and then every interval.
func (p *Pruner) Start() {
	if p.maxAge <= 0 {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		p.RunOnce()
		ticker := time.NewTicker(p.interval)
		defer ticker.Stop()
		for {
			select {
			case <-p.stop:
				return
			case <-ticker.C:
				p.RunOnce()
			}
		}
	}()
}

func (p *Pruner) Stop() {
	close(p.stop)
	p.wg.Wait()
}

// RunOnce runs a single prune synchronously.
func (p *Pruner) RunOnce() {
	if p.maxAge <= 0 {
		return
	}
	cutoff := p.now().Add(-p.maxAge)
	searches, devs, err := p.store.PruneBefore(cutoff)
	if err != nil {
		p.logger.Warn("retention: prune failed", "err", err)
		return
	}
	if searches > 0 || devs > 0 {
		p.logger.Info("retention: pruned history", "searches", searches, "developers", devs, "before", cutoff.Format(time.RFC3339))
	}
}
