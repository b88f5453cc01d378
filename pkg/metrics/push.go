package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/push"
)

type Logger interface {
	Infow(msg string, keysAndValues ...interface{})
	Warnw(msg string, keysAndValues ...interface{})
}

// Pusher periodically pushes a registry to a Prometheus push gateway.
type Pusher struct {
	pusher           *push.Pusher
	interval         time.Duration
	deleteOnShutdown bool
	logger           Logger
}

func NewPusher(url, job, instance string, gatherer prometheus.Gatherer, interval time.Duration, deleteOnShutdown bool, logger Logger) *Pusher {
	p := push.New(url, job).Gatherer(gatherer)
	if instance != "" {
		p = p.Grouping("instance", instance)
	}
	return &Pusher{
		pusher:           p,
		interval:         interval,
		deleteOnShutdown: deleteOnShutdown,
		logger:           logger,
	}
}

// Run pushes on every tick until ctx is done, then pushes once more so the
// final counts are not lost.
func (p *Pusher) Run(ctx context.Context) error {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return p.shutdown()
		case <-ticker.C:
			if err := p.pusher.PushContext(ctx); err != nil {
				p.logger.Warnw("Failed to push metrics", "error", err)
			}
		}
	}
}

func (p *Pusher) shutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := p.pusher.PushContext(ctx); err != nil {
		p.logger.Warnw("Failed to push final metrics", "error", err)
	}

	if !p.deleteOnShutdown {
		return nil
	}
	if err := p.pusher.Delete(); err != nil {
		return fmt.Errorf("failed to delete metrics from push gateway: %w", err)
	}
	p.logger.Infow("Deleted metrics from push gateway")
	return nil
}
