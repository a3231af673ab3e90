package service

import (
	"context"
	"time"

	"spabridge/internal/logger"
)

// DefaultPollTick is the fixed interval between scheduled refreshes.
const DefaultPollTick = 60 * time.Second

// PollerService drives the synchronizer on a fixed timer. User commands run
// out of band; this loop only keeps the mirror warm.
type PollerService struct {
	spa Spa
	log *logger.Logger
}

func NewPollerService(spa Spa, log *logger.Logger) *PollerService {
	if log == nil {
		log = logger.Get(logger.InfoLevel)
	}
	return &PollerService{spa: spa, log: log}
}

// Run ticks at the given interval until ctx is canceled. The first read is
// forced: the mirror is rebuilt from the remote on every process start.
func (p *PollerService) Run(ctx context.Context, tick time.Duration) {
	if tick <= 0 {
		tick = DefaultPollTick
	}

	p.spa.Refresh(ctx, true)

	t := time.NewTicker(tick)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			p.log.Infow("poller stopped")
			return
		case <-t.C:
			p.spa.Refresh(ctx, false)
		}
	}
}
