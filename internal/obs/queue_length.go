// Copyright 2025 James Ross
package obs

import (
	"context"
	"time"

	"github.com/flyingrobots/go-redis-work-queue/internal/config"
	"github.com/flyingrobots/go-redis-work-queue/internal/queue"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// StartReadySetSampler samples the ready and active set sizes for each
// configured queue type and publishes them as gauges.
func StartReadySetSampler(ctx context.Context, cfg *config.Config, rdb *redis.Client, log *zap.Logger) {
	interval := 2 * time.Second
	if cfg.Observability.ReadySampleInterval > 0 {
		interval = cfg.Observability.ReadySampleInterval
	}
	keys := queue.KeyBuilder{Prefix: cfg.Sharq.KeyPrefix}

	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				for _, qtype := range cfg.Worker.QueueTypes {
					ready, err := rdb.ZCard(ctx, keys.ReadySet(qtype)).Result()
					if err != nil {
						log.Debug("ready set size poll error", String("queue_type", qtype), Err(err))
					} else {
						ReadySetSize.WithLabelValues(qtype).Set(float64(ready))
					}

					active, err := rdb.ZCard(ctx, keys.ActiveSet(qtype)).Result()
					if err != nil {
						log.Debug("active set size poll error", String("queue_type", qtype), Err(err))
						continue
					}
					ActiveSetSize.WithLabelValues(qtype).Set(float64(active))
				}
			}
		}
	}()
}
