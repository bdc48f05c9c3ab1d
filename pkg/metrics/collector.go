package metrics

import (
	"context"
	"time"

	"github.com/cuemby/foodie/pkg/log"
	"github.com/cuemby/foodie/pkg/types"
)

// StatusCounter is the read side the collector needs from the order store
type StatusCounter interface {
	CountByStatus(ctx context.Context, statuses ...types.OrderStatus) (int, error)
}

// Collector periodically refreshes the per-status order gauges
type Collector struct {
	store    StatusCounter
	interval time.Duration
	stopCh   chan struct{}
}

// NewCollector creates a new metrics collector
func NewCollector(store StatusCounter, interval time.Duration) *Collector {
	if interval <= 0 {
		interval = 15 * time.Second
	}
	return &Collector{
		store:    store,
		interval: interval,
		stopCh:   make(chan struct{}),
	}
}

// Start begins collecting metrics
func (c *Collector) Start() {
	ticker := time.NewTicker(c.interval)
	go func() {
		// Collect immediately on start
		c.collect()

		for {
			select {
			case <-ticker.C:
				c.collect()
			case <-c.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop stops the collector
func (c *Collector) Stop() {
	close(c.stopCh)
}

func (c *Collector) collect() {
	ctx, cancel := context.WithTimeout(context.Background(), c.interval)
	defer cancel()

	for _, status := range types.StatusSequence {
		count, err := c.store.CountByStatus(ctx, status)
		if err != nil {
			logger := log.WithComponent("metrics")
			logger.Warn().Err(err).Str("status", string(status)).Msg("failed to count orders")
			continue
		}
		OrdersTotal.WithLabelValues(string(status)).Set(float64(count))
	}
}
