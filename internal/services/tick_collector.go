package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/ensembot/ensembot/internal/market"
	"github.com/ensembot/ensembot/internal/models"
	"github.com/sirupsen/logrus"
)

// TickCollector attaches one goroutine per instrument to the external tick
// feed and drives that instrument's aggregator. Tick handling within one
// instrument is strictly ordered; instruments never share an aggregator.
type TickCollector struct {
	feed        market.TickFeed
	aggregators map[string]*CandleAggregator
	engine      *Engine
	logger      *logrus.Logger

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewTickCollector creates a new collector.
func NewTickCollector(feed market.TickFeed, aggregators map[string]*CandleAggregator, engine *Engine, logger *logrus.Logger) *TickCollector {
	return &TickCollector{
		feed:        feed,
		aggregators: aggregators,
		engine:      engine,
		logger:      logger,
	}
}

// Start subscribes every aggregator to its feed. Subscription failures stop
// the whole start so a half-attached collector never runs silently.
func (c *TickCollector) Start(ctx context.Context) error {
	ctx, c.cancel = context.WithCancel(ctx)

	for instrument, aggregator := range c.aggregators {
		aggregator.SetLifecycle(LifecycleConnecting)
		ticks, err := c.feed.Subscribe(ctx, instrument)
		if err != nil {
			aggregator.SetLifecycle(LifecycleUninitialized)
			c.cancel()
			return fmt.Errorf("failed to subscribe to %s: %w", instrument, err)
		}
		aggregator.SetLifecycle(LifecycleConnected)

		c.wg.Add(1)
		go c.consume(ctx, aggregator, ticks)
	}

	c.logger.WithField("instruments", len(c.aggregators)).Info("Tick collector started")
	return nil
}

// Stop detaches from the feed and waits for in-flight tick handling.
func (c *TickCollector) Stop() {
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()
	for _, aggregator := range c.aggregators {
		aggregator.SetLifecycle(LifecycleUninitialized)
	}
	c.logger.Info("Tick collector stopped")
}

func (c *TickCollector) consume(ctx context.Context, aggregator *CandleAggregator, ticks <-chan models.Tick) {
	defer c.wg.Done()
	for {
		select {
		case <-ctx.Done():
			return
		case tick, ok := <-ticks:
			if !ok {
				c.logger.WithField("instrument", aggregator.Instrument()).Warn("Tick feed closed")
				aggregator.SetLifecycle(LifecycleUninitialized)
				return
			}
			result := aggregator.Ingest(tick)
			if result.EvaluateNow {
				c.engine.TriggerEvaluation(ctx, aggregator.Instrument(), result.Reason)
			}
		}
	}
}
