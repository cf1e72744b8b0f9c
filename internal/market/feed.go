package market

import (
	"context"
	"time"

	"github.com/ensembot/ensembot/internal/models"
	"github.com/sirupsen/logrus"
)

// PollingFeed synthesizes a tick stream by polling the market-data provider.
// It stands in where no native push feed is available; a websocket feed
// implementing TickFeed can replace it without touching the aggregator.
//
// Synthesized ticks carry no trade volume, so downstream volume-based
// heuristics (the aggregator's volume-spike trigger) stay dormant until a
// volume-bearing feed is wired in. Price-based triggers are unaffected.
type PollingFeed struct {
	provider DataProvider
	interval time.Duration
	logger   *logrus.Logger
}

// NewPollingFeed creates a polling feed with the given poll interval.
func NewPollingFeed(provider DataProvider, interval time.Duration, logger *logrus.Logger) *PollingFeed {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	return &PollingFeed{provider: provider, interval: interval, logger: logger}
}

// Subscribe starts a poll loop for one instrument. The returned channel is
// closed when the context is cancelled. Poll failures are logged and the
// loop keeps going; the provider owns reconnection concerns.
func (f *PollingFeed) Subscribe(ctx context.Context, instrument string) (<-chan models.Tick, error) {
	ticks := make(chan models.Tick)

	go func() {
		defer close(ticks)
		ticker := time.NewTicker(f.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				price, err := f.provider.GetCurrentPrice(ctx, instrument)
				if err != nil {
					f.logger.WithError(err).WithField("instrument", instrument).Debug("Tick poll failed")
					continue
				}
				tick := models.Tick{
					Instrument: instrument,
					Price:      price,
					Timestamp:  time.Now().UnixMilli(),
				}
				select {
				case ticks <- tick:
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return ticks, nil
}
