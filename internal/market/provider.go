package market

import (
	"context"

	"github.com/ensembot/ensembot/internal/models"
	"github.com/shopspring/decimal"
)

// DataProvider is the external market-data collaborator. Implementations
// must tolerate provider outages; callers fall back to neutral readings when
// a call fails.
type DataProvider interface {
	// GetRecentCandles returns up to count closed candles of the given width
	// (seconds), oldest first.
	GetRecentCandles(ctx context.Context, instrument string, widthSeconds int64, count int) ([]models.Candle, error)
	// GetCurrentPrice returns the latest traded price.
	GetCurrentPrice(ctx context.Context, instrument string) (decimal.Decimal, error)
	// GetFundingRate returns the current perpetual funding rate.
	GetFundingRate(ctx context.Context, instrument string) (float64, error)
}

// SentimentProvider is the fear/greed-style index collaborator.
type SentimentProvider interface {
	// GetIndex returns the index value (0-100) and its classification.
	GetIndex(ctx context.Context) (float64, string, error)
}

// TickFeed is the push source the aggregator subscribes to per instrument.
// Reconnection and backoff are the feed owner's responsibility.
type TickFeed interface {
	// Subscribe returns a channel of ticks for one instrument. The channel
	// is closed when the feed shuts down.
	Subscribe(ctx context.Context, instrument string) (<-chan models.Tick, error)
}
