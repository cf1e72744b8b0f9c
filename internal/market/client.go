package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/ensembot/ensembot/internal/config"
	"github.com/ensembot/ensembot/internal/models"
	"github.com/shopspring/decimal"
)

// Client is the HTTP market-data client. It speaks to a sidecar service that
// proxies exchange APIs; every call carries the configured timeout so a slow
// provider degrades to a skipped reading instead of stalling the cycle.
type Client struct {
	HTTPClient *http.Client
	BaseURL    string
	timeout    time.Duration
}

// NewClient creates a new market-data client.
func NewClient(cfg config.MarketConfig) *Client {
	timeout := config.Duration(cfg.Timeout)
	if timeout == 0 {
		timeout = 10 * time.Second
	}

	return &Client{
		HTTPClient: &http.Client{Timeout: timeout},
		BaseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		timeout:    timeout,
	}
}

type candleResponse struct {
	Candles []struct {
		IntervalStart int64   `json:"interval_start"`
		Open          float64 `json:"open"`
		High          float64 `json:"high"`
		Low           float64 `json:"low"`
		Close         float64 `json:"close"`
		Volume        float64 `json:"volume"`
	} `json:"candles"`
}

type priceResponse struct {
	Price float64 `json:"price"`
}

type fundingResponse struct {
	FundingRate float64 `json:"funding_rate"`
}

// GetRecentCandles retrieves up to count closed candles, oldest first.
func (c *Client) GetRecentCandles(ctx context.Context, instrument string, widthSeconds int64, count int) ([]models.Candle, error) {
	path := fmt.Sprintf("/api/candles/%s?width=%d&count=%d", encodeInstrument(instrument), widthSeconds, count)
	var response candleResponse
	if err := c.makeRequest(ctx, path, &response); err != nil {
		return nil, err
	}

	candles := make([]models.Candle, 0, len(response.Candles))
	for _, rc := range response.Candles {
		candles = append(candles, models.Candle{
			Instrument:    instrument,
			IntervalStart: rc.IntervalStart,
			Open:          decimal.NewFromFloat(rc.Open),
			High:          decimal.NewFromFloat(rc.High),
			Low:           decimal.NewFromFloat(rc.Low),
			Close:         decimal.NewFromFloat(rc.Close),
			Volume:        decimal.NewFromFloat(rc.Volume),
		})
	}
	return candles, nil
}

// GetCurrentPrice retrieves the latest traded price for an instrument.
func (c *Client) GetCurrentPrice(ctx context.Context, instrument string) (decimal.Decimal, error) {
	path := fmt.Sprintf("/api/price/%s", encodeInstrument(instrument))
	var response priceResponse
	if err := c.makeRequest(ctx, path, &response); err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromFloat(response.Price), nil
}

// GetFundingRate retrieves the current perpetual funding rate.
func (c *Client) GetFundingRate(ctx context.Context, instrument string) (float64, error) {
	path := fmt.Sprintf("/api/funding/%s", encodeInstrument(instrument))
	var response fundingResponse
	if err := c.makeRequest(ctx, path, &response); err != nil {
		return 0, err
	}
	return response.FundingRate, nil
}

func (c *Client) makeRequest(ctx context.Context, path string, result interface{}) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+path, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("market data request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("market data request failed with status %d: %s", resp.StatusCode, string(body))
	}

	if err := json.Unmarshal(body, result); err != nil {
		return fmt.Errorf("failed to decode market data response: %w", err)
	}
	return nil
}

func encodeInstrument(instrument string) string {
	return strings.ReplaceAll(instrument, "/", "-")
}
