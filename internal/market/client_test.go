package market

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ensembot/ensembot/internal/config"
)

func newTestClient(handler http.HandlerFunc) (*Client, *httptest.Server) {
	server := httptest.NewServer(handler)
	client := NewClient(config.MarketConfig{BaseURL: server.URL, Timeout: "2s"})
	return client, server
}

func TestGetRecentCandles(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/candles/BTC-USDT", r.URL.Path)
		assert.Equal(t, "60", r.URL.Query().Get("width"))
		assert.Equal(t, "2", r.URL.Query().Get("count"))

		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"candles":[
			{"interval_start":0,"open":100,"high":105,"low":99,"close":104,"volume":12},
			{"interval_start":60,"open":104,"high":106,"low":103,"close":105,"volume":8}
		]}`))
	})
	defer server.Close()

	candles, err := client.GetRecentCandles(context.Background(), "BTC/USDT", 60, 2)

	require.NoError(t, err)
	require.Len(t, candles, 2)
	assert.Equal(t, "BTC/USDT", candles[0].Instrument)
	assert.Equal(t, int64(0), candles[0].IntervalStart)
	assert.True(t, candles[0].High.Equal(decimal.NewFromInt(105)))
	assert.True(t, candles[1].Close.Equal(decimal.NewFromInt(105)))
	assert.True(t, candles[0].Valid())
}

func TestGetCurrentPrice(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/price/ETH-USDT", r.URL.Path)
		w.Write([]byte(`{"price":3210.5}`))
	})
	defer server.Close()

	price, err := client.GetCurrentPrice(context.Background(), "ETH/USDT")

	require.NoError(t, err)
	assert.True(t, price.Equal(decimal.NewFromFloat(3210.5)))
}

func TestGetFundingRate(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/funding/BTC-USDT", r.URL.Path)
		w.Write([]byte(`{"funding_rate":0.0003}`))
	})
	defer server.Close()

	rate, err := client.GetFundingRate(context.Background(), "BTC/USDT")

	require.NoError(t, err)
	assert.Equal(t, 0.0003, rate)
}

func TestClientErrorStatus(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream exchange unavailable", http.StatusBadGateway)
	})
	defer server.Close()

	_, err := client.GetCurrentPrice(context.Background(), "BTC/USDT")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 502")
}

func TestClientMalformedBody(t *testing.T) {
	client, server := newTestClient(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("not json"))
	})
	defer server.Close()

	_, err := client.GetFundingRate(context.Background(), "BTC/USDT")
	require.Error(t, err)
}
