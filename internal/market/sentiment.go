package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ensembot/ensembot/internal/config"
	"github.com/ensembot/ensembot/internal/database"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const sentimentCacheKey = "sentiment:fear_greed_index"

// SentimentClient fetches a fear/greed-style index. Values are cached in
// redis for the configured TTL; on provider failure the last-known value is
// returned, and with no history at all a neutral 50.
type SentimentClient struct {
	httpClient *http.Client
	baseURL    string
	cache      *database.RedisClient
	cacheTTL   time.Duration
	logger     *logrus.Logger

	mu        sync.Mutex
	lastValue float64
	lastClass string
	hasLast   bool
}

type sentimentPayload struct {
	Value          float64 `json:"value"`
	Classification string  `json:"classification"`
}

// fngResponse matches the alternative.me fear & greed API shape.
type fngResponse struct {
	Data []struct {
		Value               string `json:"value"`
		ValueClassification string `json:"value_classification"`
	} `json:"data"`
}

// NewSentimentClient creates a new sentiment index client.
func NewSentimentClient(cfg config.SentimentConfig, cache *database.RedisClient, logger *logrus.Logger) *SentimentClient {
	ttl := config.Duration(cfg.CacheTTL)
	if ttl == 0 {
		ttl = 5 * time.Minute
	}
	return &SentimentClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		cache:      cache,
		cacheTTL:   ttl,
		logger:     logger,
	}
}

// GetIndex returns the current index value (0-100) and classification.
func (s *SentimentClient) GetIndex(ctx context.Context) (float64, string, error) {
	if cached, err := s.cache.Get(ctx, sentimentCacheKey); err == nil {
		var payload sentimentPayload
		if jsonErr := json.Unmarshal([]byte(cached), &payload); jsonErr == nil {
			return payload.Value, payload.Classification, nil
		}
	} else if err != redis.Nil {
		s.logger.WithError(err).Debug("Sentiment cache read failed")
	}

	value, class, err := s.fetch(ctx)
	if err != nil {
		s.mu.Lock()
		defer s.mu.Unlock()
		if s.hasLast {
			s.logger.WithError(err).Warn("Sentiment fetch failed, serving last-known value")
			return s.lastValue, s.lastClass, nil
		}
		s.logger.WithError(err).Warn("Sentiment fetch failed with no history, serving neutral 50")
		return 50, "Neutral", nil
	}

	s.mu.Lock()
	s.lastValue = value
	s.lastClass = class
	s.hasLast = true
	s.mu.Unlock()

	payload, _ := json.Marshal(sentimentPayload{Value: value, Classification: class})
	if err := s.cache.Set(ctx, sentimentCacheKey, string(payload), s.cacheTTL); err != nil {
		s.logger.WithError(err).Debug("Sentiment cache write failed")
	}

	return value, class, nil
}

func (s *SentimentClient) fetch(ctx context.Context) (float64, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL, nil)
	if err != nil {
		return 0, "", fmt.Errorf("failed to create sentiment request: %w", err)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return 0, "", fmt.Errorf("sentiment request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return 0, "", fmt.Errorf("failed to read sentiment response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, "", fmt.Errorf("sentiment request failed with status %d", resp.StatusCode)
	}

	var parsed fngResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return 0, "", fmt.Errorf("failed to decode sentiment response: %w", err)
	}
	if len(parsed.Data) == 0 {
		return 0, "", fmt.Errorf("sentiment response contained no data")
	}

	value, err := strconv.ParseFloat(parsed.Data[0].Value, 64)
	if err != nil {
		return 0, "", fmt.Errorf("invalid sentiment value %q: %w", parsed.Data[0].Value, err)
	}
	return value, parsed.Data[0].ValueClassification, nil
}
