package external

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/kjannette/curvescan-backend/internal/retry"
)

const coingeckoURL = "https://api.coingecko.com/api/v3/simple/price?ids=%s&vs_currencies=usd"

// CoinGeckoClient fetches the USD price of the quote asset so reported
// quote amounts can be rendered in dollars. Results are cached for a TTL;
// the chain indexer never blocks on this.
type CoinGeckoClient struct {
	assetID    string
	apiKey     string
	httpClient *http.Client
	policy     retry.Policy

	mu          sync.Mutex
	cachedPrice float64
	lastFetch   time.Time
	cacheTTL    time.Duration
}

func NewCoinGeckoClient(assetID, apiKey string, cacheTTL time.Duration) *CoinGeckoClient {
	if cacheTTL <= 0 {
		cacheTTL = 5 * time.Minute
	}
	return &CoinGeckoClient{
		assetID:    assetID,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 10 * time.Second},
		policy: retry.Policy{
			MaxAttempts: 3,
			BaseDelay:   2 * time.Second,
			MaxDelay:    10 * time.Second,
		},
		cacheTTL: cacheTTL,
	}
}

// QuoteUSDPrice returns the quote asset's USD price, served from cache
// within the TTL.
func (c *CoinGeckoClient) QuoteUSDPrice(ctx context.Context) (float64, error) {
	c.mu.Lock()
	if c.cachedPrice > 0 && time.Since(c.lastFetch) < c.cacheTTL {
		price := c.cachedPrice
		c.mu.Unlock()
		return price, nil
	}
	c.mu.Unlock()

	price, err := c.fetch(ctx)
	if err != nil {
		return 0, err
	}

	c.mu.Lock()
	c.cachedPrice = price
	c.lastFetch = time.Now()
	c.mu.Unlock()
	return price, nil
}

func (c *CoinGeckoClient) fetch(ctx context.Context) (float64, error) {
	url := fmt.Sprintf(coingeckoURL, c.assetID)
	resp, err := retry.DoHTTP(ctx, c.httpClient, c.policy, func() (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, err
		}
		if c.apiKey != "" {
			req.Header.Set("x-cg-demo-api-key", c.apiKey)
		}
		return req, nil
	})
	if err != nil {
		return 0, fmt.Errorf("coingecko fetch: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("coingecko returned status %d", resp.StatusCode)
	}

	var data map[string]struct {
		USD float64 `json:"usd"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return 0, fmt.Errorf("decode: %w", err)
	}

	entry, ok := data[c.assetID]
	if !ok || entry.USD <= 0 {
		return 0, fmt.Errorf("invalid price for %s: %+v", c.assetID, data)
	}
	return entry.USD, nil
}
