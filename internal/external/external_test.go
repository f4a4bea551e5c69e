package external_test

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/kjannette/curvescan-backend/internal/external"
)

func init() {
	_ = godotenv.Load("../../.env")
}

func TestCoinGeckoQuoteUSDPrice(t *testing.T) {
	if os.Getenv("COINGECKO_LIVE_TEST") == "" {
		t.Skip("COINGECKO_LIVE_TEST not set, skipping live API call")
	}

	client := external.NewCoinGeckoClient("ethereum", os.Getenv("COINGECKO_API_KEY"), time.Minute)
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	price, err := client.QuoteUSDPrice(ctx)
	if err != nil {
		t.Fatalf("QuoteUSDPrice: %v", err)
	}
	if price <= 0 {
		t.Fatalf("expected positive price, got %f", price)
	}
	t.Logf("Quote price: $%.2f", price)

	// second call inside the TTL serves the cache
	cached, err := client.QuoteUSDPrice(ctx)
	if err != nil {
		t.Fatalf("cached QuoteUSDPrice: %v", err)
	}
	if cached != price {
		t.Fatalf("cache mismatch: %.2f != %.2f", cached, price)
	}
	t.Log("Cache hit verified")
}
