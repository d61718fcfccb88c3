package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/rand"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ripvault/backend/internal/models"
	pkgerrors "github.com/ripvault/backend/pkg/errors"
)

// Fetcher is a card source adapter for one upstream catalog.
//
//go:generate mockgen -source=catalog.go -destination=mocks/mock_fetcher.go -package=mocks
type Fetcher interface {
	Catalog() models.Catalog
	// FetchCards draws exactly count cards from a randomized window of the
	// upstream catalog.
	FetchCards(ctx context.Context, count int) ([]models.CardData, error)
	// ListCards proxies an upstream listing page for browsing.
	ListCards(ctx context.Context, page, pageSize int) (*Listing, error)
}

type Listing struct {
	Cards      []models.CardData `json:"cards"`
	Page       int               `json:"page"`
	PageSize   int               `json:"page_size"`
	TotalCount int               `json:"total_count,omitempty"`
	HasMore    bool              `json:"has_more"`
}

const defaultRequestTimeout = 10 * time.Second

func newHTTPClient() *http.Client {
	return &http.Client{Timeout: defaultRequestTimeout}
}

// getJSON issues a GET with bounded exponential retry. Upstream 5xx and 429
// are retried; any other non-200 is permanent. The caller's context bounds
// all attempts.
func getJSON(ctx context.Context, client *http.Client, url string, headers map[string]string, v any) error {
	op := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return backoff.Permanent(err)
		}
		req.Header.Set("Content-Type", "application/json")
		for k, val := range headers {
			req.Header.Set(k, val)
		}

		resp, err := client.Do(req)
		if err != nil {
			return err
		}
		defer resp.Body.Close()

		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return fmt.Errorf("upstream returned status %d", resp.StatusCode)
		}
		if resp.StatusCode != http.StatusOK {
			return backoff.Permanent(fmt.Errorf("upstream returned status %d", resp.StatusCode))
		}
		if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
			return backoff.Permanent(fmt.Errorf("failed to decode upstream payload: %w", err))
		}
		return nil
	}

	policy := backoff.WithContext(backoff.WithMaxRetries(backoff.NewExponentialBackOff(), 2), ctx)
	if err := backoff.Retry(op, policy); err != nil {
		slog.Error("catalog request failed", "url", url, "error", err)
		return fmt.Errorf("%w: %v", pkgerrors.ErrCatalogUnavailable, err)
	}
	return nil
}

// sampleCards randomly selects up to count cards from an oversized window.
func sampleCards(cards []models.CardData, count int) []models.CardData {
	rand.Shuffle(len(cards), func(i, j int) {
		cards[i], cards[j] = cards[j], cards[i]
	})
	if len(cards) > count {
		cards = cards[:count]
	}
	return cards
}
