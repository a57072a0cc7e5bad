// snapshot.go fetches the REST depth snapshot used to bootstrap a symbol's
// order-book replica (§4.5, §6).
package exchange

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
)

// Snapshot is the REST depth-snapshot response, still in wire-string form —
// only internal/book converts price/quantity to decimal.Decimal.
type Snapshot struct {
	LastUpdateID int64                  `json:"lastUpdateId"`
	EventTime    int64                  `json:"E"`
	TransactTime int64                  `json:"T"`
	Bids         []SnapshotLevel        `json:"bids"`
	Asks         []SnapshotLevel        `json:"asks"`
}

// SnapshotLevel is one [price, quantity] pair from the snapshot response.
type SnapshotLevel [2]string

// SnapshotClient fetches REST depth snapshots. Separate from StreamClient
// because it's a plain request/response HTTP call, not a long-lived
// connection — grounded on the teacher's resty-based REST client, scoped
// down to the one read-only endpoint this system needs.
type SnapshotClient struct {
	http   *resty.Client
	logger *slog.Logger
}

// NewSnapshotClient creates a REST client against baseURL (e.g.
// "https://fapi.binance.com") with retry on 5xx and transient errors.
func NewSnapshotClient(baseURL string, timeout time.Duration, logger *slog.Logger) *SnapshotClient {
	httpClient := resty.New().
		SetBaseURL(strings.TrimRight(baseURL, "/")).
		SetTimeout(timeout).
		SetRetryCount(3).
		SetRetryWaitTime(200 * time.Millisecond).
		SetRetryMaxWaitTime(2 * time.Second).
		AddRetryCondition(func(r *resty.Response, err error) bool {
			if err != nil {
				return true
			}
			return r.StatusCode() >= 500
		})

	return &SnapshotClient{
		http:   httpClient,
		logger: logger.With("component", "snapshot_client"),
	}
}

// Fetch retrieves the depth snapshot for symbol, capped to limit price
// levels per side.
func (c *SnapshotClient) Fetch(ctx context.Context, symbol string, limit int) (*Snapshot, error) {
	var result Snapshot
	resp, err := c.http.R().
		SetContext(ctx).
		SetQueryParams(map[string]string{
			"symbol": strings.ToUpper(symbol),
			"limit":  fmt.Sprintf("%d", limit),
		}).
		SetResult(&result).
		Get("/fapi/v1/depth")
	if err != nil {
		return nil, fmt.Errorf("exchange: fetch snapshot for %s: %w", symbol, err)
	}
	if resp.StatusCode() != http.StatusOK {
		return nil, fmt.Errorf("exchange: fetch snapshot for %s: status %d: %s", symbol, resp.StatusCode(), resp.String())
	}
	return &result, nil
}
