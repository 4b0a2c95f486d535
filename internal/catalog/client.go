package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/coocood/freecache"
	json "github.com/goccy/go-json"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

// ErrStatus is wrapped by every non-2xx catalog response.
var ErrStatus = errors.New("catalog: unexpected status")

// ClientOptions parameterise the catalog HTTP client.
type ClientOptions struct {
	BaseURL         string
	Timeout         time.Duration
	UserAgent       string
	HistoryCacheMB  int
	HistoryCacheTTL time.Duration
}

// Client fetches products and price history from the upstream catalog API.
type Client struct {
	opts     ClientOptions
	baseURL  string
	client   *http.Client
	logger   zerolog.Logger
	cache    *freecache.Cache
	cacheTTL int
	now      func() time.Time
}

// NewClient constructs a catalog client.
func NewClient(opts ClientOptions, logger zerolog.Logger) *Client {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://onlydrives.tx.au/api"
	}

	c := &Client{
		opts:    opts,
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger.With().Str("component", "catalog_client").Logger(),
		now:     time.Now,
	}

	if opts.HistoryCacheMB > 0 && opts.HistoryCacheTTL > 0 {
		c.cache = freecache.NewCache(opts.HistoryCacheMB * 1024 * 1024)
		c.cacheTTL = max(int(opts.HistoryCacheTTL.Seconds()), 1)
	}

	return c
}

// FetchSnapshots retrieves the full product list.
func (c *Client) FetchSnapshots(ctx context.Context) ([]Snapshot, error) {
	body, status, err := c.get(ctx, "/products")
	if err != nil {
		return nil, fmt.Errorf("fetch products: %w", err)
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("fetch products: %w: %d %s", ErrStatus, status, snippet(body))
	}

	// Records are decoded one at a time so a malformed entry only drops itself.
	var records []json.RawMessage
	if err := json.Unmarshal(body, &records); err != nil {
		return nil, fmt.Errorf("decode products: %w", err)
	}

	observedAt := c.now().UTC()
	snapshots := make([]Snapshot, 0, len(records))
	for i, raw := range records {
		var p productPayload
		if err := json.Unmarshal(raw, &p); err != nil {
			c.logger.Warn().Err(err).Int("index", i).Str("record", snippet(raw)).Msg("skipping undecodable product")
			continue
		}
		if p.ID == "" {
			c.logger.Warn().Str("sku", string(p.SKU)).Msg("skipping product without id")
			continue
		}
		snapshots = append(snapshots, toSnapshot(p, observedAt))
	}
	return snapshots, nil
}

// FetchHistory retrieves the price history of one product. Unknown products
// yield an empty list rather than an error.
func (c *Client) FetchHistory(ctx context.Context, source, sku string) ([]HistoricalPricePoint, error) {
	key := ProductKey(source, sku)

	if c.cache != nil {
		if cached, err := c.cache.Get([]byte(key)); err == nil {
			return decodeHistory(cached)
		}
	}

	body, status, err := c.get(ctx, "/sku/"+url.PathEscape(key)+"/price-history")
	if err != nil {
		return nil, fmt.Errorf("fetch price history: %w", err)
	}
	if status == http.StatusNotFound || status == http.StatusBadRequest {
		return []HistoricalPricePoint{}, nil
	}
	if status < 200 || status >= 300 {
		return nil, fmt.Errorf("fetch price history: %w: %d %s", ErrStatus, status, snippet(body))
	}

	points, err := decodeHistory(body)
	if err != nil {
		return nil, err
	}
	if c.cache != nil {
		_ = c.cache.Set([]byte(key), body, c.cacheTTL)
	}
	return points, nil
}

func (c *Client) get(ctx context.Context, path string) ([]byte, int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return nil, 0, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	} else {
		req.Header.Set("User-Agent", "drivewatch/1.0")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resp.StatusCode, err
	}
	return body, resp.StatusCode, nil
}

func decodeHistory(body []byte) ([]HistoricalPricePoint, error) {
	var payload []historyPayload
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("decode price history: %w", err)
	}

	points := make([]HistoricalPricePoint, 0, len(payload))
	for _, p := range payload {
		recorded, err := time.Parse(time.RFC3339, string(p.RecordedAt))
		if err != nil {
			continue
		}
		points = append(points, HistoricalPricePoint{
			RecordedAt: recorded.UTC(),
			PriceTotal: ParsePrice(string(p.PriceTotal)),
			PricePerTB: ParsePrice(string(p.PricePerTB)),
		})
	}
	return points, nil
}

func toSnapshot(p productPayload, observedAt time.Time) Snapshot {
	total := ParsePrice(string(p.CurrentPriceTotal))
	perTB := ParsePrice(string(p.CurrentPricePerTB))
	if perTB.IsZero() {
		perTB = derivePerTB(total, ParsePrice(string(p.CapacityTB)))
	}

	return Snapshot{
		ID:         string(p.ID),
		SKU:        string(p.SKU),
		Source:     string(p.Source),
		Name:       string(p.Name),
		Type:       string(p.Type),
		Condition:  string(p.Condition),
		CapacityTB: string(p.CapacityTB),
		URL:        string(p.URL),
		ImageURL:   string(p.ImageURL),
		Available:  bool(p.Available),
		PriceTotal: total,
		PricePerTB: perTB,
		ObservedAt: observedAt,
	}
}

func derivePerTB(total, capacity decimal.Decimal) decimal.Decimal {
	if capacity.Sign() <= 0 {
		return decimal.Zero
	}
	return total.Div(capacity).Round(2)
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 200 {
		return s[:200]
	}
	return s
}

var (
	_ Source        = (*Client)(nil)
	_ HistorySource = (*Client)(nil)
)
