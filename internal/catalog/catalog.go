package catalog

import (
	"context"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Snapshot is one fetched observation of a product.
type Snapshot struct {
	ID         string
	SKU        string
	Source     string
	Name       string
	Type       string
	Condition  string
	CapacityTB string
	URL        string
	ImageURL   string
	Available  bool
	PriceTotal decimal.Decimal
	PricePerTB decimal.Decimal
	ObservedAt time.Time
}

// Key returns the upstream history key of the product.
func (s Snapshot) Key() string {
	return ProductKey(s.Source, s.SKU)
}

// HistoricalPricePoint is a single entry of the upstream price history.
type HistoricalPricePoint struct {
	RecordedAt time.Time
	PriceTotal decimal.Decimal
	PricePerTB decimal.Decimal
}

// Source retrieves the product catalog.
type Source interface {
	FetchSnapshots(ctx context.Context) ([]Snapshot, error)
}

// HistorySource retrieves per-product price history.
type HistorySource interface {
	FetchHistory(ctx context.Context, source, sku string) ([]HistoricalPricePoint, error)
}

// ParsePrice parses an upstream price string. Malformed input yields zero so
// that one bad record does not block the rest of the batch.
func ParsePrice(raw string) decimal.Decimal {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero
	}
	return d
}

// ProductKey joins source and SKU the way the upstream history endpoint expects.
func ProductKey(source, sku string) string {
	return source + "-" + sku
}

// SplitProductKey is the inverse of ProductKey. Sources may contain dashes
// themselves ("east-digital"), so the longest matching known source wins and
// the first dash is only a fallback.
func SplitProductKey(key string, knownSources []string) (source, sku string, ok bool) {
	best := ""
	for _, candidate := range knownSources {
		if candidate == "" || len(candidate) <= len(best) {
			continue
		}
		if strings.HasPrefix(key, candidate+"-") && len(key) > len(candidate)+1 {
			best = candidate
		}
	}
	if best != "" {
		return best, key[len(best)+1:], true
	}

	source, sku, found := strings.Cut(key, "-")
	if !found || source == "" || sku == "" {
		return "", "", false
	}
	return source, sku, true
}

// NormalizeSKU is the canonical form used for subscription matching.
func NormalizeSKU(sku string) string {
	return strings.ToUpper(strings.TrimSpace(sku))
}
