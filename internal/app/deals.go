package app

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
)

const (
	defaultDealCount = 5
	maxDealCount     = 25
)

// DealsOptions filter the deals listing.
type DealsOptions struct {
	Count int
	Type  string
}

// Deals prints the cheapest available products by price per TB.
func (a *App) Deals(ctx context.Context, out io.Writer, opts DealsOptions) error {
	if opts.Count == 0 {
		opts.Count = defaultDealCount
	}
	if opts.Count < 1 || opts.Count > maxDealCount {
		return fmt.Errorf("count must be between 1 and %d", maxDealCount)
	}

	snaps, err := a.newCatalog().FetchSnapshots(ctx)
	if err != nil {
		return err
	}

	deals := bestDeals(snaps, opts)
	if len(deals) == 0 {
		fmt.Fprintln(out, "no available products match")
		return nil
	}

	heading := "Best deals"
	if opts.Type != "" {
		heading = fmt.Sprintf("Best %s deals", strings.ToUpper(opts.Type))
	}
	fmt.Fprintf(out, "%s (by $/TB)\n", heading)
	for i, s := range deals {
		fmt.Fprintf(out, "%d. %s\n   %s TB %s • $%s/TB • $%s total\n",
			i+1, s.Name, s.CapacityTB, s.Type, s.PricePerTB.StringFixed(2), s.PriceTotal.StringFixed(2))
	}
	return nil
}

// bestDeals keeps available products, optionally of one type, sorted by
// ascending price per TB.
func bestDeals(snaps []catalog.Snapshot, opts DealsOptions) []catalog.Snapshot {
	out := make([]catalog.Snapshot, 0, len(snaps))
	for _, s := range snaps {
		if !s.Available {
			continue
		}
		if opts.Type != "" && !strings.EqualFold(s.Type, opts.Type) {
			continue
		}
		out = append(out, s)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].PricePerTB.LessThan(out[j].PricePerTB)
	})
	if opts.Count > 0 && len(out) > opts.Count {
		out = out[:opts.Count]
	}
	return out
}
