package alerting

import (
	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

// NextBaseline computes the state persisted after a cycle.
//
// The reference price only advances on first observation or when a price
// alert was delivered this cycle, so sub-threshold moves keep accumulating
// against the original baseline. One exception: a recorded price of zero is
// replaced by the current price even when no alert was delivered, since a
// zero baseline never yields a price event. Availability and last_checked_at
// are always refreshed; first_seen_at is carried over once set.
func NextBaseline(snap catalog.Snapshot, prev *storage.ProductState, priceAlertDelivered bool) storage.ProductState {
	next := storage.ProductState{
		ProductID:      snap.ID,
		SKU:            snap.SKU,
		Source:         snap.Source,
		LastPriceTotal: snap.PriceTotal,
		LastPricePerTB: snap.PricePerTB,
		LastAvailable:  snap.Available,
		LastCheckedAt:  snap.ObservedAt,
		FirstSeenAt:    snap.ObservedAt,
	}
	if prev == nil {
		return next
	}

	next.FirstSeenAt = prev.FirstSeenAt
	if prev.LastCheckedAt.After(next.LastCheckedAt) {
		next.LastCheckedAt = prev.LastCheckedAt
	}

	if !priceAlertDelivered && !prev.LastPriceTotal.IsZero() {
		next.LastPriceTotal = prev.LastPriceTotal
		next.LastPricePerTB = prev.LastPricePerTB
	}
	return next
}
