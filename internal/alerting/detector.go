package alerting

import (
	"github.com/shopspring/decimal"

	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
	"github.com/thesammykins/onlydrives-alert-bot/internal/storage"
)

// Thresholds are fractional price moves, e.g. 0.05 for 5%.
type Thresholds struct {
	Drop  decimal.Decimal
	Spike decimal.Decimal
}

// Event is one detected alert for a product.
type Event struct {
	Kind          Kind
	Product       catalog.Snapshot
	PreviousPrice decimal.NullDecimal
	CurrentPrice  decimal.Decimal
	PercentChange decimal.NullDecimal
}

// Detect compares a snapshot to the recorded state. It is a pure function:
// a price event, if any, always precedes a restock event.
func Detect(snap catalog.Snapshot, prev *storage.ProductState, th Thresholds) []Event {
	current := snap.PriceTotal

	if prev == nil {
		return []Event{{Kind: KindNewProduct, Product: snap, CurrentPrice: current}}
	}

	events := make([]Event, 0, 2)

	if previous := prev.LastPriceTotal; !previous.IsZero() {
		change := current.Sub(previous).Div(previous)
		if kind, ok := classifyChange(change, th); ok {
			events = append(events, Event{
				Kind:          kind,
				Product:       snap,
				PreviousPrice: decimal.NewNullDecimal(previous),
				CurrentPrice:  current,
				PercentChange: decimal.NewNullDecimal(change),
			})
		}
	}

	if snap.Available && !prev.LastAvailable {
		events = append(events, Event{Kind: KindBackInStock, Product: snap, CurrentPrice: current})
	}

	return events
}

// classifyChange checks the drop first; drop and spike are mutually exclusive.
func classifyChange(change decimal.Decimal, th Thresholds) (Kind, bool) {
	switch {
	case change.LessThanOrEqual(th.Drop.Neg()):
		return KindPriceDrop, true
	case change.GreaterThanOrEqual(th.Spike):
		return KindPriceSpike, true
	default:
		return 0, false
	}
}
