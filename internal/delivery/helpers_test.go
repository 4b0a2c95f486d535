package delivery

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/thesammykins/onlydrives-alert-bot/internal/alerting"
	"github.com/thesammykins/onlydrives-alert-bot/internal/catalog"
)

type sent struct {
	target string
	user   bool
	msg    Message
}

type fakeTransport struct {
	mu      sync.Mutex
	sends   []sent
	failFor map[string]bool
}

func newFakeTransport(failing ...string) *fakeTransport {
	f := &fakeTransport{failFor: make(map[string]bool)}
	for _, id := range failing {
		f.failFor[id] = true
	}
	return f
}

func (f *fakeTransport) record(target string, user bool, msg Message) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failFor[target] {
		return errors.New("unknown channel")
	}
	f.sends = append(f.sends, sent{target: target, user: user, msg: msg})
	return nil
}

func (f *fakeTransport) SendToChannel(_ context.Context, channelID string, msg Message) error {
	return f.record(channelID, false, msg)
}

func (f *fakeTransport) SendToUser(_ context.Context, userID string, msg Message) error {
	return f.record(userID, true, msg)
}

func (f *fakeTransport) targets() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]string, 0, len(f.sends))
	for _, s := range f.sends {
		out = append(out, s.target)
	}
	return out
}

func dropEvent() alerting.Event {
	return alerting.Event{
		Kind: alerting.KindPriceDrop,
		Product: catalog.Snapshot{
			ID:         "123",
			SKU:        "ST10000NM",
			Source:     "test-source",
			Name:       "Exos 10TB",
			Type:       "HDD",
			Condition:  "Refurbished",
			CapacityTB: "10.00",
			URL:        "https://example.com/p/123",
			ImageURL:   "https://example.com/p/123.png",
			Available:  true,
			PriceTotal: decimal.RequireFromString("180"),
			PricePerTB: decimal.RequireFromString("18"),
			ObservedAt: time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC),
		},
		PreviousPrice: decimal.NewNullDecimal(decimal.RequireFromString("200")),
		CurrentPrice:  decimal.RequireFromString("180"),
		PercentChange: decimal.NewNullDecimal(decimal.RequireFromString("-0.1")),
	}
}
