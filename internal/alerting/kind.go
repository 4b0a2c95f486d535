package alerting

import "fmt"

// Kind enumerates the alert events the detector can produce.
type Kind int

const (
	KindNewProduct Kind = iota
	KindPriceDrop
	KindPriceSpike
	KindBackInStock

	kindCount
)

// KindInfo is the static routing metadata of one kind.
type KindInfo struct {
	Name       string
	Title      string
	ChannelKey string
	EnabledKey string
	Color      int
	Price      bool
	Subscribed bool
}

// kindTable is indexed by Kind; the array length pins it to kindCount so a
// new kind without an entry fails TestKindTableComplete.
var kindTable = [kindCount]KindInfo{
	KindNewProduct: {
		Name:       "new_product",
		Title:      "New Product Listed",
		ChannelKey: "channel_new_product",
		EnabledKey: "alert_new_product_enabled",
		Color:      0x0099ff,
	},
	KindPriceDrop: {
		Name:       "price_drop",
		Title:      "Price Drop Alert",
		ChannelKey: "channel_price_drop",
		EnabledKey: "alert_price_drop_enabled",
		Color:      0x00ff00,
		Price:      true,
		Subscribed: true,
	},
	KindPriceSpike: {
		Name:       "price_spike",
		Title:      "Price Spike Alert",
		ChannelKey: "channel_price_spike",
		EnabledKey: "alert_price_spike_enabled",
		Color:      0xff0000,
		Price:      true,
		Subscribed: true,
	},
	KindBackInStock: {
		Name:       "back_in_stock",
		Title:      "Back in Stock",
		ChannelKey: "channel_back_in_stock",
		EnabledKey: "alert_back_in_stock_enabled",
		Color:      0x00ccff,
		Subscribed: true,
	},
}

// Kinds lists every kind in declaration order.
func Kinds() []Kind {
	out := make([]Kind, 0, kindCount)
	for k := Kind(0); k < kindCount; k++ {
		out = append(out, k)
	}
	return out
}

// Info returns the routing metadata of the kind.
func (k Kind) Info() KindInfo {
	if k < 0 || k >= kindCount {
		return KindInfo{Name: fmt.Sprintf("kind(%d)", int(k))}
	}
	return kindTable[k]
}

// String returns the persisted wire name.
func (k Kind) String() string {
	return k.Info().Name
}

// IsPrice reports whether the kind is a price movement.
func (k Kind) IsPrice() bool {
	return k.Info().Price
}

// Subscribable reports whether per-user subscriptions receive the kind.
// Nobody can subscribe to a product before it exists, so new listings are excluded.
func (k Kind) Subscribable() bool {
	return k.Info().Subscribed
}

// ParseKind resolves a wire name.
func ParseKind(name string) (Kind, error) {
	for k := Kind(0); k < kindCount; k++ {
		if kindTable[k].Name == name {
			return k, nil
		}
	}
	return 0, fmt.Errorf("unknown alert kind %q", name)
}
