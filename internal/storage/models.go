package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// ProductState is the durable per-product record the detector compares against.
type ProductState struct {
	ProductID      string
	SKU            string
	Source         string
	LastPriceTotal decimal.Decimal
	LastPricePerTB decimal.Decimal
	LastAvailable  bool
	LastCheckedAt  time.Time
	FirstSeenAt    time.Time
}

// AlertRecord captures one delivered alert; used for cooldown and auditing.
type AlertRecord struct {
	ID        int64
	ProductID string
	AlertType string
	SentAt    time.Time
}

// DeliveryMode selects how a subscriber is reached.
type DeliveryMode string

const (
	DeliveryDirect  DeliveryMode = "dm"
	DeliveryChannel DeliveryMode = "channel"
)

// Valid reports whether the mode is one of the known modes.
func (m DeliveryMode) Valid() bool {
	return m == DeliveryDirect || m == DeliveryChannel
}

// Subscription is a per-user watch on a SKU.
type Subscription struct {
	ID        int64
	UserID    string
	SKU       string
	Mode      DeliveryMode
	ChannelID string
	CreatedAt time.Time
}
