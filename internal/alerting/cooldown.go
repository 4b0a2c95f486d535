package alerting

import (
	"context"
	"fmt"
	"time"
)

// AlertLog is the slice of the state store the gate needs.
type AlertLog interface {
	RecordAlert(ctx context.Context, productID, alertType string, sentAt time.Time) error
	LastAlertAt(ctx context.Context, productID, alertType string) (time.Time, bool, error)
}

// CooldownGate rate-limits deliveries per (product, kind) pair.
type CooldownGate struct {
	log AlertLog
}

// NewCooldownGate constructs a gate over the alert log.
func NewCooldownGate(log AlertLog) *CooldownGate {
	return &CooldownGate{log: log}
}

// MayFire reports whether the pair has no delivery within the cooldown window.
func (g *CooldownGate) MayFire(ctx context.Context, productID string, kind Kind, cooldown time.Duration, now time.Time) (bool, error) {
	last, ok, err := g.log.LastAlertAt(ctx, productID, kind.String())
	if err != nil {
		return false, fmt.Errorf("read cooldown: %w", err)
	}
	if !ok {
		return true, nil
	}
	return now.Sub(last) >= cooldown, nil
}

// Record stamps a delivery. Call it only after a successful send.
func (g *CooldownGate) Record(ctx context.Context, productID string, kind Kind, now time.Time) error {
	if err := g.log.RecordAlert(ctx, productID, kind.String(), now); err != nil {
		return fmt.Errorf("record cooldown: %w", err)
	}
	return nil
}
