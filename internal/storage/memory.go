package storage

import (
	"context"
	"sort"
	"sync"
	"time"
)

type alertKey struct {
	productID string
	alertType string
}

type subKey struct {
	userID string
	sku    string
}

// MemoryStore is an in-process StateStore. It backs dry runs and tests; data
// does not survive a restart.
type MemoryStore struct {
	mu        sync.RWMutex
	states    map[string]ProductState
	alerts    []AlertRecord
	lastAlert map[alertKey]time.Time
	settings  map[string]string
	subs      map[subKey]Subscription
	nextID    int64
	synced    bool
	now       func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		states:    make(map[string]ProductState),
		lastAlert: make(map[alertKey]time.Time),
		settings:  make(map[string]string),
		subs:      make(map[subKey]Subscription),
		now:       time.Now,
	}
}

func (m *MemoryStore) GetProductState(_ context.Context, productID string) (*ProductState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	state, ok := m.states[productID]
	if !ok {
		return nil, nil
	}
	return &state, nil
}

func (m *MemoryStore) ListProductStates(_ context.Context) ([]ProductState, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	states := make([]ProductState, 0, len(m.states))
	for _, state := range m.states {
		states = append(states, state)
	}
	sort.Slice(states, func(i, j int) bool { return states[i].ProductID < states[j].ProductID })
	return states, nil
}

func (m *MemoryStore) UpsertProductState(_ context.Context, state ProductState) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.states[state.ProductID]; ok {
		state.FirstSeenAt = existing.FirstSeenAt
		if existing.LastCheckedAt.After(state.LastCheckedAt) {
			state.LastCheckedAt = existing.LastCheckedAt
		}
	}
	m.states[state.ProductID] = state
	return nil
}

func (m *MemoryStore) CountProductStates(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.states)), nil
}

func (m *MemoryStore) RecordAlert(_ context.Context, productID, alertType string, sentAt time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.nextID++
	m.alerts = append(m.alerts, AlertRecord{ID: m.nextID, ProductID: productID, AlertType: alertType, SentAt: sentAt})
	key := alertKey{productID: productID, alertType: alertType}
	if last, ok := m.lastAlert[key]; !ok || sentAt.After(last) {
		m.lastAlert[key] = sentAt
	}
	return nil
}

func (m *MemoryStore) LastAlertAt(_ context.Context, productID, alertType string) (time.Time, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	last, ok := m.lastAlert[alertKey{productID: productID, alertType: alertType}]
	return last, ok, nil
}

func (m *MemoryStore) ListRecentAlerts(_ context.Context, limit int) ([]AlertRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]AlertRecord, len(m.alerts))
	copy(out, m.alerts)
	sort.SliceStable(out, func(i, j int) bool { return out[i].SentAt.After(out[j].SentAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryStore) DeleteAlertsBefore(_ context.Context, olderThan time.Time) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	kept := m.alerts[:0]
	var removed int64
	for _, rec := range m.alerts {
		if rec.SentAt.Before(olderThan) {
			removed++
			continue
		}
		kept = append(kept, rec)
	}
	m.alerts = kept

	m.lastAlert = make(map[alertKey]time.Time, len(m.lastAlert))
	for _, rec := range m.alerts {
		key := alertKey{productID: rec.ProductID, alertType: rec.AlertType}
		if last, ok := m.lastAlert[key]; !ok || rec.SentAt.After(last) {
			m.lastAlert[key] = rec.SentAt
		}
	}
	return removed, nil
}

func (m *MemoryStore) GetSetting(_ context.Context, key string) (string, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	value, ok := m.settings[key]
	return value, ok, nil
}

func (m *MemoryStore) ListSettings(_ context.Context) (map[string]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make(map[string]string, len(m.settings))
	for k, v := range m.settings {
		out[k] = v
	}
	return out, nil
}

func (m *MemoryStore) SetSetting(_ context.Context, key, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.settings[key] = value
	return nil
}

func (m *MemoryStore) DeleteSetting(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.settings, key)
	return nil
}

func (m *MemoryStore) AddSubscription(_ context.Context, sub Subscription) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subKey{userID: sub.UserID, sku: sub.SKU}
	if _, exists := m.subs[key]; exists {
		return false, nil
	}
	m.nextID++
	sub.ID = m.nextID
	if sub.CreatedAt.IsZero() {
		sub.CreatedAt = m.now().UTC()
	}
	m.subs[key] = sub
	return true, nil
}

func (m *MemoryStore) RemoveSubscription(_ context.Context, userID, sku string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := subKey{userID: userID, sku: sku}
	if _, exists := m.subs[key]; !exists {
		return false, nil
	}
	delete(m.subs, key)
	return true, nil
}

func (m *MemoryStore) ListSubscriptionsBySKU(_ context.Context, sku string) ([]Subscription, error) {
	return m.filterSubs(func(s Subscription) bool { return s.SKU == sku }), nil
}

func (m *MemoryStore) ListSubscriptionsByUser(_ context.Context, userID string) ([]Subscription, error) {
	return m.filterSubs(func(s Subscription) bool { return s.UserID == userID }), nil
}

func (m *MemoryStore) ListSubscriptions(_ context.Context) ([]Subscription, error) {
	return m.filterSubs(func(Subscription) bool { return true }), nil
}

func (m *MemoryStore) CountSubscriptions(_ context.Context) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return int64(len(m.subs)), nil
}

func (m *MemoryStore) IsInitialSyncComplete(_ context.Context) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.synced, nil
}

func (m *MemoryStore) MarkInitialSyncComplete(_ context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.synced = true
	return nil
}

func (m *MemoryStore) filterSubs(keep func(Subscription) bool) []Subscription {
	m.mu.RLock()
	defer m.mu.RUnlock()

	out := make([]Subscription, 0)
	for _, sub := range m.subs {
		if keep(sub) {
			out = append(out, sub)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

var _ StateStore = (*MemoryStore)(nil)
