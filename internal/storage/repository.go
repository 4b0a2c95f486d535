package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

var (
	// ErrNotConfigured indicates the storage pool was not initialised.
	ErrNotConfigured = errors.New("storage: pool not configured")
)

const initialSyncMarker = "initial_sync_complete"

const (
	getProductStateSQL = `SELECT
        product_id,
        sku,
        source,
        last_price_total::text,
        last_price_per_tb::text,
        last_available,
        last_checked_at,
        first_seen_at
    FROM product_state
    WHERE product_id = $1;`

	listProductStatesSQL = `SELECT
        product_id,
        sku,
        source,
        last_price_total::text,
        last_price_per_tb::text,
        last_available,
        last_checked_at,
        first_seen_at
    FROM product_state
    ORDER BY product_id;`

	// first_seen_at is written once; last_checked_at never moves backwards.
	upsertProductStateSQL = `INSERT INTO product_state (
        product_id,
        sku,
        source,
        last_price_total,
        last_price_per_tb,
        last_available,
        last_checked_at,
        first_seen_at
    ) VALUES (
        $1,$2,$3,$4,$5,$6,$7,$8
    )
    ON CONFLICT (product_id) DO UPDATE
    SET
        sku               = EXCLUDED.sku,
        source            = EXCLUDED.source,
        last_price_total  = EXCLUDED.last_price_total,
        last_price_per_tb = EXCLUDED.last_price_per_tb,
        last_available    = EXCLUDED.last_available,
        last_checked_at   = GREATEST(product_state.last_checked_at, EXCLUDED.last_checked_at);`

	countProductStatesSQL = `SELECT COUNT(*) FROM product_state;`

	insertAlertSQL = `INSERT INTO alert_log (product_id, alert_type, sent_at)
    VALUES ($1,$2,$3)
    RETURNING id;`

	lastAlertSQL = `SELECT sent_at
    FROM alert_log
    WHERE product_id = $1
      AND alert_type = $2
    ORDER BY sent_at DESC
    LIMIT 1;`

	listRecentAlertsSQL = `SELECT
        id,
        product_id,
        alert_type,
        sent_at
    FROM alert_log
    ORDER BY sent_at DESC
    LIMIT $1;`

	deleteAlertsBeforeSQL = `DELETE FROM alert_log WHERE sent_at < $1;`

	getSettingSQL    = `SELECT value FROM bot_settings WHERE key = $1;`
	listSettingsSQL  = `SELECT key, value FROM bot_settings ORDER BY key;`
	deleteSettingSQL = `DELETE FROM bot_settings WHERE key = $1;`
	upsertSettingSQL = `INSERT INTO bot_settings (key, value, updated_at)
    VALUES ($1,$2,now())
    ON CONFLICT (key) DO UPDATE
    SET value = EXCLUDED.value, updated_at = now();`

	insertSubscriptionSQL = `INSERT INTO sku_subscriptions (user_id, sku, delivery_method, channel_id)
    VALUES ($1,$2,$3,$4)
    ON CONFLICT (user_id, sku) DO NOTHING;`

	deleteSubscriptionSQL = `DELETE FROM sku_subscriptions WHERE user_id = $1 AND sku = $2;`

	listSubscriptionsBySKUSQL = `SELECT id, user_id, sku, delivery_method, channel_id, created_at
    FROM sku_subscriptions
    WHERE sku = $1
    ORDER BY id;`

	listSubscriptionsByUserSQL = `SELECT id, user_id, sku, delivery_method, channel_id, created_at
    FROM sku_subscriptions
    WHERE user_id = $1
    ORDER BY sku;`

	listAllSubscriptionsSQL = `SELECT id, user_id, sku, delivery_method, channel_id, created_at
    FROM sku_subscriptions
    ORDER BY id;`

	countSubscriptionsSQL = `SELECT COUNT(*) FROM sku_subscriptions;`

	getMarkerSQL    = `SELECT EXISTS (SELECT 1 FROM sync_markers WHERE name = $1);`
	insertMarkerSQL = `INSERT INTO sync_markers (name) VALUES ($1) ON CONFLICT (name) DO NOTHING;`

	tryAdvisoryLockSQL = `SELECT pg_try_advisory_lock($1);`
	advisoryUnlockSQL  = `SELECT pg_advisory_unlock($1);`
)

// ProductStateStore persists per-product recorded state.
type ProductStateStore interface {
	// GetProductState returns nil without error when the product was never recorded.
	GetProductState(ctx context.Context, productID string) (*ProductState, error)
	ListProductStates(ctx context.Context) ([]ProductState, error)
	UpsertProductState(ctx context.Context, state ProductState) error
	CountProductStates(ctx context.Context) (int64, error)
}

// AlertLogStore is the append-only delivery log behind cooldowns.
type AlertLogStore interface {
	RecordAlert(ctx context.Context, productID, alertType string, sentAt time.Time) error
	LastAlertAt(ctx context.Context, productID, alertType string) (time.Time, bool, error)
	ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error)
	DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error)
}

// SettingsStore is the sparse runtime-settings key/value table.
type SettingsStore interface {
	GetSetting(ctx context.Context, key string) (string, bool, error)
	ListSettings(ctx context.Context) (map[string]string, error)
	SetSetting(ctx context.Context, key, value string) error
	DeleteSetting(ctx context.Context, key string) error
}

// SubscriptionStore manages per-user SKU subscriptions.
type SubscriptionStore interface {
	// AddSubscription reports false when the (user, SKU) pair already exists.
	AddSubscription(ctx context.Context, sub Subscription) (bool, error)
	// RemoveSubscription reports false when nothing was removed.
	RemoveSubscription(ctx context.Context, userID, sku string) (bool, error)
	ListSubscriptionsBySKU(ctx context.Context, sku string) ([]Subscription, error)
	ListSubscriptionsByUser(ctx context.Context, userID string) ([]Subscription, error)
	ListSubscriptions(ctx context.Context) ([]Subscription, error)
	CountSubscriptions(ctx context.Context) (int64, error)
}

// SyncMarker tracks whether the initial catalog sync has completed.
type SyncMarker interface {
	IsInitialSyncComplete(ctx context.Context) (bool, error)
	MarkInitialSyncComplete(ctx context.Context) error
}

// StateStore is the sole owner of all durable state.
type StateStore interface {
	ProductStateStore
	AlertLogStore
	SettingsStore
	SubscriptionStore
	SyncMarker
}

// AdvisoryLocker exposes advisory lock helpers.
type AdvisoryLocker interface {
	TryAdvisoryLock(ctx context.Context, key int64) (unlock func(), acquired bool, err error)
}

// Store is the PostgreSQL-backed StateStore.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore wires a pgx pool into a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Close releases the underlying pool resources.
func (s *Store) Close() {
	if s == nil || s.pool == nil {
		return
	}
	s.pool.Close()
}

// Ping verifies connectivity.
func (s *Store) Ping(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	return pool.Ping(ctx)
}

// TryAdvisoryLock attempts to acquire a postgres advisory lock and returns a release func.
func (s *Store) TryAdvisoryLock(ctx context.Context, key int64) (func(), bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, false, err
	}

	conn, err := pool.Acquire(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("acquire connection: %w", err)
	}

	var acquired bool
	if err := conn.QueryRow(ctx, tryAdvisoryLockSQL, key).Scan(&acquired); err != nil {
		conn.Release()
		return nil, false, fmt.Errorf("try advisory lock: %w", err)
	}
	if !acquired {
		conn.Release()
		return nil, false, nil
	}

	unlock := func() {
		ctxUnlock, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		defer cancel()
		_, _ = conn.Exec(ctxUnlock, advisoryUnlockSQL, key)
		conn.Release()
	}
	return unlock, true, nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, ErrNotConfigured
	}
	return s.pool, nil
}

// GetProductState loads the recorded state of a product.
func (s *Store) GetProductState(ctx context.Context, productID string) (*ProductState, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	state, err := scanProductState(pool.QueryRow(ctx, getProductStateSQL, productID))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get product state: %w", err)
	}
	return &state, nil
}

// ListProductStates lists every recorded product.
func (s *Store) ListProductStates(ctx context.Context) ([]ProductState, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listProductStatesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list product states: %w", queryErr)
	}
	defer rows.Close()

	states := make([]ProductState, 0)
	for rows.Next() {
		state, scanErr := scanProductState(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		states = append(states, state)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return states, nil
}

// UpsertProductState persists the state computed for this cycle.
func (s *Store) UpsertProductState(ctx context.Context, state ProductState) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	_, execErr := pool.Exec(ctx, upsertProductStateSQL,
		state.ProductID,
		state.SKU,
		state.Source,
		state.LastPriceTotal.String(),
		state.LastPricePerTB.String(),
		state.LastAvailable,
		state.LastCheckedAt,
		state.FirstSeenAt,
	)
	if execErr != nil {
		return fmt.Errorf("upsert product state: %w", execErr)
	}
	return nil
}

// CountProductStates counts recorded products.
func (s *Store) CountProductStates(ctx context.Context) (int64, error) {
	return s.count(ctx, countProductStatesSQL, "count product states")
}

// RecordAlert appends a delivery to the alert log.
func (s *Store) RecordAlert(ctx context.Context, productID, alertType string, sentAt time.Time) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	var id int64
	if scanErr := pool.QueryRow(ctx, insertAlertSQL, productID, alertType, sentAt).Scan(&id); scanErr != nil {
		return fmt.Errorf("record alert: %w", scanErr)
	}
	return nil
}

// LastAlertAt returns the most recent delivery of the (product, type) pair.
func (s *Store) LastAlertAt(ctx context.Context, productID, alertType string) (time.Time, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return time.Time{}, false, err
	}

	var sentAt time.Time
	scanErr := pool.QueryRow(ctx, lastAlertSQL, productID, alertType).Scan(&sentAt)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return time.Time{}, false, nil
	}
	if scanErr != nil {
		return time.Time{}, false, fmt.Errorf("last alert: %w", scanErr)
	}
	return sentAt, true, nil
}

// ListRecentAlerts lists most recent alerts.
func (s *Store) ListRecentAlerts(ctx context.Context, limit int) ([]AlertRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentAlertsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent alerts: %w", queryErr)
	}
	defer rows.Close()

	alerts := make([]AlertRecord, 0, limit)
	for rows.Next() {
		var rec AlertRecord
		if err := rows.Scan(&rec.ID, &rec.ProductID, &rec.AlertType, &rec.SentAt); err != nil {
			return nil, err
		}
		alerts = append(alerts, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return alerts, nil
}

// DeleteAlertsBefore deletes historical alerts.
func (s *Store) DeleteAlertsBefore(ctx context.Context, olderThan time.Time) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	tag, execErr := pool.Exec(ctx, deleteAlertsBeforeSQL, olderThan)
	if execErr != nil {
		return 0, fmt.Errorf("delete alerts before: %w", execErr)
	}
	return tag.RowsAffected(), nil
}

// GetSetting reads one runtime setting.
func (s *Store) GetSetting(ctx context.Context, key string) (string, bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return "", false, err
	}
	var value string
	scanErr := pool.QueryRow(ctx, getSettingSQL, key).Scan(&value)
	if errors.Is(scanErr, pgx.ErrNoRows) {
		return "", false, nil
	}
	if scanErr != nil {
		return "", false, fmt.Errorf("get setting: %w", scanErr)
	}
	return value, true, nil
}

// ListSettings returns every override currently stored.
func (s *Store) ListSettings(ctx context.Context) (map[string]string, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listSettingsSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list settings: %w", queryErr)
	}
	defer rows.Close()

	settings := make(map[string]string)
	for rows.Next() {
		var key, value string
		if err := rows.Scan(&key, &value); err != nil {
			return nil, err
		}
		settings[key] = value
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return settings, nil
}

// SetSetting writes an override.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, upsertSettingSQL, key, value); execErr != nil {
		return fmt.Errorf("set setting: %w", execErr)
	}
	return nil
}

// DeleteSetting removes an override so the compiled-in default applies.
func (s *Store) DeleteSetting(ctx context.Context, key string) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, deleteSettingSQL, key); execErr != nil {
		return fmt.Errorf("delete setting: %w", execErr)
	}
	return nil
}

// AddSubscription inserts a subscription unless the (user, SKU) pair exists.
func (s *Store) AddSubscription(ctx context.Context, sub Subscription) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}

	var channel interface{}
	if sub.ChannelID != "" {
		channel = sub.ChannelID
	}

	tag, execErr := pool.Exec(ctx, insertSubscriptionSQL, sub.UserID, sub.SKU, string(sub.Mode), channel)
	if execErr != nil {
		return false, fmt.Errorf("add subscription: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// RemoveSubscription deletes the (user, SKU) subscription.
func (s *Store) RemoveSubscription(ctx context.Context, userID, sku string) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	tag, execErr := pool.Exec(ctx, deleteSubscriptionSQL, userID, sku)
	if execErr != nil {
		return false, fmt.Errorf("remove subscription: %w", execErr)
	}
	return tag.RowsAffected() > 0, nil
}

// ListSubscriptionsBySKU lists subscribers of a SKU.
func (s *Store) ListSubscriptionsBySKU(ctx context.Context, sku string) ([]Subscription, error) {
	return s.listSubscriptions(ctx, listSubscriptionsBySKUSQL, sku)
}

// ListSubscriptionsByUser lists a user's subscriptions.
func (s *Store) ListSubscriptionsByUser(ctx context.Context, userID string) ([]Subscription, error) {
	return s.listSubscriptions(ctx, listSubscriptionsByUserSQL, userID)
}

// ListSubscriptions lists every subscription.
func (s *Store) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	return s.listSubscriptions(ctx, listAllSubscriptionsSQL)
}

// CountSubscriptions counts all subscriptions.
func (s *Store) CountSubscriptions(ctx context.Context) (int64, error) {
	return s.count(ctx, countSubscriptionsSQL, "count subscriptions")
}

// IsInitialSyncComplete reports whether the first catalog sync has finished.
func (s *Store) IsInitialSyncComplete(ctx context.Context) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	var done bool
	if scanErr := pool.QueryRow(ctx, getMarkerSQL, initialSyncMarker).Scan(&done); scanErr != nil {
		return false, fmt.Errorf("read sync marker: %w", scanErr)
	}
	return done, nil
}

// MarkInitialSyncComplete records that the first catalog sync has finished.
func (s *Store) MarkInitialSyncComplete(ctx context.Context) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	if _, execErr := pool.Exec(ctx, insertMarkerSQL, initialSyncMarker); execErr != nil {
		return fmt.Errorf("write sync marker: %w", execErr)
	}
	return nil
}

func (s *Store) listSubscriptions(ctx context.Context, query string, args ...any) ([]Subscription, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list subscriptions: %w", queryErr)
	}
	defer rows.Close()

	subs := make([]Subscription, 0)
	for rows.Next() {
		var (
			sub     Subscription
			mode    string
			channel sql.NullString
		)
		if err := rows.Scan(&sub.ID, &sub.UserID, &sub.SKU, &mode, &channel, &sub.CreatedAt); err != nil {
			return nil, err
		}
		sub.Mode = DeliveryMode(mode)
		if channel.Valid {
			sub.ChannelID = channel.String
		}
		subs = append(subs, sub)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return subs, nil
}

func (s *Store) count(ctx context.Context, query, op string) (int64, error) {
	pool, err := s.getPool()
	if err != nil {
		return 0, err
	}
	var count int64
	if scanErr := pool.QueryRow(ctx, query).Scan(&count); scanErr != nil {
		return 0, fmt.Errorf("%s: %w", op, scanErr)
	}
	return count, nil
}

func scanProductState(row pgx.Row) (ProductState, error) {
	var (
		state    ProductState
		totalStr string
		perTBStr string
	)

	if err := row.Scan(
		&state.ProductID,
		&state.SKU,
		&state.Source,
		&totalStr,
		&perTBStr,
		&state.LastAvailable,
		&state.LastCheckedAt,
		&state.FirstSeenAt,
	); err != nil {
		return ProductState{}, err
	}

	var err error
	state.LastPriceTotal, err = decimal.NewFromString(totalStr)
	if err != nil {
		return ProductState{}, fmt.Errorf("parse last price total: %w", err)
	}
	state.LastPricePerTB, err = decimal.NewFromString(perTBStr)
	if err != nil {
		return ProductState{}, fmt.Errorf("parse last price per tb: %w", err)
	}
	return state, nil
}

var (
	_ StateStore     = (*Store)(nil)
	_ AdvisoryLocker = (*Store)(nil)
)
