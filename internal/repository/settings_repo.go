package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/hashcard/treasury/internal/domain"
	"github.com/jmoiron/sqlx"
	"github.com/shopspring/decimal"
)

// SettingsRepository handles the system_settings key/value store.
type SettingsRepository struct {
	db *sqlx.DB
}

// NewSettingsRepository creates a new SettingsRepository.
func NewSettingsRepository(db *sqlx.DB) *SettingsRepository {
	return &SettingsRepository{db: db}
}

// Get fetches one setting by key.
func (r *SettingsRepository) Get(ctx context.Context, key string) (*domain.SystemSetting, error) {
	var s domain.SystemSetting
	err := r.db.GetContext(ctx, &s, `SELECT * FROM system_settings WHERE key = $1`, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.ErrSettingNotFound
		}
		return nil, fmt.Errorf("settings_repo.Get: %w", err)
	}
	return &s, nil
}

// Set upserts one setting.
func (r *SettingsRepository) Set(ctx context.Context, key, value string) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO system_settings (key, value, updated_at)
		VALUES ($1, $2, now())
		ON CONFLICT (key) DO UPDATE
		SET value = EXCLUDED.value, updated_at = now()`,
		key, value)
	if err != nil {
		return fmt.Errorf("settings_repo.Set: %w", err)
	}
	return nil
}

// List returns every setting, for the backoffice view.
func (r *SettingsRepository) List(ctx context.Context) ([]*domain.SystemSetting, error) {
	var settings []*domain.SystemSetting
	err := r.db.SelectContext(ctx, &settings,
		`SELECT * FROM system_settings ORDER BY key ASC`)
	if err != nil {
		return nil, fmt.Errorf("settings_repo.List: %w", err)
	}
	return settings, nil
}

// Snapshot reads every operational control in one query and parses the typed
// snapshot the processor carries through a run.  Missing or malformed keys
// fall back to the supplied defaults rather than failing the run.
func (r *SettingsRepository) Snapshot(ctx context.Context, defaults domain.SettingsSnapshot) (domain.SettingsSnapshot, error) {
	rows, err := r.List(ctx)
	if err != nil {
		return defaults, fmt.Errorf("settings_repo.Snapshot: %w", err)
	}

	snap := defaults
	snap.TakenAt = time.Now().UTC()

	for _, s := range rows {
		switch s.Key {
		case domain.SettingPayoutsPaused:
			if b, err := strconv.ParseBool(s.Value); err == nil {
				snap.PayoutsPaused = b
			}
		case domain.SettingLowInventoryThreshold:
			if d, err := decimal.NewFromString(s.Value); err == nil {
				snap.LowInventoryThreshold = d
			}
		case domain.SettingInventoryHoldHours:
			if h, err := strconv.Atoi(s.Value); err == nil && h >= 0 {
				snap.HoldDuration = time.Duration(h) * time.Hour
			}
		case domain.SettingDailyBuyLimitUSD:
			if d, err := decimal.NewFromString(s.Value); err == nil {
				snap.DailyBuyLimitUSD = d
			}
		case domain.SettingMinCashoutUSD:
			if d, err := decimal.NewFromString(s.Value); err == nil {
				snap.MinCashoutUSD = d
			}
		}
	}
	return snap, nil
}
