package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ──────────────────────────────────────────────────────────────────────────────
// System settings
// ──────────────────────────────────────────────────────────────────────────────

// Setting keys.  Values are stored as strings in system_settings and parsed
// into the typed SettingsSnapshot at the start of each processor run.
const (
	SettingPayoutsPaused         = "PAYOUTS_PAUSED"
	SettingLowInventoryThreshold = "LOW_INVENTORY_THRESHOLD_BTC"
	SettingInventoryHoldHours    = "INVENTORY_HOLD_HOURS"
	SettingDailyBuyLimitUSD      = "DAILY_BUY_LIMIT_USD"
	SettingMinCashoutUSD         = "MIN_CASHOUT_USD"
)

// SystemSetting is one operational key/value pair.  Read-mostly; mutated only
// through the backoffice.
type SystemSetting struct {
	Key       string    `json:"key"        db:"key"`
	Value     string    `json:"value"      db:"value"`
	UpdatedAt time.Time `json:"updated_at" db:"updated_at"`
}

// SettingsSnapshot is the operational-controls state read once per processing
// run and passed down the call chain as an argument.  Runs never consult the
// store again mid-batch, so a flag flip takes effect on the very next run and
// a single run is reproducible in tests.
type SettingsSnapshot struct {
	PayoutsPaused         bool
	LowInventoryThreshold decimal.Decimal
	HoldDuration          time.Duration
	DailyBuyLimitUSD      decimal.Decimal
	MinCashoutUSD         decimal.Decimal
	TakenAt               time.Time
}
