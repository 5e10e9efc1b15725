package config

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
)

func TestLoadLendingConfig(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		viper.Reset()
		cfg := LoadLendingConfig()

		assert.Equal(t, 14, cfg.LoanPeriodDays)
		assert.True(t, decimal.NewFromInt(5).Equal(cfg.FineRatePerDay))
		assert.Equal(t, "BDT", cfg.Currency)
		assert.Equal(t, 30*time.Minute, cfg.PaymentReferenceTTL)
		assert.Equal(t, 24*time.Hour, cfg.SessionTTL)
	})

	t.Run("overrides", func(t *testing.T) {
		viper.Reset()
		viper.Set("lending.loan_period_days", 21)
		viper.Set("lending.fine_rate_per_day", "2.50")
		viper.Set("jwt.expiry_hours", 2)
		cfg := LoadLendingConfig()

		assert.Equal(t, 21, cfg.LoanPeriodDays)
		assert.True(t, decimal.RequireFromString("2.5").Equal(cfg.FineRatePerDay))
		assert.Equal(t, 2*time.Hour, cfg.SessionTTL)
	})

	t.Run("invalid values fall back", func(t *testing.T) {
		viper.Reset()
		viper.Set("lending.loan_period_days", -3)
		viper.Set("lending.fine_rate_per_day", "five")
		cfg := LoadLendingConfig()

		assert.Equal(t, 14, cfg.LoanPeriodDays)
		assert.True(t, decimal.NewFromInt(5).Equal(cfg.FineRatePerDay))
	})
}
