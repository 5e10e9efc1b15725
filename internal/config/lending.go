package config

import (
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/viper"
)

type LendingConfig struct {
	LoanPeriodDays      int
	FineRatePerDay      decimal.Decimal
	Currency            string
	PaymentReferenceTTL time.Duration
	PaymentCreditorName string
	PaymentCreditorBIC  string
	SessionTTL          time.Duration
}

// Default values used when nothing is configured
const (
	DefaultLoanPeriodDays = 14
	DefaultFineRate       = "5"
	DefaultCurrency       = "BDT"
)

func LoadLendingConfig() *LendingConfig {
	viper.SetDefault("lending.loan_period_days", DefaultLoanPeriodDays)
	viper.SetDefault("lending.fine_rate_per_day", DefaultFineRate)
	viper.SetDefault("lending.currency", DefaultCurrency)
	viper.SetDefault("lending.payment_reference_ttl", 30*time.Minute)
	viper.SetDefault("lending.payment_creditor_name", "Central Library")
	viper.SetDefault("lending.payment_creditor_bic", "LIBRARYBD")
	viper.SetDefault("jwt.expiry_hours", 24)

	return &LendingConfig{
		LoanPeriodDays:      positiveOr(viper.GetInt("lending.loan_period_days"), DefaultLoanPeriodDays),
		FineRatePerDay:      decimalOr(viper.GetString("lending.fine_rate_per_day"), DefaultFineRate),
		Currency:            viper.GetString("lending.currency"),
		PaymentReferenceTTL: viper.GetDuration("lending.payment_reference_ttl"),
		PaymentCreditorName: viper.GetString("lending.payment_creditor_name"),
		PaymentCreditorBIC:  viper.GetString("lending.payment_creditor_bic"),
		SessionTTL:          time.Duration(viper.GetInt("jwt.expiry_hours")) * time.Hour,
	}
}

// DefaultLendingConfig is the configuration with every default applied
func DefaultLendingConfig() *LendingConfig {
	return &LendingConfig{
		LoanPeriodDays:      DefaultLoanPeriodDays,
		FineRatePerDay:      decimal.RequireFromString(DefaultFineRate),
		Currency:            DefaultCurrency,
		PaymentReferenceTTL: 30 * time.Minute,
		PaymentCreditorName: "Central Library",
		PaymentCreditorBIC:  "LIBRARYBD",
		SessionTTL:          24 * time.Hour,
	}
}

func positiveOr(val, defaultVal int) int {
	if val > 0 {
		return val
	}
	return defaultVal
}

// a negative or unparsable rate falls back to the default
func decimalOr(val, defaultVal string) decimal.Decimal {
	if d, err := decimal.NewFromString(val); err == nil && !d.IsNegative() {
		return d
	}
	return decimal.RequireFromString(defaultVal)
}
