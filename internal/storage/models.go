package storage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DateLayout is the calendar-day format used in record dates and blob keys.
const DateLayout = "2006-01-02"

// DailyRecord is the persisted tokenomics snapshot for one UTC day.
type DailyRecord struct {
	Date                string    `json:"date"`
	BurnedSupply        string    `json:"burned_supply"`
	TreasurySupply      string    `json:"treasury_supply"`
	PriceUSD            float64   `json:"price_usd"`
	OnChainLiquidityUSD float64   `json:"on_chain_liquidity_usd"`
	BurnedSupplyUSD     float64   `json:"burned_supply_usd"`
	TreasurySupplyUSD   float64   `json:"treasury_supply_usd"`
	UpdatedAt           time.Time `json:"updated_at"`
	IsFallback          bool      `json:"is_fallback,omitempty"`
	FallbackFrom        string    `json:"fallback_from,omitempty"`
}

// Recompute derives the USD fields from the quantities and price.
func (r *DailyRecord) Recompute() error {
	burned, err := USDValue(r.BurnedSupply, r.PriceUSD)
	if err != nil {
		return fmt.Errorf("burned supply: %w", err)
	}
	treasury, err := USDValue(r.TreasurySupply, r.PriceUSD)
	if err != nil {
		return fmt.Errorf("treasury supply: %w", err)
	}
	r.BurnedSupplyUSD = burned
	r.TreasurySupplyUSD = treasury
	return nil
}

// Candidate carries possibly-missing record fields. A nil field is absent;
// a present zero is a real value and is never backfilled.
type Candidate struct {
	BurnedSupply        *string
	TreasurySupply      *string
	PriceUSD            *float64
	OnChainLiquidityUSD *float64
}

// CandidateFrom marks every field of rec as present.
func CandidateFrom(rec DailyRecord) Candidate {
	burned := rec.BurnedSupply
	treasury := rec.TreasurySupply
	price := rec.PriceUSD
	liquidity := rec.OnChainLiquidityUSD
	return Candidate{
		BurnedSupply:        &burned,
		TreasurySupply:      &treasury,
		PriceUSD:            &price,
		OnChainLiquidityUSD: &liquidity,
	}
}

// ParseQuantity parses a normalized decimal-string token quantity.
func ParseQuantity(v string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(v)
	if err != nil {
		return decimal.Decimal{}, fmt.Errorf("parse quantity %q: %w", v, err)
	}
	return d, nil
}

// USDValue returns quantity × price rounded to cents.
func USDValue(quantity string, price float64) (float64, error) {
	qty, err := ParseQuantity(quantity)
	if err != nil {
		return 0, err
	}
	return qty.Mul(decimal.NewFromFloat(price)).Round(2).InexactFloat64(), nil
}

// Day truncates t to the start of its UTC calendar day.
func Day(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateKey formats t as a UTC calendar day.
func DateKey(t time.Time) string {
	return t.UTC().Format(DateLayout)
}

// ParseDate parses a YYYY-MM-DD calendar day as UTC midnight.
func ParseDate(v string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, v, time.UTC)
}
