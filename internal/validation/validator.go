package validation

import (
	"fmt"
	"math"

	"github.com/shopspring/decimal"

	"tokenomics-indexer/internal/storage"
)

// Field names a record field an error condemns.
type Field string

const (
	FieldBurnedSupply   Field = "burned_supply"
	FieldTreasurySupply Field = "treasury_supply"
	FieldPrice          Field = "price_usd"
	FieldLiquidity      Field = "on_chain_liquidity_usd"
)

// Outcome is the result of a single validation call.
type Outcome struct {
	Valid    bool     `json:"is_valid"`
	Errors   []string `json:"errors"`
	Warnings []string `json:"warnings"`
	// Rejected lists the fields implicated by Errors, without duplicates.
	Rejected []Field `json:"rejected_fields,omitempty"`
}

// Thresholds configure the validator.
type Thresholds struct {
	MinPriceUSD     float64
	MaxPriceUSD     float64
	MaxChangePct    float64
	USDTolerancePct float64
}

// DefaultThresholds returns [0.0001, 1000] price bounds, 50% change and 1% USD tolerance.
func DefaultThresholds() Thresholds {
	return Thresholds{
		MinPriceUSD:     0.0001,
		MaxPriceUSD:     1000,
		MaxChangePct:    50,
		USDTolerancePct: 1,
	}
}

// Validator checks candidate records against absolute bounds and, when a
// previous record is supplied, against day-over-day change limits.
type Validator struct {
	t Thresholds
}

// New builds a validator.
func New(t Thresholds) *Validator {
	return &Validator{t: t}
}

// Validate runs both phases. prev may be nil.
func (v *Validator) Validate(rec storage.DailyRecord, prev *storage.DailyRecord) Outcome {
	var c collector
	v.absolute(&c, rec)
	if prev != nil {
		v.comparative(&c, rec, *prev)
	}
	return c.outcome()
}

func (v *Validator) absolute(c *collector, rec storage.DailyRecord) {
	if rec.PriceUSD < v.t.MinPriceUSD || rec.PriceUSD > v.t.MaxPriceUSD {
		c.fail(FieldPrice, "price %g outside bounds [%g, %g]", rec.PriceUSD, v.t.MinPriceUSD, v.t.MaxPriceUSD)
	}
	if rec.OnChainLiquidityUSD < 0 {
		c.fail(FieldLiquidity, "liquidity cannot be negative: %g", rec.OnChainLiquidityUSD)
	}

	burned, burnedOK := v.quantity(c, FieldBurnedSupply, "burned supply", rec.BurnedSupply)
	treasury, treasuryOK := v.quantity(c, FieldTreasurySupply, "treasury supply", rec.TreasurySupply)

	price := decimal.NewFromFloat(rec.PriceUSD)
	if burnedOK {
		v.usdConsistency(c, "burned supply usd", burned.Mul(price), rec.BurnedSupplyUSD)
	}
	if treasuryOK {
		v.usdConsistency(c, "treasury supply usd", treasury.Mul(price), rec.TreasurySupplyUSD)
	}
}

func (v *Validator) quantity(c *collector, field Field, label, raw string) (decimal.Decimal, bool) {
	qty, err := storage.ParseQuantity(raw)
	if err != nil {
		c.fail(field, "%s is not a number: %q", label, raw)
		return decimal.Decimal{}, false
	}
	if qty.IsNegative() {
		c.fail(field, "%s cannot be negative: %s", label, raw)
		return qty, false
	}
	return qty, true
}

// usdConsistency compares a stored USD figure to quantity × price. An
// expected value of exactly zero is skipped. Derived fields are always
// recomputed on fallback, so no raw field is rejected here.
func (v *Validator) usdConsistency(c *collector, label string, expected decimal.Decimal, actual float64) {
	if expected.IsZero() {
		return
	}
	exp := expected.InexactFloat64()
	diffPct := math.Abs(actual-exp) / math.Abs(exp) * 100
	if diffPct > v.t.USDTolerancePct {
		c.fail("", "%s %.2f diverges from expected %.2f by %.2f%%", label, actual, exp, diffPct)
	}
}

func (v *Validator) comparative(c *collector, rec, prev storage.DailyRecord) {
	limit := v.t.MaxChangePct

	if rec.PriceUSD == 0 && prev.PriceUSD > 0 {
		c.fail(FieldPrice, "price dropped to zero")
	} else {
		change := PercentChange(prev.PriceUSD, rec.PriceUSD)
		switch {
		case math.Abs(change) > limit:
			c.fail(FieldPrice, "price changed %.2f%% (limit %g%%)", change, limit)
		case math.Abs(change) > limit/2:
			c.warn("price changed %.2f%%", change)
		}
	}

	v.supplyChange(c, "burned supply", prev.BurnedSupply, rec.BurnedSupply)
	v.supplyChange(c, "treasury supply", prev.TreasurySupply, rec.TreasurySupply)

	if change := PercentChange(prev.OnChainLiquidityUSD, rec.OnChainLiquidityUSD); math.Abs(change) > limit*2 {
		c.warn("liquidity changed %.2f%%", change)
	}
}

func (v *Validator) supplyChange(c *collector, label, oldRaw, newRaw string) {
	oldQty, err := storage.ParseQuantity(oldRaw)
	if err != nil {
		return
	}
	newQty, err := storage.ParseQuantity(newRaw)
	if err != nil {
		return
	}
	if change := PercentChange(oldQty.InexactFloat64(), newQty.InexactFloat64()); math.Abs(change) > v.t.MaxChangePct {
		c.warn("%s changed %.2f%%", label, change)
	}
}

// PercentChange returns (new-old)/old×100. A zero old value yields 0 when new
// is also zero and 100 otherwise.
func PercentChange(old, new float64) float64 {
	if old == 0 {
		if new == 0 {
			return 0
		}
		return 100
	}
	return (new - old) / old * 100
}

type collector struct {
	errors   []string
	warnings []string
	rejected []Field
}

func (c *collector) fail(field Field, format string, args ...any) {
	c.errors = append(c.errors, fmt.Sprintf(format, args...))
	if field == "" {
		return
	}
	for _, f := range c.rejected {
		if f == field {
			return
		}
	}
	c.rejected = append(c.rejected, field)
}

func (c *collector) warn(format string, args ...any) {
	c.warnings = append(c.warnings, fmt.Sprintf(format, args...))
}

func (c *collector) outcome() Outcome {
	out := Outcome{
		Valid:    len(c.errors) == 0,
		Errors:   c.errors,
		Warnings: c.warnings,
		Rejected: c.rejected,
	}
	if out.Errors == nil {
		out.Errors = []string{}
	}
	if out.Warnings == nil {
		out.Warnings = []string{}
	}
	return out
}
