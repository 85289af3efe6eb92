package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"strings"

	"github.com/shopspring/decimal"
)

// LiquiditySource returns aggregate USD liquidity of pools holding the token.
type LiquiditySource interface {
	Liquidity(ctx context.Context) (float64, error)
}

// PoolsOptions locate the pool listing and identify the token.
type PoolsOptions struct {
	URL    string
	Denom  string
	Symbol string
}

// Pools sums liquidity over a pool listing.
type Pools struct {
	client *Client
	opts   PoolsOptions
}

// NewPools builds a liquidity source.
func NewPools(client *Client, opts PoolsOptions) *Pools {
	return &Pools{client: client, opts: opts}
}

type poolAsset struct {
	Denom  string `json:"denom"`
	Symbol string `json:"symbol"`
}

type pool struct {
	PoolAssets []poolAsset     `json:"pool_assets"`
	Liquidity  decimal.Decimal `json:"liquidity"`
}

// Liquidity fetches every pool and sums those that contain the token,
// rounded to cents.
func (p *Pools) Liquidity(ctx context.Context) (float64, error) {
	if p.opts.URL == "" {
		return 0, errors.New("pools url not configured")
	}
	if p.opts.Denom == "" && p.opts.Symbol == "" {
		return 0, errors.New("token denom or symbol required for pool filtering")
	}

	pools, err := Fetch(ctx, p.client, "liquidity", p.opts.URL, func(body []byte) ([]pool, error) {
		var list []pool
		if err := json.Unmarshal(body, &list); err != nil {
			return nil, err
		}
		return list, nil
	})
	if err != nil {
		return 0, err
	}

	total := decimal.Zero
	for _, pl := range pools {
		if p.contains(pl) {
			total = total.Add(pl.Liquidity)
		}
	}
	return total.Round(2).InexactFloat64(), nil
}

func (p *Pools) contains(pl pool) bool {
	for _, asset := range pl.PoolAssets {
		if p.opts.Denom != "" && strings.EqualFold(asset.Denom, p.opts.Denom) {
			return true
		}
		if p.opts.Symbol != "" && strings.EqualFold(asset.Symbol, p.opts.Symbol) {
			return true
		}
	}
	return false
}

var _ LiquiditySource = (*Pools)(nil)
