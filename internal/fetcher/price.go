package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// PriceSource returns the tracked token's spot USD price.
type PriceSource interface {
	Price(ctx context.Context) (float64, error)
}

// CoinGeckoOptions locate the coin detail endpoint.
type CoinGeckoOptions struct {
	BaseURL string
	CoinID  string
}

// CoinGecko reads market_data.current_price.usd from a coin detail document.
type CoinGecko struct {
	client *Client
	opts   CoinGeckoOptions
}

// NewCoinGecko builds a price source.
func NewCoinGecko(client *Client, opts CoinGeckoOptions) *CoinGecko {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.coingecko.com/api/v3/coins"
	}
	return &CoinGecko{client: client, opts: opts}
}

type coinResponse struct {
	MarketData *struct {
		CurrentPrice map[string]*float64 `json:"current_price"`
	} `json:"market_data"`
}

// Price fetches the current USD price.
func (p *CoinGecko) Price(ctx context.Context) (float64, error) {
	if p.opts.CoinID == "" {
		return 0, errors.New("coingecko coin id not configured")
	}

	endpoint := fmt.Sprintf("%s/%s?localization=false&tickers=false&community_data=false&developer_data=false",
		p.opts.BaseURL, url.PathEscape(p.opts.CoinID))
	return Fetch(ctx, p.client, "price", endpoint, func(body []byte) (float64, error) {
		var resp coinResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return 0, err
		}
		if resp.MarketData == nil {
			return 0, fmt.Errorf("%w: market_data missing", ErrShape)
		}
		usd := resp.MarketData.CurrentPrice["usd"]
		if usd == nil {
			return 0, fmt.Errorf("%w: market_data.current_price.usd missing", ErrShape)
		}
		return *usd, nil
	})
}

var _ PriceSource = (*CoinGecko)(nil)
