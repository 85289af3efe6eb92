package fetcher

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strings"
)

// BalanceSource looks up the tracked token's balance held by an address.
// found is false when the token is absent from the address' holdings.
type BalanceSource interface {
	Balance(ctx context.Context, address string) (amount string, found bool, err error)
}

// RESTBalanceOptions locate the bank balances endpoint.
type RESTBalanceOptions struct {
	BaseURL  string
	Denom    string
	Decimals int32
}

// RESTBalances reads balances from a Cosmos SDK bank REST endpoint.
type RESTBalances struct {
	client *Client
	opts   RESTBalanceOptions
}

// NewRESTBalances builds a REST balance source.
func NewRESTBalances(client *Client, opts RESTBalanceOptions) *RESTBalances {
	opts.BaseURL = strings.TrimRight(opts.BaseURL, "/")
	return &RESTBalances{client: client, opts: opts}
}

type coin struct {
	Denom  string `json:"denom"`
	Amount string `json:"amount"`
}

type balancesResponse struct {
	Balances *[]coin `json:"balances"`
}

// Balance returns the normalized amount of the configured denom.
func (b *RESTBalances) Balance(ctx context.Context, address string) (string, bool, error) {
	if b.opts.BaseURL == "" {
		return "", false, errors.New("chain rest url not configured")
	}
	if address == "" {
		return "", false, errors.New("address not configured")
	}

	endpoint := fmt.Sprintf("%s/cosmos/bank/v1beta1/balances/%s?pagination.limit=1000", b.opts.BaseURL, url.PathEscape(address))
	coins, err := Fetch(ctx, b.client, "balance", endpoint, func(body []byte) ([]coin, error) {
		var resp balancesResponse
		if err := json.Unmarshal(body, &resp); err != nil {
			return nil, err
		}
		if resp.Balances == nil {
			return nil, fmt.Errorf("%w: balances field missing", ErrShape)
		}
		return *resp.Balances, nil
	})
	if err != nil {
		return "", false, err
	}

	for _, c := range coins {
		if c.Denom != b.opts.Denom {
			continue
		}
		normalized, err := Normalize(c.Amount, b.opts.Decimals)
		if err != nil {
			return "", false, fmt.Errorf("%w: %v", ErrShape, err)
		}
		return normalized, true, nil
	}
	return "", false, nil
}

var _ BalanceSource = (*RESTBalances)(nil)
