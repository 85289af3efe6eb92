package fetcher

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20BalanceOfABIJSON = `[{"constant":true,"inputs":[{"name":"account","type":"address"}],"name":"balanceOf","outputs":[{"name":"","type":"uint256"}],"stateMutability":"view","type":"function"}]`

var erc20ABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(erc20BalanceOfABIJSON))
	if err != nil {
		panic("failed to parse ERC-20 ABI: " + err.Error())
	}
	erc20ABI = parsed
}

// EVMBalanceOptions parameterise the ERC-20 balance source.
type EVMBalanceOptions struct {
	RPCURL       string
	TokenAddress string
	Decimals     int32
}

// EVMBalances reads ERC-20 balanceOf over JSON-RPC. An ERC-20 balance always
// exists, so found is true on success.
type EVMBalances struct {
	client    *Client
	opts      EVMBalanceOptions
	eth       *ethclient.Client
	clientMux sync.Mutex
}

// NewEVMBalances builds an EVM balance source.
func NewEVMBalances(client *Client, opts EVMBalanceOptions) *EVMBalances {
	return &EVMBalances{client: client, opts: opts}
}

// Balance calls balanceOf(address) on the token contract.
func (e *EVMBalances) Balance(ctx context.Context, address string) (string, bool, error) {
	if e.opts.RPCURL == "" {
		return "", false, errors.New("evm rpc url not configured")
	}
	if !common.IsHexAddress(e.opts.TokenAddress) {
		return "", false, fmt.Errorf("invalid token contract address %q", e.opts.TokenAddress)
	}
	if !common.IsHexAddress(address) {
		return "", false, fmt.Errorf("invalid holder address %q", address)
	}

	payload, err := erc20ABI.Pack("balanceOf", common.HexToAddress(address))
	if err != nil {
		return "", false, err
	}
	token := common.HexToAddress(e.opts.TokenAddress)

	var amount *big.Int
	err = e.client.Retry(ctx, "balance", func(ctx context.Context) error {
		eth, err := e.getClient(ctx)
		if err != nil {
			return err
		}
		res, err := eth.CallContract(ctx, ethereum.CallMsg{To: &token, Data: payload}, nil)
		if err != nil {
			return err
		}
		outputs, err := erc20ABI.Unpack("balanceOf", res)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrShape, err)
		}
		if len(outputs) != 1 {
			return fmt.Errorf("%w: unexpected balanceOf response", ErrShape)
		}
		value, ok := outputs[0].(*big.Int)
		if !ok {
			return fmt.Errorf("%w: failed to decode balanceOf output", ErrShape)
		}
		amount = value
		return nil
	})
	if err != nil {
		return "", false, err
	}
	return NormalizeInt(amount, e.opts.Decimals), true, nil
}

func (e *EVMBalances) getClient(ctx context.Context) (*ethclient.Client, error) {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()

	if e.eth != nil {
		return e.eth, nil
	}

	eth, err := ethclient.DialContext(ctx, e.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	e.eth = eth
	return eth, nil
}

// Close releases the RPC connection.
func (e *EVMBalances) Close() {
	e.clientMux.Lock()
	defer e.clientMux.Unlock()
	if e.eth != nil {
		e.eth.Close()
		e.eth = nil
	}
}

var _ BalanceSource = (*EVMBalances)(nil)
