package venues

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

const v2RouterABI = `[
 {"inputs":[{"internalType":"uint256","name":"amountIn","type":"uint256"},{"internalType":"address[]","name":"path","type":"address[]"}],"name":"getAmountsOut","outputs":[{"internalType":"uint256[]","name":"amounts","type":"uint256[]"}],"stateMutability":"view","type":"function"}
]`

// ContractCaller is the slice of ethclient these quoters need; tests
// substitute a stub.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// UniV2Quoter prices a pair off a V2-style router's getAmountsOut. Covers
// Sushi, Camelot and the other constant-product forks with one adapter.
type UniV2Quoter struct {
	ec     ContractCaller
	rabi   abi.ABI
	router common.Address
	tokens map[string]common.Address
}

func NewUniV2Quoter(ec ContractCaller, router common.Address, tokens map[string]common.Address) (*UniV2Quoter, error) {
	rabi, err := abi.JSON(strings.NewReader(v2RouterABI))
	if err != nil {
		return nil, fmt.Errorf("parse v2 router abi: %w", err)
	}
	if router == (common.Address{}) {
		return nil, fmt.Errorf("v2 router address is not configured")
	}
	return &UniV2Quoter{ec: ec, rabi: rabi, router: router, tokens: tokens}, nil
}

func (u *UniV2Quoter) Quote(ctx context.Context, _ types.ChainID, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	in, ok := u.tokens[strings.ToUpper(tokenIn)]
	if !ok {
		return nil, fmt.Errorf("univ2: no address for token %s: %w", tokenIn, types.ErrQuoteUnavailable)
	}
	out, ok := u.tokens[strings.ToUpper(tokenOut)]
	if !ok {
		return nil, fmt.Errorf("univ2: no address for token %s: %w", tokenOut, types.ErrQuoteUnavailable)
	}

	path := []common.Address{in, out}
	data, err := u.rabi.Pack("getAmountsOut", amountIn, path)
	if err != nil {
		return nil, fmt.Errorf("pack getAmountsOut: %w", err)
	}
	raw, err := u.ec.CallContract(ctx, ethereum.CallMsg{To: &u.router, Data: data}, nil)
	if err != nil {
		// a router revert usually means the pair has no pool
		return nil, fmt.Errorf("%s/%s: getAmountsOut: %v: %w", tokenIn, tokenOut, err, types.ErrQuoteUnavailable)
	}
	outs, err := u.rabi.Methods["getAmountsOut"].Outputs.Unpack(raw)
	if err != nil || len(outs) == 0 {
		return nil, fmt.Errorf("decode getAmountsOut: %w", err)
	}
	amounts, ok := outs[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, fmt.Errorf("%s/%s: bad amounts length: %w", tokenIn, tokenOut, types.ErrQuoteUnavailable)
	}
	return amounts[len(amounts)-1], nil
}
