package venues

import (
	"context"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/multicall"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// QuoterV2 quoteExactInputSingle, the read-only quote surface of Uniswap V3.
const quoterV2ABI = `[
  {"inputs":[{"components":[
     {"internalType":"address","name":"tokenIn","type":"address"},
     {"internalType":"address","name":"tokenOut","type":"address"},
     {"internalType":"uint256","name":"amountIn","type":"uint256"},
     {"internalType":"uint24","name":"fee","type":"uint24"},
     {"internalType":"uint160","name":"sqrtPriceLimitX96","type":"uint160"}],
   "internalType":"struct IQuoterV2.QuoteExactInputSingleParams","name":"params","type":"tuple"}],
   "name":"quoteExactInputSingle",
   "outputs":[
     {"internalType":"uint256","name":"amountOut","type":"uint256"},
     {"internalType":"uint160","name":"sqrtPriceX96After","type":"uint160"},
     {"internalType":"uint32","name":"initializedTicksCrossed","type":"uint32"},
     {"internalType":"uint256","name":"gasEstimate","type":"uint256"}],
   "stateMutability":"nonpayable","type":"function"}
]`

// UniV3Quoter is an on-chain venue backed by the Uniswap V3 QuoterV2
// contract. One Quote call probes every configured fee tier in a single
// multicall round trip and keeps the best output.
type UniV3Quoter struct {
	mc       multicall.Caller
	q2abi    abi.ABI
	quoter   common.Address
	tokens   map[string]common.Address // symbol -> address
	feeTiers []uint32
	log      *zap.Logger
}

func NewUniV3Quoter(mc multicall.Caller, quoterAddr common.Address, tokens map[string]common.Address,
	feeTiers []uint32, log *zap.Logger) (*UniV3Quoter, error) {
	q2abi, err := abi.JSON(strings.NewReader(quoterV2ABI))
	if err != nil {
		return nil, fmt.Errorf("parse quoter v2 abi: %w", err)
	}
	if quoterAddr == (common.Address{}) {
		return nil, fmt.Errorf("quoter v2 address is not configured")
	}
	if len(feeTiers) == 0 {
		feeTiers = []uint32{500, 3000}
	}
	return &UniV3Quoter{
		mc:       mc,
		q2abi:    q2abi,
		quoter:   quoterAddr,
		tokens:   tokens,
		feeTiers: feeTiers,
		log:      log,
	}, nil
}

func (u *UniV3Quoter) Quote(ctx context.Context, _ types.ChainID, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	in, ok := u.tokens[strings.ToUpper(tokenIn)]
	if !ok {
		return nil, fmt.Errorf("univ3: no address for token %s: %w", tokenIn, types.ErrQuoteUnavailable)
	}
	out, ok := u.tokens[strings.ToUpper(tokenOut)]
	if !ok {
		return nil, fmt.Errorf("univ3: no address for token %s: %w", tokenOut, types.ErrQuoteUnavailable)
	}

	calls := make([]multicall.Call, 0, len(u.feeTiers))
	tiers := make([]uint32, 0, len(u.feeTiers))
	for _, fee := range u.feeTiers {
		callData, err := u.q2abi.Pack("quoteExactInputSingle", quoteParams{
			TokenIn:           in,
			TokenOut:          out,
			AmountIn:          amountIn,
			Fee:               big.NewInt(int64(fee)),
			SqrtPriceLimitX96: big.NewInt(0),
		})
		if err != nil {
			u.log.Warn("pack quote failed", zap.Uint32("fee", fee), zap.Error(err))
			continue
		}
		calls = append(calls, multicall.Call{Target: u.quoter, CallData: callData})
		tiers = append(tiers, fee)
	}
	if len(calls) == 0 {
		return nil, fmt.Errorf("%s/%s: no callable fee tier: %w", tokenIn, tokenOut, types.ErrQuoteUnavailable)
	}

	results, err := u.mc.Aggregate(ctx, calls)
	if err != nil {
		return nil, fmt.Errorf("multicall: %w", err)
	}

	var best *big.Int
	var bestTier uint32
	for i, res := range results {
		if !res.Success {
			continue
		}
		unpacked, err := u.q2abi.Methods["quoteExactInputSingle"].Outputs.Unpack(res.Data)
		if err != nil || len(unpacked) == 0 {
			continue
		}
		amountOut, ok := unpacked[0].(*big.Int)
		if !ok || amountOut.Sign() <= 0 {
			continue
		}
		if best == nil || amountOut.Cmp(best) > 0 {
			best = amountOut
			bestTier = tiers[i]
		}
	}
	if best == nil {
		return nil, fmt.Errorf("%s/%s: no pool answered on any fee tier: %w", tokenIn, tokenOut, types.ErrQuoteUnavailable)
	}
	u.log.Debug("univ3 quote",
		zap.String("pair", tokenIn+"/"+tokenOut),
		zap.Uint32("fee", bestTier),
		zap.String("out", best.String()))
	return best, nil
}

// quoteParams matches the QuoteExactInputSingleParams tuple; abi.Pack maps
// the struct fields positionally.
type quoteParams struct {
	TokenIn           common.Address
	TokenOut          common.Address
	AmountIn          *big.Int
	Fee               *big.Int
	SqrtPriceLimitX96 *big.Int
}
