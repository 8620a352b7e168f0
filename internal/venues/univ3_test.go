package venues

import (
	"context"
	"math/big"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/multicall"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

type mockCaller struct {
	results []multicall.Result
	err     error
	calls   []multicall.Call
}

func (m *mockCaller) Aggregate(_ context.Context, calls []multicall.Call) ([]multicall.Result, error) {
	m.calls = calls
	if m.err != nil {
		return nil, m.err
	}
	return m.results, nil
}

var testTokens = map[string]common.Address{
	"WETH": common.HexToAddress("0x82af49447d8a07e3bd95bd0d56f35241523fbab1"),
	"USDT": common.HexToAddress("0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9"),
}

const quoterAddr = "0x61fFE014bA17989E743c5F6cB21bF9697530B21e" // Arbitrum One QuoterV2

func packQuoteOutput(t *testing.T, amountOut *big.Int) []byte {
	t.Helper()
	q2abi, err := abi.JSON(strings.NewReader(quoterV2ABI))
	require.NoError(t, err)
	data, err := q2abi.Methods["quoteExactInputSingle"].Outputs.Pack(
		amountOut, big.NewInt(0), uint32(0), big.NewInt(0))
	require.NoError(t, err)
	return data
}

func newUniV3(t *testing.T, mc multicall.Caller, tiers []uint32) *UniV3Quoter {
	t.Helper()
	q, err := NewUniV3Quoter(mc, common.HexToAddress(quoterAddr), testTokens, tiers, zap.NewNop())
	require.NoError(t, err)
	return q
}

func TestUniV3QuotePicksBestTier(t *testing.T) {
	mc := &mockCaller{results: []multicall.Result{
		{Success: true, Data: packQuoteOutput(t, big.NewInt(2_990_000_000))}, // 500
		{Success: true, Data: packQuoteOutput(t, big.NewInt(3_001_000_000))}, // 3000
	}}
	q := newUniV3(t, mc, []uint32{500, 3000})

	out, err := q.Quote(context.Background(), 42161, "WETH", "USDT", FromFloat(1, 18))
	require.NoError(t, err)
	assert.Equal(t, "3001000000", out.String())
	assert.Len(t, mc.calls, 2, "one call per fee tier in a single batch")
}

func TestUniV3QuoteSkipsFailedTiers(t *testing.T) {
	mc := &mockCaller{results: []multicall.Result{
		{Success: false},
		{Success: true, Data: packQuoteOutput(t, big.NewInt(100))},
	}}
	q := newUniV3(t, mc, []uint32{500, 3000})

	out, err := q.Quote(context.Background(), 42161, "WETH", "USDT", FromFloat(1, 18))
	require.NoError(t, err)
	assert.Equal(t, "100", out.String())
}

func TestUniV3QuoteAllTiersFail(t *testing.T) {
	mc := &mockCaller{results: []multicall.Result{{Success: false}, {Success: false}}}
	q := newUniV3(t, mc, []uint32{500, 3000})

	_, err := q.Quote(context.Background(), 42161, "WETH", "USDT", FromFloat(1, 18))
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
}

func TestUniV3QuoteUnknownToken(t *testing.T) {
	q := newUniV3(t, &mockCaller{}, nil)
	_, err := q.Quote(context.Background(), 42161, "DOGE", "USDT", big.NewInt(1))
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
}

func TestUniV3RequiresQuoterAddress(t *testing.T) {
	_, err := NewUniV3Quoter(&mockCaller{}, common.Address{}, testTokens, nil, zap.NewNop())
	assert.Error(t, err)
}

func TestUniV3DefaultFeeTiers(t *testing.T) {
	mc := &mockCaller{results: []multicall.Result{
		{Success: true, Data: packQuoteOutput(t, big.NewInt(1))},
		{Success: true, Data: packQuoteOutput(t, big.NewInt(2))},
	}}
	q := newUniV3(t, mc, nil)

	_, err := q.Quote(context.Background(), 42161, "WETH", "USDT", big.NewInt(1))
	require.NoError(t, err)
	assert.Len(t, mc.calls, 2, "falls back to the 0.05% and 0.3% tiers")
}
