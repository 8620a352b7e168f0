package venues

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

var testDecimals = map[string]int{"WETH": 18, "USDT": 6, "ARB": 18}

func TestFloatRoundTrip(t *testing.T) {
	raw := FromFloat(1.5, 18)
	assert.Equal(t, "1500000000000000000", raw.String())
	assert.InDelta(t, 1.5, ToFloat(raw, 18), 1e-12)

	raw = FromFloat(3000, 6)
	assert.Equal(t, "3000000000", raw.String())

	assert.Zero(t, FromFloat(-1, 6).Sign(), "negative amounts clamp to zero")
	assert.Zero(t, ToFloat(nil, 6))
}

func TestRegistryKeepsRegistrationOrder(t *testing.T) {
	reg := NewRegistry()
	reg.Register(&Venue{ID: "beta"})
	reg.Register(&Venue{ID: "alpha"})
	reg.Register(&Venue{ID: "beta"}) // re-register replaces, order stays

	all := reg.All()
	require.Len(t, all, 2)
	assert.Equal(t, types.VenueID("beta"), all[0].ID)
	assert.Equal(t, types.VenueID("alpha"), all[1].ID)

	assert.NotNil(t, reg.Get("alpha"))
	assert.Nil(t, reg.Get("gamma"))
}

func TestVenueWaitWithoutLimiter(t *testing.T) {
	v := &Venue{ID: "x"}
	assert.NoError(t, v.Wait(context.Background()))
}

func TestVenueWaitHonorsCancelledContext(t *testing.T) {
	v := &Venue{ID: "x", Limiter: rate.NewLimiter(rate.Limit(0.001), 1)}
	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, v.Wait(ctx)) // burst token

	cancel()
	assert.Error(t, v.Wait(ctx))
}

func TestStaticQuoter(t *testing.T) {
	q := NewStaticQuoter(testDecimals)
	q.SetPrice("WETH", "USDT", 3000)

	out, err := q.Quote(context.Background(), 1, "WETH", "USDT", FromFloat(2, 18))
	require.NoError(t, err)
	assert.InDelta(t, 6000, ToFloat(out, 6), 1e-6)

	_, err = q.Quote(context.Background(), 1, "USDT", "WETH", FromFloat(100, 6))
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable, "reverse direction needs its own price")
}

func TestWSBookQuoteDirectSymbol(t *testing.T) {
	w := NewWSBook("wss://example/ws", testDecimals, zap.NewNop())
	w.Book().Set("WETHUSDT", 3000, 3001)

	// selling WETH for USDT crosses the bid
	out, err := w.Quote(context.Background(), 1, "WETH", "USDT", FromFloat(1, 18))
	require.NoError(t, err)
	assert.InDelta(t, 3000, ToFloat(out, 6), 1e-6)
}

func TestWSBookQuoteInverseSymbol(t *testing.T) {
	w := NewWSBook("wss://example/ws", testDecimals, zap.NewNop())
	w.Book().Set("WETHUSDT", 3000, 3001)

	// buying WETH with USDT crosses the ask of the inverse symbol
	out, err := w.Quote(context.Background(), 1, "USDT", "WETH", FromFloat(3001, 6))
	require.NoError(t, err)
	assert.InDelta(t, 1.0, ToFloat(out, 18), 1e-9)
}

func TestWSBookQuoteEmptyBook(t *testing.T) {
	w := NewWSBook("wss://example/ws", testDecimals, zap.NewNop())
	_, err := w.Quote(context.Background(), 1, "WETH", "USDT", FromFloat(1, 18))
	assert.ErrorIs(t, err, types.ErrQuoteUnavailable)
}

func TestWSBookQuoteUnknownToken(t *testing.T) {
	w := NewWSBook("wss://example/ws", testDecimals, zap.NewNop())
	_, err := w.Quote(context.Background(), 1, "DOGE", "USDT", FromFloat(1, 8))
	require.Error(t, err)
	assert.NotErrorIs(t, err, types.ErrQuoteUnavailable)
}

func TestBookCache(t *testing.T) {
	bc := NewBookCache()
	assert.False(t, bc.Has("WETHUSDT"))
	_, _, err := bc.BestBidAsk("WETHUSDT")
	assert.Error(t, err)

	bc.Set("WETHUSDT", 2999.5, 3000.5)
	assert.True(t, bc.Has("WETHUSDT"))
	bid, ask, err := bc.BestBidAsk("WETHUSDT")
	require.NoError(t, err)
	assert.Equal(t, 2999.5, bid)
	assert.Equal(t, 3000.5, ask)
}
