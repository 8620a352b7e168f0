package venues

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// StaticQuoter serves fixed prices from a table. Used for dry runs and
// tests where no live venue is wired.
type StaticQuoter struct {
	mu       sync.RWMutex
	prices   map[string]float64 // "IN/OUT" -> out per 1 in
	decimals map[string]int
}

func NewStaticQuoter(decimals map[string]int) *StaticQuoter {
	return &StaticQuoter{
		prices:   make(map[string]float64),
		decimals: decimals,
	}
}

func (s *StaticQuoter) SetPrice(tokenIn, tokenOut string, price float64) {
	s.mu.Lock()
	s.prices[key(tokenIn, tokenOut)] = price
	s.mu.Unlock()
}

func (s *StaticQuoter) Quote(_ context.Context, _ types.ChainID, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	s.mu.RLock()
	px, ok := s.prices[key(tokenIn, tokenOut)]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%s/%s: %w", tokenIn, tokenOut, types.ErrQuoteUnavailable)
	}
	inDec := s.decimals[tokenIn]
	outDec := s.decimals[tokenOut]
	return FromFloat(ToFloat(amountIn, inDec)*px, outDec), nil
}

func key(in, out string) string {
	return strings.ToUpper(in) + "/" + strings.ToUpper(out)
}
