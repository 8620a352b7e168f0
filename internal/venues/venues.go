package venues

import (
	"context"
	"math"
	"math/big"

	"golang.org/x/time/rate"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// Quoter answers "how much tokenOut for amountIn of tokenIn" on one venue.
// Tokens are symbols; amounts are raw smallest units. A venue with no quote
// for the pair returns types.ErrQuoteUnavailable.
type Quoter interface {
	Quote(ctx context.Context, chain types.ChainID, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error)
}

// Venue bundles a quoter with its identity and an optional request limiter.
// Venue-specific quirks live behind the Quoter; dispatch is a table lookup
// by ID, never a type hierarchy.
type Venue struct {
	ID      types.VenueID
	Quoter  Quoter
	Limiter *rate.Limiter // nil means unlimited
}

// Wait blocks on the venue's rate limiter, if any.
func (v *Venue) Wait(ctx context.Context) error {
	if v.Limiter == nil {
		return nil
	}
	return v.Limiter.Wait(ctx)
}

// Registry is the strategy table of configured venues.
type Registry struct {
	venues map[types.VenueID]*Venue
	order  []types.VenueID
}

func NewRegistry() *Registry {
	return &Registry{venues: make(map[types.VenueID]*Venue)}
}

func (r *Registry) Register(v *Venue) {
	if _, ok := r.venues[v.ID]; !ok {
		r.order = append(r.order, v.ID)
	}
	r.venues[v.ID] = v
}

func (r *Registry) Get(id types.VenueID) *Venue { return r.venues[id] }

// All returns the registered venues in registration order.
func (r *Registry) All() []*Venue {
	out := make([]*Venue, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.venues[id])
	}
	return out
}

// FromFloat converts a float amount in whole-token units to raw units.
func FromFloat(v float64, decimals int) *big.Int {
	scaled := v * math.Pow10(decimals)
	bf := new(big.Float).SetFloat64(scaled)
	out, _ := bf.Int(nil)
	if out.Sign() < 0 {
		return big.NewInt(0)
	}
	return out
}

// ToFloat converts raw units back to whole-token units.
func ToFloat(v *big.Int, decimals int) float64 {
	if v == nil {
		return 0
	}
	f, _ := new(big.Float).SetInt(v).Float64()
	return f / math.Pow10(decimals)
}
