package venues

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

// BookCache holds the latest best bid/ask per symbol.
type BookCache struct {
	mu   sync.RWMutex
	bids map[string]float64
	asks map[string]float64
}

func NewBookCache() *BookCache {
	return &BookCache{
		bids: make(map[string]float64, 64),
		asks: make(map[string]float64, 64),
	}
}

func (bc *BookCache) Set(symbol string, bid, ask float64) {
	bc.mu.Lock()
	bc.bids[symbol] = bid
	bc.asks[symbol] = ask
	bc.mu.Unlock()
}

func (bc *BookCache) BestBidAsk(symbol string) (float64, float64, error) {
	bc.mu.RLock()
	defer bc.mu.RUnlock()
	bid := bc.bids[symbol]
	ask := bc.asks[symbol]
	if bid == 0 || ask == 0 {
		return 0, 0, fmt.Errorf("empty book for %s", symbol)
	}
	return bid, ask, nil
}

func (bc *BookCache) Has(symbol string) bool {
	bc.mu.RLock()
	_, ok1 := bc.bids[symbol]
	_, ok2 := bc.asks[symbol]
	bc.mu.RUnlock()
	return ok1 && ok2
}

// WSBook is a CEX-style venue backed by a websocket book-ticker stream.
// It serves quotes out of its local BookCache, so Quote never blocks on
// the network.
type WSBook struct {
	url      string
	book     *BookCache
	decimals map[string]int // token symbol -> decimals
	dialer   *websocket.Dialer
	log      *zap.Logger
}

type bookTickerMsg struct {
	Symbol string  `json:"symbol"`
	Bid    float64 `json:"bid,string"`
	Ask    float64 `json:"ask,string"`
}

func NewWSBook(url string, decimals map[string]int, log *zap.Logger) *WSBook {
	return &WSBook{
		url:      strings.TrimRight(url, "/"),
		book:     NewBookCache(),
		decimals: decimals,
		dialer: &websocket.Dialer{
			HandshakeTimeout:  15 * time.Second,
			EnableCompression: true,
		},
		log: log,
	}
}

// Book exposes the cache, mainly for tests and bootstrap checks.
func (w *WSBook) Book() *BookCache { return w.book }

// Run subscribes to the book ticker for symbols and keeps the cache fresh
// until ctx is done, reconnecting with exponential backoff on stream
// failures.
func (w *WSBook) Run(ctx context.Context, symbols []string) {
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 0 // retry for as long as the pipeline runs
	for ctx.Err() == nil {
		if err := w.stream(ctx, symbols); err != nil && ctx.Err() == nil {
			wait := bo.NextBackOff()
			w.log.Warn("book ticker stream failed, reconnecting",
				zap.Error(err), zap.Duration("backoff", wait))
			select {
			case <-ctx.Done():
				return
			case <-time.After(wait):
			}
			continue
		}
		bo.Reset()
	}
}

func (w *WSBook) stream(ctx context.Context, symbols []string) error {
	conn, _, err := w.dialer.DialContext(ctx, w.url, nil)
	if err != nil {
		return fmt.Errorf("dial %s: %w", w.url, err)
	}
	defer conn.Close()

	params := make([]string, 0, len(symbols))
	for _, s := range symbols {
		params = append(params, "book."+strings.ToUpper(s))
	}
	sub := struct {
		ID     int      `json:"id"`
		Method string   `json:"method"`
		Params []string `json:"params"`
	}{ID: 1, Method: "SUBSCRIPTION", Params: params}
	if err := conn.WriteJSON(sub); err != nil {
		return fmt.Errorf("subscribe: %w", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(90 * time.Second))
	})

	pingStop := make(chan struct{})
	defer close(pingStop)
	go func() {
		t := time.NewTicker(20 * time.Second)
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				_ = conn.Close()
				return
			case <-pingStop:
				return
			case <-t.C:
				_ = conn.WriteMessage(websocket.PingMessage, nil)
			}
		}
	}()

	for {
		var msg bookTickerMsg
		if err := conn.ReadJSON(&msg); err != nil {
			return err
		}
		if msg.Symbol == "" || msg.Bid == 0 || msg.Ask == 0 {
			continue
		}
		w.book.Set(strings.ToUpper(msg.Symbol), msg.Bid, msg.Ask)
	}
}

// Quote prices the pair off the cached book: selling the base leg crosses
// the bid, buying it crosses the ask of the inverse symbol.
func (w *WSBook) Quote(_ context.Context, _ types.ChainID, tokenIn, tokenOut string, amountIn *big.Int) (*big.Int, error) {
	inDec, ok := w.decimals[tokenIn]
	if !ok {
		return nil, fmt.Errorf("%s: unknown token %s", w.url, tokenIn)
	}
	outDec, ok := w.decimals[tokenOut]
	if !ok {
		return nil, fmt.Errorf("%s: unknown token %s", w.url, tokenOut)
	}
	in := ToFloat(amountIn, inDec)

	direct := strings.ToUpper(tokenIn + tokenOut)
	if bid, _, err := w.book.BestBidAsk(direct); err == nil {
		return FromFloat(in*bid, outDec), nil
	}
	inverse := strings.ToUpper(tokenOut + tokenIn)
	if _, ask, err := w.book.BestBidAsk(inverse); err == nil && ask > 0 {
		return FromFloat(in/ask, outDec), nil
	}
	return nil, fmt.Errorf("%s/%s: %w", tokenIn, tokenOut, types.ErrQuoteUnavailable)
}
