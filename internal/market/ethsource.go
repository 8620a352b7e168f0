package market

import (
	"context"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// EthSource adapts an EVM JSON-RPC endpoint to the ChainSource boundary.
type EthSource struct {
	ec  *ethclient.Client
	log *zap.Logger
}

// NewEthSource dials the RPC endpoint, retrying transient dial failures with
// bounded exponential backoff.
func NewEthSource(ctx context.Context, rpcURL string, log *zap.Logger) (*EthSource, error) {
	var ec *ethclient.Client
	bo := backoff.NewExponentialBackOff()
	bo.MaxElapsedTime = 30 * time.Second
	err := backoff.Retry(func() error {
		var derr error
		ec, derr = ethclient.DialContext(ctx, rpcURL)
		return derr
	}, backoff.WithContext(bo, ctx))
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", rpcURL, err)
	}
	return &EthSource{ec: ec, log: log}, nil
}

func (s *EthSource) BlockNumber(ctx context.Context) (uint64, error) {
	return s.ec.BlockNumber(ctx)
}

func (s *EthSource) FeeEstimate(ctx context.Context) (uint64, error) {
	p, err := s.ec.SuggestGasPrice(ctx)
	if err != nil {
		return 0, err
	}
	if !p.IsUint64() {
		return 0, fmt.Errorf("gas price overflows uint64: %s", p)
	}
	return p.Uint64(), nil
}

func (s *EthSource) BlockUtilization(ctx context.Context) (uint64, uint64, error) {
	h, err := s.ec.HeaderByNumber(ctx, nil)
	if err != nil {
		return 0, 0, err
	}
	return h.GasUsed, h.GasLimit, nil
}

// Client exposes the underlying RPC client so on-chain venue quoters can
// share the connection instead of dialing their own.
func (s *EthSource) Client() *ethclient.Client { return s.ec }

func (s *EthSource) Close() {
	s.ec.Close()
}
