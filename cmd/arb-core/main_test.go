package main

import (
	"context"
	"math/big"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/theburgerllc/ARBBot2025-sub002/internal/config"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/risk"
	"github.com/theburgerllc/ARBBot2025-sub002/internal/types"
)

func TestDryRunExecutorSettlesExposure(t *testing.T) {
	gate := risk.NewGate(config.Default().Risk, zap.NewNop())
	exec := &dryRunExecutor{log: zap.NewNop(), report: gate.RecordOutcome}

	req := risk.TradeRequest{
		Pair: "WETH/USDT", Token: "WETH", Chain: 1,
		Size: 9_000, EstProfit: 100, EstGasCost: 10, Confidence: 0.9,
	}
	opp := types.Opportunity{
		ID: "c-1", Chain: 1, Pair: "WETH/USDT", Path: []string{"WETH", "USDT"},
		AmountIn: big.NewInt(1), TradeSize: 9_000, NetProfit: 100,
	}

	// token cap is 25% of 100k; without settlement the third 9k approval
	// would pile up past it and the run would start rejecting everything
	for i := 0; i < 3; i++ {
		a, err := gate.AssessTrade(req)
		require.NoError(t, err)
		require.True(t, a.Approved, "approval %d", i)
		exec.Execute(context.Background(), opp, types.OptimizedParameters{})
	}
	assert.Zero(t, gate.Metrics().TokenExposure["WETH"])
}

func TestDryRunExecutorWithoutReporter(t *testing.T) {
	exec := &dryRunExecutor{log: zap.NewNop()}
	opp := types.Opportunity{
		ID: "c-2", Chain: 1, Pair: "WETH/USDT", Path: []string{"WETH", "USDT"},
		AmountIn: big.NewInt(1), TradeSize: 100,
	}
	assert.NotPanics(t, func() {
		exec.Execute(context.Background(), opp, types.OptimizedParameters{})
	})
}
