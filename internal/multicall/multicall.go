package multicall

import (
	"context"
	"fmt"
	"strings"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
)

// Minimal Multicall2 tryAggregate ABI. One eth_call fans out to any number
// of read-only contract calls, which keeps per-cycle RPC round trips flat no
// matter how many fee tiers or pools get probed. tryAggregate with
// requireSuccess=false lets individual calls revert (a pool that does not
// exist on a fee tier) without poisoning the whole batch.
const multicallABI = `[
{
    "inputs": [
        {"name": "requireSuccess", "type": "bool"},
        {
            "components": [
                {"name": "target", "type": "address"},
                {"name": "callData", "type": "bytes"}
            ],
            "name": "calls",
            "type": "tuple[]"
        }
    ],
    "name": "tryAggregate",
    "outputs": [
        {
            "components": [
                {"name": "success", "type": "bool"},
                {"name": "returnData", "type": "bytes"}
            ],
            "name": "returnData",
            "type": "tuple[]"
        }
    ],
    "stateMutability": "nonpayable",
    "type": "function"
}
]`

// Caller batches read-only contract calls into one RPC round trip.
type Caller interface {
	Aggregate(ctx context.Context, calls []Call) ([]Result, error)
}

type Call struct {
	Target   common.Address
	CallData []byte
}

// Result carries one call's raw return data. Success is the contract-level
// flag: a reverted call comes back Success=false with empty Data instead of
// failing the batch.
type Result struct {
	Success bool
	Data    []byte
}

// tryResult mirrors the tryAggregate output tuple for ABI decoding.
type tryResult struct {
	Success    bool
	ReturnData []byte
}

type Client struct {
	ec   *ethclient.Client
	addr common.Address
	abi  abi.ABI
}

func New(ec *ethclient.Client, addr common.Address) (*Client, error) {
	parsed, err := abi.JSON(strings.NewReader(multicallABI))
	if err != nil {
		return nil, fmt.Errorf("parse multicall abi: %w", err)
	}
	return &Client{ec: ec, addr: addr, abi: parsed}, nil
}

func (c *Client) Aggregate(ctx context.Context, calls []Call) ([]Result, error) {
	if len(calls) == 0 {
		return nil, nil
	}
	payload, err := c.abi.Pack("tryAggregate", false, calls)
	if err != nil {
		return nil, fmt.Errorf("pack tryAggregate: %w", err)
	}

	raw, err := c.ec.CallContract(ctx, ethereum.CallMsg{To: &c.addr, Data: payload}, nil)
	if err != nil {
		return nil, fmt.Errorf("call tryAggregate: %w", err)
	}

	var rs []tryResult
	if err := c.abi.UnpackIntoInterface(&rs, "tryAggregate", raw); err != nil {
		return nil, fmt.Errorf("unpack tryAggregate: %w", err)
	}

	out := make([]Result, len(calls))
	for i, r := range rs {
		if i >= len(out) {
			break
		}
		out[i] = Result{Success: r.Success, Data: r.ReturnData}
	}
	return out, nil
}
