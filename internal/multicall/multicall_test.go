package multicall

import (
	"context"
	"strings"
	"testing"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const erc20ABI = `[{"constant":true,"inputs":[],"name":"decimals","outputs":[{"name":"","type":"uint8"}],"payable":false,"stateMutability":"view","type":"function"}]`

func TestTryAggregatePayloadRoundTrip(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(multicallABI))
	require.NoError(t, err)

	erc20, err := abi.JSON(strings.NewReader(erc20ABI))
	require.NoError(t, err)
	callData, err := erc20.Pack("decimals")
	require.NoError(t, err)

	calls := []Call{
		{Target: common.HexToAddress("0x82af49447d8a07e3bd95bd0d56f35241523fbab1"), CallData: callData},
		{Target: common.HexToAddress("0xfd086bc7cd5c481dcc9c85ebe478a1c0b69fcbb9"), CallData: callData},
	}
	payload, err := parsed.Pack("tryAggregate", false, calls)
	require.NoError(t, err)
	assert.NotEmpty(t, payload)

	// decode side: the unpack target Aggregate uses must accept the ABI shape
	unpacked, err := parsed.Methods["tryAggregate"].Inputs.Unpack(payload[4:])
	require.NoError(t, err)
	require.Len(t, unpacked, 2)
	assert.Equal(t, false, unpacked[0])
}

func TestTryAggregateKeepsRevertedEntries(t *testing.T) {
	parsed, err := abi.JSON(strings.NewReader(multicallABI))
	require.NoError(t, err)

	// one reverted probe (success=false, empty bytes) next to a live one
	raw, err := parsed.Methods["tryAggregate"].Outputs.Pack([]tryResult{
		{Success: true, ReturnData: []byte{0x01, 0x02}},
		{Success: false, ReturnData: nil},
	})
	require.NoError(t, err)

	var rs []tryResult
	require.NoError(t, parsed.UnpackIntoInterface(&rs, "tryAggregate", raw))
	require.Len(t, rs, 2)
	assert.True(t, rs[0].Success)
	assert.Equal(t, []byte{0x01, 0x02}, rs[0].ReturnData)
	assert.False(t, rs[1].Success)
	assert.Empty(t, rs[1].ReturnData)
}

func TestNewRejectsNothing(t *testing.T) {
	c, err := New(nil, common.Address{})
	require.NoError(t, err)
	assert.NotNil(t, c)
}

func TestAggregateEmptyCalls(t *testing.T) {
	c, err := New(nil, common.Address{})
	require.NoError(t, err)
	res, err := c.Aggregate(context.Background(), nil)
	assert.NoError(t, err)
	assert.Nil(t, res)
}
