package message

import (
	"math/big"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
)

var network = chainstate.Network{Chain: "ETH", Name: "mainnet", ChainID: 1}

func TestEncodeDecodeBlock(t *testing.T) {
	b := &chainstate.Block{
		Number:  42,
		Hash:    "0xabc",
		BaseFee: big.NewInt(7),
		Transactions: []chainstate.Transaction{
			{Hash: "0xdef", From: "0x01", To: "0x02", Value: big.NewInt(1_000_000_000_000_000_000)},
		},
	}

	data, err := EncodeBlock(network, b)
	require.NoError(t, err)

	env, err := Open(data)
	require.NoError(t, err)
	require.Equal(t, TypeBlock, env.Type)
	require.Equal(t, BlockVersion, env.Version)
	require.Equal(t, "ETH-mainnet-42", env.ID)

	msg, err := DecodeBlock(data)
	require.NoError(t, err)
	require.Equal(t, network, msg.Network)
	require.Equal(t, uint64(42), msg.Block.Number)
	require.Zero(t, msg.Block.BaseFee.Cmp(big.NewInt(7)))
	require.Len(t, msg.Block.Transactions, 1)
	require.Equal(t, "1000000000000000000", msg.Block.Transactions[0].Value.String())
}

func TestEncodeBlock_Nil(t *testing.T) {
	_, err := EncodeBlock(network, nil)
	require.ErrorIs(t, err, ErrEmptyBlock)
}

func TestDecodeBlock_Errors(t *testing.T) {
	tests := []struct {
		name    string
		data    string
		wantErr error
	}{
		{name: "not json", data: "{"},
		{name: "wrong type", data: `{"type":"chainstate.tx","version":1,"data":{}}`, wantErr: ErrUnknownType},
		{name: "wrong version", data: `{"type":"chainstate.block","version":2,"data":{}}`},
		{name: "bad payload", data: `{"type":"chainstate.block","version":1,"data":[]}`},
		{name: "missing block", data: `{"type":"chainstate.block","version":1,"data":{"network":{"chain":"ETH"}}}`, wantErr: ErrEmptyBlock},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := DecodeBlock([]byte(tt.data))
			require.Error(t, err)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}
