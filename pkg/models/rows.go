package models

import (
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/utils"
)

// BlockRow is the insert shape of the blocks table.
type BlockRow struct {
	Chain      string
	Network    string
	Number     uint64
	Hash       [32]byte
	ParentHash [32]byte
	BlockTime  time.Time
	Miner      [20]byte
	GasLimit   uint64
	GasUsed    uint64
	BaseFee    *big.Int
	TxCount    uint32
}

// BlockColumns lists the blocks table columns in Values order.
var BlockColumns = []string{
	"chain", "network", "block_number", "hash", "parent_hash", "block_time",
	"miner", "gas_limit", "gas_used", "base_fee_per_gas", "tx_count",
}

// Values returns the column values in BlockColumns order. FixedString
// columns are passed as binary strings.
func (r BlockRow) Values() []any {
	return []any{
		r.Chain,
		r.Network,
		r.Number,
		string(r.Hash[:]),
		string(r.ParentHash[:]),
		r.BlockTime,
		string(r.Miner[:]),
		r.GasLimit,
		r.GasUsed,
		orZero(r.BaseFee),
		r.TxCount,
	}
}

// TransactionRow is the insert shape of the transactions table.
type TransactionRow struct {
	Chain       string
	Network     string
	BlockNumber uint64
	BlockTime   time.Time
	Hash        [32]byte
	Index       uint32
	From        [20]byte
	To          *[20]byte // nil for contract creation
	Nonce       uint64
	Value       *big.Int
	Gas         uint64
	GasPrice    *big.Int
	Input       string
}

// TransactionColumns lists the transactions table columns in Values order.
var TransactionColumns = []string{
	"chain", "network", "block_number", "block_time", "hash", "transaction_index",
	"from_address", "to_address", "nonce", "value", "gas", "gas_price", "input",
}

func (r TransactionRow) Values() []any {
	var to any
	if r.To != nil {
		to = string(r.To[:])
	}
	return []any{
		r.Chain,
		r.Network,
		r.BlockNumber,
		r.BlockTime,
		string(r.Hash[:]),
		r.Index,
		string(r.From[:]),
		to,
		r.Nonce,
		orZero(r.Value),
		r.Gas,
		orZero(r.GasPrice),
		r.Input,
	}
}

// UInt256 columns reject nil.
func orZero(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return v
}

// FromBlock converts a block and its transactions to insert rows.
func FromBlock(n chainstate.Network, b *chainstate.Block) (BlockRow, []TransactionRow, error) {
	blockTime := time.Unix(int64(b.Timestamp), 0).UTC()
	row := BlockRow{
		Chain:     n.Chain,
		Network:   n.Name,
		Number:    b.Number,
		BlockTime: blockTime,
		GasLimit:  b.GasLimit,
		GasUsed:   b.GasUsed,
		BaseFee:   b.BaseFee,
		TxCount:   uint32(len(b.Transactions)),
	}

	var err error
	if row.Hash, err = utils.HexToBytes32(b.Hash); err != nil {
		return BlockRow{}, nil, fmt.Errorf("block %d hash: %w", b.Number, err)
	}
	if row.ParentHash, err = utils.HexToBytes32(b.ParentHash); err != nil {
		return BlockRow{}, nil, fmt.Errorf("block %d parent hash: %w", b.Number, err)
	}
	if row.Miner, err = utils.HexToBytes20(b.Miner); err != nil {
		return BlockRow{}, nil, fmt.Errorf("block %d miner: %w", b.Number, err)
	}

	txs := make([]TransactionRow, 0, len(b.Transactions))
	for _, tx := range b.Transactions {
		txRow := TransactionRow{
			Chain:       n.Chain,
			Network:     n.Name,
			BlockNumber: b.Number,
			BlockTime:   blockTime,
			Index:       uint32(tx.Index),
			Nonce:       tx.Nonce,
			Value:       tx.Value,
			Gas:         tx.Gas,
			GasPrice:    tx.GasPrice,
			Input:       strings.TrimPrefix(tx.Input, "0x"),
		}
		if txRow.Hash, err = utils.HexToBytes32(tx.Hash); err != nil {
			return BlockRow{}, nil, fmt.Errorf("block %d tx %d hash: %w", b.Number, tx.Index, err)
		}
		if txRow.From, err = utils.HexToBytes20(tx.From); err != nil {
			return BlockRow{}, nil, fmt.Errorf("block %d tx %d from: %w", b.Number, tx.Index, err)
		}
		if tx.To != "" {
			to, err := utils.HexToBytes20(tx.To)
			if err != nil {
				return BlockRow{}, nil, fmt.Errorf("block %d tx %d to: %w", b.Number, tx.Index, err)
			}
			txRow.To = &to
		}
		txs = append(txs, txRow)
	}
	return row, txs, nil
}
