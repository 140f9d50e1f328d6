package chainstate

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
)

var (
	// ErrInvalidAddress is returned for addresses that are not 20-byte hex strings.
	ErrInvalidAddress = errors.New("invalid address")

	// ErrBlockNotFound is returned when the node does not know the requested block.
	ErrBlockNotFound = errors.New("block not found")
)

// Network identifies a chain and one of its networks, e.g. ETH mainnet.
type Network struct {
	Chain   string `json:"chain"`              // ticker, e.g. "ETH", "MATIC"
	Name    string `json:"network"`            // e.g. "mainnet", "regtest"
	ChainID uint64 `json:"chain_id,omitempty"` // expected EVM chain ID, 0 to skip verification
}

// String returns "<chain>-<network>".
func (n Network) String() string {
	return n.Chain + "-" + n.Name
}

// Provider reads chain state for a single network.
type Provider interface {
	Network() Network
	GetBalance(ctx context.Context, address string) (*big.Int, error)
	GetTransactionCount(ctx context.Context, address string) (uint64, error)
	GetLatestBlockNumber(ctx context.Context) (uint64, error)
	GetBlock(ctx context.Context, number uint64) (*Block, error)
	GetFee(ctx context.Context) (*big.Int, error)
}

// Block is a chain-agnostic view of an EVM block.
type Block struct {
	Number       uint64        `json:"number"`
	Hash         string        `json:"hash"`
	ParentHash   string        `json:"parent_hash"`
	Timestamp    uint64        `json:"timestamp"` // unix seconds
	Miner        string        `json:"miner"`
	GasLimit     uint64        `json:"gas_limit"`
	GasUsed      uint64        `json:"gas_used"`
	BaseFee      *big.Int      `json:"base_fee,omitempty"` // nil before London
	Transactions []Transaction `json:"transactions"`
}

// Transaction is a chain-agnostic view of an EVM transaction.
type Transaction struct {
	Hash     string   `json:"hash"`
	Index    uint64   `json:"index"`
	From     string   `json:"from"`
	To       string   `json:"to,omitempty"` // empty for contract creation
	Nonce    uint64   `json:"nonce"`
	Value    *big.Int `json:"value"`
	Gas      uint64   `json:"gas"`
	GasPrice *big.Int `json:"gas_price,omitempty"`
	Input    string   `json:"input,omitempty"`
}

// Addresses returns the distinct lowercase addresses that sent or received a
// transaction in b, in first-seen order.
func (b *Block) Addresses() []string {
	seen := make(map[string]struct{})
	var out []string
	add := func(addr string) {
		if addr == "" {
			return
		}
		addr = strings.ToLower(addr)
		if _, ok := seen[addr]; ok {
			return
		}
		seen[addr] = struct{}{}
		out = append(out, addr)
	}
	for _, tx := range b.Transactions {
		add(tx.From)
		add(tx.To)
	}
	return out
}

// BalanceCacheKey returns the result-cache key of an address balance.
func BalanceCacheKey(n Network, address string) string {
	return fmt.Sprintf("getBalanceForAddress-%s-%s-%s", n.Chain, n.Name, strings.ToLower(address))
}
