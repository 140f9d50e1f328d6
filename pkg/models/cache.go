package models

import (
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
)

// CacheEntry is a JSON value stored in the result cache.
type CacheEntry struct {
	Key        string
	Value      any
	Expiration time.Duration // zero uses the cache default
}

func (e CacheEntry) CacheKey() string { return e.Key }

func (e CacheEntry) CacheValue() ([]byte, error) {
	b, err := json.Marshal(e.Value)
	if err != nil {
		return nil, fmt.Errorf("failed to encode cache entry %q: %w", e.Key, err)
	}
	return b, nil
}

func (e CacheEntry) TTL() time.Duration { return e.Expiration }

// Balance is the cached balance of an address. Amounts are decimal strings in
// the chain's smallest unit.
type Balance struct {
	Confirmed   string `json:"confirmed"`
	Unconfirmed string `json:"unconfirmed"`
	Balance     string `json:"balance"`
	BlockNumber uint64 `json:"blockNumber"`
}

// NewBalanceEntry returns the cache entry of a confirmed balance observed at
// blockNumber.
func NewBalanceEntry(n chainstate.Network, address string, balance *big.Int, blockNumber uint64) CacheEntry {
	amount := "0"
	if balance != nil {
		amount = balance.String()
	}
	return CacheEntry{
		Key: chainstate.BalanceCacheKey(n, address),
		Value: Balance{
			Confirmed:   amount,
			Unconfirmed: "0",
			Balance:     amount,
			BlockNumber: blockNumber,
		},
	}
}

// DecodeBalance parses a cached Balance value.
func DecodeBalance(raw []byte) (Balance, error) {
	var b Balance
	if err := json.Unmarshal(raw, &b); err != nil {
		return Balance{}, fmt.Errorf("failed to decode cached balance: %w", err)
	}
	return b, nil
}
