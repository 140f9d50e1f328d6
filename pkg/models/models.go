// Package models binds the indexer's persistent models to their storage.
package models

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/clickhouse"
	"github.com/ava-labs/chainstate-indexer/pkg/redis"
	"github.com/ava-labs/chainstate-indexer/pkg/storage"
)

// Collection names.
const (
	BlocksTable       = "blocks"
	TransactionsTable = "transactions"
	ResultCache       = "chainstate_cache"
)

type (
	Blocks       = storage.Model[clickhouse.Client, BlockRow]
	Transactions = storage.Model[clickhouse.Client, TransactionRow]
	BalanceCache = storage.Model[*goredis.Client, CacheEntry]
)

// NewBlocks binds the blocks table, creating it on connect.
func NewBlocks(ctx context.Context, svc storage.Service[clickhouse.Client], opts ...storage.Option) *Blocks {
	return storage.NewModel(ctx, svc, storage.Binding[clickhouse.Client, BlockRow]{
		Name:      BlocksTable,
		Open:      clickhouse.OpenTable[BlockRow](BlockColumns...),
		OnConnect: clickhouse.CreateTable[BlockRow](BlocksDDL),
	}, opts...)
}

// NewTransactions binds the transactions table, creating it on connect.
func NewTransactions(ctx context.Context, svc storage.Service[clickhouse.Client], opts ...storage.Option) *Transactions {
	return storage.NewModel(ctx, svc, storage.Binding[clickhouse.Client, TransactionRow]{
		Name:      TransactionsTable,
		Open:      clickhouse.OpenTable[TransactionRow](TransactionColumns...),
		OnConnect: clickhouse.CreateTable[TransactionRow](TransactionsDDL),
	}, opts...)
}

// NewBalanceCache binds the Redis result cache. Keys are written under prefix
// and expire after defaultTTL unless an entry sets its own.
func NewBalanceCache(ctx context.Context, svc storage.Service[*goredis.Client], prefix string, defaultTTL time.Duration, opts ...storage.Option) *BalanceCache {
	return storage.NewModel(ctx, svc, storage.Binding[*goredis.Client, CacheEntry]{
		Name: ResultCache,
		Open: redis.OpenCollection[CacheEntry](prefix, defaultTTL),
	}, opts...)
}

// LookupBalance reads the cached balance of address. The boolean is false on a
// cache miss.
func LookupBalance(ctx context.Context, cache *BalanceCache, n chainstate.Network, address string) (Balance, bool, error) {
	coll, err := cache.Collection()
	if err != nil {
		return Balance{}, false, err
	}
	rc, ok := coll.(*redis.Collection[CacheEntry])
	if !ok {
		return Balance{}, false, fmt.Errorf("collection %s does not support reads", coll.Name())
	}

	raw, found, err := rc.Get(ctx, chainstate.BalanceCacheKey(n, address))
	if err != nil || !found {
		return Balance{}, false, err
	}
	b, err := DecodeBalance(raw)
	if err != nil {
		return Balance{}, false, err
	}
	return b, true, nil
}
