package main

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/chainstate-indexer/internal/indexer"
	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/kafka/message"
	"github.com/ava-labs/chainstate-indexer/pkg/models"
	"github.com/ava-labs/chainstate-indexer/pkg/queue"
)

var eth = chainstate.Network{Chain: "ETH", Name: "mainnet"}

type fakeProvider struct {
	latest     uint64
	balance    *big.Int
	balanceErr error
	reads      int
}

func (p *fakeProvider) Network() chainstate.Network { return eth }

func (p *fakeProvider) GetBalance(context.Context, string) (*big.Int, error) {
	p.reads++
	return p.balance, p.balanceErr
}

func (p *fakeProvider) GetTransactionCount(context.Context, string) (uint64, error) { return 0, nil }

func (p *fakeProvider) GetLatestBlockNumber(context.Context) (uint64, error) { return p.latest, nil }

func (p *fakeProvider) GetFee(context.Context) (*big.Int, error) { return big.NewInt(1), nil }

func (p *fakeProvider) GetBlock(_ context.Context, number uint64) (*chainstate.Block, error) {
	return &chainstate.Block{
		Number: number,
		Hash:   fmt.Sprintf("0x%064x", number),
	}, nil
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []queue.Msg
	err  error
}

func (p *fakePublisher) Publish(_ context.Context, msg queue.Msg) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.err != nil {
		return p.err
	}
	p.msgs = append(p.msgs, msg)
	return nil
}

func (p *fakePublisher) Close(context.Context) {}

func newFetcher(t *testing.T, p chainstate.Provider, pub queue.Publisher) *fetcher {
	return &fetcher{
		sugar:       zaptest.NewLogger(t).Sugar(),
		provider:    p,
		publisher:   pub,
		topic:       "blocks",
		windowSize:  3,
		concurrency: 2,
	}
}

func TestFetcher_PublishesInOrder(t *testing.T) {
	pub := &fakePublisher{}
	f := newFetcher(t, &fakeProvider{}, pub)

	require.NoError(t, f.run(context.Background(), 4, 10))

	require.Len(t, pub.msgs, 7)
	for i, msg := range pub.msgs {
		assert.Equal(t, "blocks", msg.Topic)
		assert.Equal(t, []byte("ETH-mainnet"), msg.Key)

		bm, err := message.DecodeBlock(msg.Value)
		require.NoError(t, err)
		assert.Equal(t, uint64(4+i), bm.Block.Number)
		assert.Equal(t, eth, bm.Network)
	}
}

func TestFetcher_ToLatest(t *testing.T) {
	pub := &fakePublisher{}
	f := newFetcher(t, &fakeProvider{latest: 2}, pub)

	require.NoError(t, f.run(context.Background(), 0, 0))
	assert.Len(t, pub.msgs, 3)
}

func TestFetcher_InvalidRange(t *testing.T) {
	f := newFetcher(t, &fakeProvider{}, &fakePublisher{})
	require.ErrorIs(t, f.run(context.Background(), 5, 4), indexer.ErrInvalidRange)
}

func TestFetcher_PublishError(t *testing.T) {
	f := newFetcher(t, &fakeProvider{}, &fakePublisher{err: errors.New("broker down")})

	err := f.run(context.Background(), 1, 2)
	require.ErrorContains(t, err, "publish block 1")
	require.ErrorContains(t, err, "broker down")
}

type recordingCache struct {
	entries []models.CacheEntry
	err     error
}

func (c *recordingCache) Name() string { return models.ResultCache }

func (c *recordingCache) BulkImport(_ context.Context, ops []models.CacheEntry, _ int) error {
	if c.err != nil {
		return c.err
	}
	c.entries = append(c.entries, ops...)
	return nil
}

const testAddress = "0x00000000000000000000000000000000000000Aa"

func TestResolveBalance_Hit(t *testing.T) {
	p := &fakeProvider{}
	cache := &recordingCache{}
	hit := models.Balance{Confirmed: "7", Unconfirmed: "0", Balance: "7", BlockNumber: 3}
	lookup := func(context.Context, chainstate.Network, string) (models.Balance, bool, error) {
		return hit, true, nil
	}

	b, cached, err := resolveBalance(context.Background(), p, lookup, cache, testAddress)
	require.NoError(t, err)
	assert.True(t, cached)
	assert.Equal(t, hit, b)
	assert.Zero(t, p.reads)
	assert.Empty(t, cache.entries)
}

func TestResolveBalance_MissWritesBack(t *testing.T) {
	p := &fakeProvider{latest: 42, balance: big.NewInt(1_000_000)}
	cache := &recordingCache{}
	lookup := func(_ context.Context, n chainstate.Network, address string) (models.Balance, bool, error) {
		assert.Equal(t, eth, n)
		assert.Equal(t, testAddress, address)
		return models.Balance{}, false, nil
	}

	b, cached, err := resolveBalance(context.Background(), p, lookup, cache, testAddress)
	require.NoError(t, err)
	assert.False(t, cached)
	assert.Equal(t, "1000000", b.Balance)
	assert.Equal(t, uint64(42), b.BlockNumber)

	require.Len(t, cache.entries, 1)
	assert.Equal(t, chainstate.BalanceCacheKey(eth, testAddress), cache.entries[0].Key)
}

func TestResolveBalance_Errors(t *testing.T) {
	miss := func(context.Context, chainstate.Network, string) (models.Balance, bool, error) {
		return models.Balance{}, false, nil
	}

	t.Run("lookup", func(t *testing.T) {
		failing := func(context.Context, chainstate.Network, string) (models.Balance, bool, error) {
			return models.Balance{}, false, errors.New("connection refused")
		}
		_, _, err := resolveBalance(context.Background(), &fakeProvider{}, failing, &recordingCache{}, testAddress)
		require.ErrorContains(t, err, "connection refused")
	})

	t.Run("provider", func(t *testing.T) {
		p := &fakeProvider{balanceErr: errors.New("rate limited")}
		cache := &recordingCache{}
		_, _, err := resolveBalance(context.Background(), p, miss, cache, testAddress)
		require.ErrorContains(t, err, "rate limited")
		assert.Empty(t, cache.entries)
	})

	t.Run("write back", func(t *testing.T) {
		p := &fakeProvider{balance: big.NewInt(1)}
		_, _, err := resolveBalance(context.Background(), p, miss, &recordingCache{err: errors.New("readonly")}, testAddress)
		require.ErrorContains(t, err, "import "+models.ResultCache)
	})
}
