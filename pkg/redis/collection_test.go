package redis

import (
	"errors"
	"testing"
	"time"

	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ava-labs/chainstate-indexer/pkg/storage"
)

var errEncode = errors.New("unsupported value")

type testItem struct {
	key string
	err error
}

func (i testItem) CacheKey() string { return i.key }

func (i testItem) CacheValue() ([]byte, error) {
	if i.err != nil {
		return nil, i.err
	}
	return []byte("value-" + i.key), nil
}

func (i testItem) TTL() time.Duration { return 0 }

// unreachableClient returns a client for a port nothing listens on.
func unreachableClient(t *testing.T) *goredis.Client {
	t.Helper()
	c := goredis.NewClient(&goredis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 100 * time.Millisecond,
		MaxRetries:  -1,
	})
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestCollection_Key(t *testing.T) {
	coll := NewCollection[testItem](unreachableClient(t), "balances", "chainstate:", time.Minute)
	assert.Equal(t, "balances", coll.Name())
	assert.Equal(t, "chainstate:getBalanceForAddress-ETH-mainnet-0xabc", coll.Key("getBalanceForAddress-ETH-mainnet-0xabc"))
}

func TestCollection_BulkWrite_EncodeErrorWritesNothing(t *testing.T) {
	coll := NewCollection[testItem](unreachableClient(t), "balances", "", time.Minute)

	err := coll.BulkWrite(t.Context(), []testItem{{key: "a"}, {key: "b", err: errEncode}})
	require.ErrorIs(t, err, errEncode)
	assert.Contains(t, err.Error(), `item "b"`)
}

func TestCollection_BulkWrite_ConnectionError(t *testing.T) {
	coll := NewCollection[testItem](unreachableClient(t), "balances", "", time.Minute)

	err := coll.BulkWrite(t.Context(), []testItem{{key: "a"}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to write 1 items to balances")
}

func TestCollection_BulkImportReportsChunk(t *testing.T) {
	coll := NewCollection[testItem](unreachableClient(t), "balances", "", time.Minute)
	items := []testItem{{key: "a"}, {key: "b"}, {key: "c", err: errEncode}}

	// The first chunk fails on the unreachable server before the bad item is reached.
	err := storage.BulkImport[testItem](t.Context(), coll, items, 2)
	var writeErr *storage.WriteError
	require.ErrorAs(t, err, &writeErr)
	assert.Equal(t, 0, writeErr.Chunk)
	assert.Equal(t, 2, writeErr.Size)
}

func TestCollection_Get_ConnectionError(t *testing.T) {
	coll := NewCollection[testItem](unreachableClient(t), "balances", "", time.Minute)

	_, ok, err := coll.Get(t.Context(), "a")
	require.Error(t, err)
	assert.False(t, ok)
}
