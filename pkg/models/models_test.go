package models

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"github.com/ava-labs/chainstate-indexer/pkg/clickhouse"
	"github.com/ava-labs/chainstate-indexer/pkg/clickhouse/testutils"
	"github.com/ava-labs/chainstate-indexer/pkg/storage"
)

func readyClickhouse(conn *testutils.MockConn) storage.Service[clickhouse.Client] {
	svc := storage.NewReadiness[clickhouse.Client]()
	svc.Resolve(testutils.NewTestClient(conn))
	return svc
}

func TestNewBlocks_CreatesTableAndImports(t *testing.T) {
	t.Parallel()
	conn := &testutils.MockConn{}
	batch := &testutils.MockBatch{}
	ctx := t.Context()

	conn.On("Exec", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.HasPrefix(q, "CREATE TABLE IF NOT EXISTS blocks (")
	})).Return(nil).Once()
	conn.On("PrepareBatch", mock.Anything, mock.MatchedBy(func(q string) bool {
		return strings.HasPrefix(q, "INSERT INTO blocks (chain, network, block_number")
	})).Return(batch, nil).Once()
	batch.On("Append", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything,
		mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Once()
	batch.On("Send").Return(nil).Once()

	blocks := NewBlocks(ctx, readyClickhouse(conn), storage.WithLogger(zaptest.NewLogger(t).Sugar()))
	require.NoError(t, blocks.WaitConnected(ctx))
	assert.Equal(t, BlocksTable, blocks.Name())

	row, _, err := FromBlock(testNetwork, testBlock())
	require.NoError(t, err)
	require.NoError(t, blocks.BulkImport(ctx, []BlockRow{row}, 100))

	conn.AssertExpectations(t)
	batch.AssertExpectations(t)
}

func TestNewTransactions_HookFailure(t *testing.T) {
	t.Parallel()
	conn := &testutils.MockConn{}
	conn.On("Exec", mock.Anything, mock.Anything).Return(assert.AnError)

	txs := NewTransactions(t.Context(), readyClickhouse(conn))

	require.ErrorIs(t, txs.WaitConnected(t.Context()), assert.AnError)
	assert.True(t, txs.Connected())
	assert.Equal(t, TransactionsTable, txs.Name())
}
