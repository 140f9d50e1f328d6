package storage

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

// memDB hands out recording collections by name.
type memDB struct {
	opened atomic.Int32
}

func (db *memDB) open(_ *memDB, name string) Collection[int] {
	db.opened.Add(1)
	coll := newRecordingCollection()
	coll.name = name
	return coll
}

func binding(db *memDB) Binding[*memDB, int] {
	return Binding[*memDB, int]{Name: "balances", Open: db.open}
}

func TestModel_ConnectsSynchronouslyWhenReady(t *testing.T) {
	t.Parallel()
	db := &memDB{}
	svc := NewReadiness[*memDB]()
	svc.Resolve(db)

	m := NewModel(t.Context(), svc, binding(db), WithLogger(zaptest.NewLogger(t).Sugar()))

	require.True(t, m.Connected())
	coll, err := m.Collection()
	require.NoError(t, err)
	assert.Equal(t, "balances", coll.Name())
	assert.Equal(t, "balances", m.Name())
}

func TestModel_NotConnectedUntilReady(t *testing.T) {
	t.Parallel()
	db := &memDB{}
	svc := NewReadiness[*memDB]()

	m := NewModel(t.Context(), svc, binding(db))

	assert.False(t, m.Connected())
	_, err := m.Collection()
	require.ErrorIs(t, err, ErrNotConnected)
	require.ErrorIs(t, m.BulkImport(t.Context(), sequence(10), 5), ErrNotConnected)

	svc.Resolve(db)
	require.NoError(t, m.WaitConnected(t.Context()))

	first, err := m.Collection()
	require.NoError(t, err)
	second, err := m.Collection()
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, int32(1), db.opened.Load())
}

func TestModel_BulkImportUsesBoundCollection(t *testing.T) {
	t.Parallel()
	db := &memDB{}
	svc := NewReadiness[*memDB]()
	svc.Resolve(db)
	m := NewModel(t.Context(), svc, binding(db))

	require.NoError(t, m.BulkImport(t.Context(), sequence(250), 100))

	coll, err := m.Collection()
	require.NoError(t, err)
	assert.Equal(t, []int{100, 100, 50}, coll.(*recordingCollection).sizes())
}

func TestModel_RunsConnectHookOnce(t *testing.T) {
	t.Parallel()
	db := &memDB{}
	svc := NewReadiness[*memDB]()

	var hooks atomic.Int32
	b := binding(db)
	b.OnConnect = func(_ context.Context, got *memDB, coll Collection[int]) error {
		hooks.Add(1)
		assert.Same(t, db, got)
		assert.Equal(t, "balances", coll.Name())
		return nil
	}

	m := NewModel(t.Context(), svc, b)
	assert.Zero(t, hooks.Load())

	svc.Resolve(db)
	require.NoError(t, m.WaitConnected(t.Context()))
	assert.Equal(t, int32(1), hooks.Load())
}

func TestModel_ConnectHookError(t *testing.T) {
	t.Parallel()
	db := &memDB{}
	svc := NewReadiness[*memDB]()
	svc.Resolve(db)

	errHook := errors.New("create table failed")
	b := binding(db)
	b.OnConnect = func(context.Context, *memDB, Collection[int]) error {
		return errHook
	}

	m := NewModel(t.Context(), svc, b)

	require.ErrorIs(t, m.WaitConnected(t.Context()), errHook)
	assert.True(t, m.Connected(), "model stays bound after a hook failure")
}

func TestModel_ContextEndsBeforeReady(t *testing.T) {
	t.Parallel()
	db := &memDB{}
	svc := NewReadiness[*memDB]()

	ctx, cancel := context.WithCancel(t.Context())
	m := NewModel(ctx, svc, binding(db))
	cancel()

	waitCtx, waitCancel := context.WithTimeout(t.Context(), 50*time.Millisecond)
	defer waitCancel()
	require.ErrorIs(t, m.WaitConnected(waitCtx), context.DeadlineExceeded)
	assert.False(t, m.Connected())
}

func TestModel_WithConnector(t *testing.T) {
	t.Parallel()
	db := &memDB{}
	dial := func(context.Context) (*memDB, error) { return db, nil }
	c := NewConnector("mem", dial, nil, ConnectorConfig{BaseDelay: time.Millisecond})
	t.Cleanup(func() { _ = c.Close() })

	m := NewModel[*memDB, int](t.Context(), c, binding(db))
	c.Start(t.Context())

	ctx, cancel := context.WithTimeout(t.Context(), 2*time.Second)
	defer cancel()
	require.NoError(t, m.WaitConnected(ctx))
	require.NoError(t, m.BulkImport(ctx, sequence(3), 2))
}
