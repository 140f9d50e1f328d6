package storage

import (
	"context"
	"sync"
)

// OpenFunc returns the collection called name on db.
type OpenFunc[D, T any] func(db D, name string) Collection[T]

// ConnectHook runs once right after a model binds its collection, typically to
// create tables or indexes.
type ConnectHook[D, T any] func(ctx context.Context, db D, coll Collection[T]) error

// Binding describes the collection a model owns.
type Binding[D, T any] struct {
	Name      string
	Open      OpenFunc[D, T]
	OnConnect ConnectHook[D, T] // optional
}

// Model is a persistent model bound to one named collection of a Service.
type Model[D, T any] struct {
	binding Binding[D, T]
	opts    options

	once      sync.Once
	coll      Collection[T] // set before connected is closed
	connected chan struct{}
	hooked    chan struct{}
	hookErr   error
}

// NewModel creates a model for svc. If svc is already ready the collection is
// bound and the connect hook has run when NewModel returns; otherwise binding
// happens in the background once svc becomes ready, unless ctx ends first.
func NewModel[D, T any](ctx context.Context, svc Service[D], b Binding[D, T], opts ...Option) *Model[D, T] {
	m := &Model[D, T]{
		binding:   b,
		opts:      newOptions(opts),
		connected: make(chan struct{}),
		hooked:    make(chan struct{}),
	}

	if svc.Connected() {
		if db, ok := svc.DB(); ok {
			m.connect(ctx, db)
			return m
		}
	}

	go m.await(ctx, svc)
	return m
}

func (m *Model[D, T]) await(ctx context.Context, svc Service[D]) {
	select {
	case <-svc.Ready():
		if db, ok := svc.DB(); ok {
			m.connect(ctx, db)
		}
	case <-ctx.Done():
		m.opts.log.Debugw("model never connected", "collection", m.binding.Name, "error", ctx.Err())
	}
}

func (m *Model[D, T]) connect(ctx context.Context, db D) {
	m.once.Do(func() {
		m.coll = m.binding.Open(db, m.binding.Name)
		close(m.connected)

		if m.binding.OnConnect != nil {
			m.hookErr = m.binding.OnConnect(ctx, db, m.coll)
			if m.hookErr != nil {
				m.opts.log.Errorw("model connect hook failed", "collection", m.binding.Name, "error", m.hookErr)
			}
		}
		close(m.hooked)
		m.opts.log.Debugw("model connected", "collection", m.binding.Name)
	})
}

// Name returns the configured collection name.
func (m *Model[D, T]) Name() string {
	return m.binding.Name
}

// Connected reports whether the collection is bound.
func (m *Model[D, T]) Connected() bool {
	select {
	case <-m.connected:
		return true
	default:
		return false
	}
}

// Collection returns the bound collection, or ErrNotConnected before binding.
// The returned handle is the same for the lifetime of the model.
func (m *Model[D, T]) Collection() (Collection[T], error) {
	if !m.Connected() {
		return nil, ErrNotConnected
	}
	return m.coll, nil
}

// WaitConnected blocks until the model is bound and its connect hook has run.
// It returns the hook's error, or ctx's error if ctx ends first.
func (m *Model[D, T]) WaitConnected(ctx context.Context) error {
	select {
	case <-m.hooked:
		return m.hookErr
	case <-ctx.Done():
		return ctx.Err()
	}
}

// BulkImport writes ops to the model's collection in chunks of partitionSize.
// See the package BulkImport for the pipeline semantics.
func (m *Model[D, T]) BulkImport(ctx context.Context, ops []T, partitionSize int) error {
	coll, err := m.Collection()
	if err != nil {
		return err
	}
	return bulkImport(ctx, coll, ops, partitionSize, m.opts)
}
