package chainstate

import (
	"context"
	"math/big"

	"github.com/ava-labs/chainstate-indexer/pkg/coalesce"
)

// CoalesceOption configures NewCoalesced.
type CoalesceOption func(*coalesceConfig)

type coalesceConfig struct {
	scope string
}

// WithScope overrides the identifier prefix, which defaults to the inner
// provider's network. Providers sharing a cache must use distinct scopes
// unless they are interchangeable.
func WithScope(scope string) CoalesceOption {
	return func(c *coalesceConfig) {
		c.scope = scope
	}
}

type coalesced struct {
	inner Provider

	getBalance           func(context.Context, string) (*big.Int, error)
	getTransactionCount  func(context.Context, string) (uint64, error)
	getLatestBlockNumber func(context.Context) (uint64, error)
	getBlock             func(context.Context, uint64) (*Block, error)
	getFee               func(context.Context) (*big.Int, error)
}

// NewCoalesced returns a Provider whose reads are shared between concurrent
// callers passing the same arguments. Each method is coalesced under the
// identifier "<scope>.<Method>".
//
// Callers sharing a GetBlock result receive the same *Block and must not
// modify it. Big integer results are copied per caller.
func NewCoalesced(inner Provider, cache *coalesce.Cache, opts ...CoalesceOption) Provider {
	cfg := coalesceConfig{scope: inner.Network().String()}
	for _, opt := range opts {
		opt(&cfg)
	}
	id := func(method string) string {
		return cfg.scope + "." + method
	}

	return &coalesced{
		inner:                inner,
		getBalance:           coalesce.Wrap1(cache, id("GetBalance"), inner.GetBalance),
		getTransactionCount:  coalesce.Wrap1(cache, id("GetTransactionCount"), inner.GetTransactionCount),
		getLatestBlockNumber: coalesce.Wrap0(cache, id("GetLatestBlockNumber"), inner.GetLatestBlockNumber),
		getBlock:             coalesce.Wrap1(cache, id("GetBlock"), inner.GetBlock),
		getFee:               coalesce.Wrap0(cache, id("GetFee"), inner.GetFee),
	}
}

func (c *coalesced) Network() Network {
	return c.inner.Network()
}

func copyBig(v *big.Int, err error) (*big.Int, error) {
	if err != nil || v == nil {
		return v, err
	}
	return new(big.Int).Set(v), nil
}

func (c *coalesced) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	return copyBig(c.getBalance(ctx, address))
}

func (c *coalesced) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	return c.getTransactionCount(ctx, address)
}

func (c *coalesced) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	return c.getLatestBlockNumber(ctx)
}

func (c *coalesced) GetBlock(ctx context.Context, number uint64) (*Block, error) {
	return c.getBlock(ctx, number)
}

func (c *coalesced) GetFee(ctx context.Context) (*big.Int, error) {
	return copyBig(c.getFee(ctx))
}
