// Package chainstate reads chain state from EVM JSON-RPC endpoints.
//
// Provider is the capability every chain backend exposes. RPCProvider talks to
// a node directly; NewCoalesced decorates any Provider so that concurrent
// identical reads share one upstream request.
package chainstate
