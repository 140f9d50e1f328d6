package chainstate

import (
	"context"
	"encoding/json"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"go.uber.org/zap"

	"github.com/ava-labs/chainstate-indexer/pkg/metrics"
)

// RPCProvider is a Provider backed by an EVM JSON-RPC endpoint.
type RPCProvider struct {
	rpc     *rpc.Client
	eth     *ethclient.Client
	network Network
	log     *zap.SugaredLogger
	metrics *metrics.Metrics // nil if metrics disabled
}

var _ Provider = (*RPCProvider)(nil)

// Option configures an RPCProvider.
type Option func(*RPCProvider)

// WithLogger sets the logger.
func WithLogger(log *zap.SugaredLogger) Option {
	return func(p *RPCProvider) {
		p.log = log
	}
}

// WithMetrics enables RPC metrics.
func WithMetrics(m *metrics.Metrics) Option {
	return func(p *RPCProvider) {
		p.metrics = m
	}
}

// NewRPCProvider wraps an established RPC client.
func NewRPCProvider(c *rpc.Client, network Network, opts ...Option) *RPCProvider {
	p := &RPCProvider{
		rpc:     c,
		eth:     ethclient.NewClient(c),
		network: network,
		log:     zap.NewNop().Sugar(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// DialRPC connects to url. When network.ChainID is set, the endpoint's chain
// ID must match it.
func DialRPC(ctx context.Context, url string, network Network, opts ...Option) (*RPCProvider, error) {
	c, err := rpc.DialContext(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("failed to dial rpc: %w", err)
	}
	p := NewRPCProvider(c, network, opts...)
	if err := p.VerifyChainID(ctx); err != nil {
		c.Close()
		return nil, err
	}
	return p, nil
}

// VerifyChainID checks the endpoint's chain ID against the configured one.
func (p *RPCProvider) VerifyChainID(ctx context.Context) error {
	if p.network.ChainID == 0 {
		return nil
	}
	var id *big.Int
	err := p.observe("eth_chainId", func() (err error) {
		id, err = p.eth.ChainID(ctx)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}
	if !id.IsUint64() || id.Uint64() != p.network.ChainID {
		return fmt.Errorf("endpoint serves chain id %s, expected %d for %s", id, p.network.ChainID, p.network)
	}
	return nil
}

// Close closes the underlying RPC client.
func (p *RPCProvider) Close() {
	p.rpc.Close()
}

func (p *RPCProvider) Network() Network {
	return p.network
}

func (p *RPCProvider) observe(method string, call func() error) error {
	p.metrics.IncRPCInFlight()
	defer p.metrics.DecRPCInFlight()

	start := time.Now()
	err := call()
	p.metrics.RecordRPCCall(method, err, time.Since(start).Seconds())
	if err != nil {
		p.log.Debugw("rpc call failed", "method", method, "network", p.network.String(), "error", err)
	}
	return err
}

func parseAddress(address string) (common.Address, error) {
	if !common.IsHexAddress(address) {
		return common.Address{}, fmt.Errorf("%w: %q", ErrInvalidAddress, address)
	}
	return common.HexToAddress(address), nil
}

func (p *RPCProvider) GetBalance(ctx context.Context, address string) (*big.Int, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return nil, err
	}
	var balance *big.Int
	err = p.observe("eth_getBalance", func() (err error) {
		balance, err = p.eth.BalanceAt(ctx, addr, nil)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get balance of %s: %w", address, err)
	}
	return balance, nil
}

func (p *RPCProvider) GetTransactionCount(ctx context.Context, address string) (uint64, error) {
	addr, err := parseAddress(address)
	if err != nil {
		return 0, err
	}
	var nonce uint64
	err = p.observe("eth_getTransactionCount", func() (err error) {
		nonce, err = p.eth.NonceAt(ctx, addr, nil)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get transaction count of %s: %w", address, err)
	}
	return nonce, nil
}

func (p *RPCProvider) GetLatestBlockNumber(ctx context.Context) (uint64, error) {
	var number uint64
	err := p.observe("eth_blockNumber", func() (err error) {
		number, err = p.eth.BlockNumber(ctx)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("failed to get latest block number: %w", err)
	}
	return number, nil
}

func (p *RPCProvider) GetFee(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	err := p.observe("eth_gasPrice", func() (err error) {
		price, err = p.eth.SuggestGasPrice(ctx)
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}
	return price, nil
}

// rpcBlock decodes only the fields Block needs, so chains with extended
// headers decode without a chain-specific client.
type rpcBlock struct {
	Number       hexutil.Uint64   `json:"number"`
	Hash         common.Hash      `json:"hash"`
	ParentHash   common.Hash      `json:"parentHash"`
	Timestamp    hexutil.Uint64   `json:"timestamp"`
	Miner        common.Address   `json:"miner"`
	GasLimit     hexutil.Uint64   `json:"gasLimit"`
	GasUsed      hexutil.Uint64   `json:"gasUsed"`
	BaseFee      *hexutil.Big     `json:"baseFeePerGas"`
	Transactions []rpcTransaction `json:"transactions"`
}

type rpcTransaction struct {
	Hash     common.Hash     `json:"hash"`
	Index    hexutil.Uint64  `json:"transactionIndex"`
	From     common.Address  `json:"from"`
	To       *common.Address `json:"to"`
	Nonce    hexutil.Uint64  `json:"nonce"`
	Value    *hexutil.Big    `json:"value"`
	Gas      hexutil.Uint64  `json:"gas"`
	GasPrice *hexutil.Big    `json:"gasPrice"`
	Input    hexutil.Bytes   `json:"input"`
}

// GetBlock returns block number with full transactions.
func (p *RPCProvider) GetBlock(ctx context.Context, number uint64) (*Block, error) {
	var raw json.RawMessage
	err := p.observe("eth_getBlockByNumber", func() error {
		return p.rpc.CallContext(ctx, &raw, "eth_getBlockByNumber", hexutil.EncodeUint64(number), true)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get block %d: %w", number, err)
	}
	if len(raw) == 0 || string(raw) == "null" {
		return nil, fmt.Errorf("%w: %d", ErrBlockNotFound, number)
	}

	var rb rpcBlock
	if err := json.Unmarshal(raw, &rb); err != nil {
		return nil, fmt.Errorf("failed to decode block %d: %w", number, err)
	}
	return rb.toBlock(), nil
}

func bigOrNil(b *hexutil.Big) *big.Int {
	if b == nil {
		return nil
	}
	return b.ToInt()
}

func (rb *rpcBlock) toBlock() *Block {
	b := &Block{
		Number:       uint64(rb.Number),
		Hash:         rb.Hash.Hex(),
		ParentHash:   rb.ParentHash.Hex(),
		Timestamp:    uint64(rb.Timestamp),
		Miner:        rb.Miner.Hex(),
		GasLimit:     uint64(rb.GasLimit),
		GasUsed:      uint64(rb.GasUsed),
		BaseFee:      bigOrNil(rb.BaseFee),
		Transactions: make([]Transaction, 0, len(rb.Transactions)),
	}
	for _, tx := range rb.Transactions {
		t := Transaction{
			Hash:     tx.Hash.Hex(),
			Index:    uint64(tx.Index),
			From:     tx.From.Hex(),
			Nonce:    uint64(tx.Nonce),
			Value:    bigOrNil(tx.Value),
			Gas:      uint64(tx.Gas),
			GasPrice: bigOrNil(tx.GasPrice),
			Input:    tx.Input.String(),
		}
		if tx.To != nil {
			t.To = tx.To.Hex()
		}
		b.Transactions = append(b.Transactions, t)
	}
	return b
}
