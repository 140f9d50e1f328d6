package indexer

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/checkpointer"
	"github.com/ava-labs/chainstate-indexer/pkg/kafka/message"
	"github.com/ava-labs/chainstate-indexer/pkg/models"
)

var (
	ErrInvalidLogger        = errors.New("invalid logger: must not be nil")
	ErrInvalidProvider      = errors.New("invalid provider: must not be nil")
	ErrInvalidSink          = errors.New("invalid sink: blocks and transactions must not be nil")
	ErrInvalidPartitionSize = errors.New("invalid partition size: must be greater than 0")
	ErrInvalidConcurrency   = errors.New("invalid concurrency: must be greater than 0")
	ErrInvalidRange         = errors.New("invalid block range: from must not exceed to")
)

// Sink is a bulk-importable model. *storage.Model satisfies it.
type Sink[T any] interface {
	Name() string
	BulkImport(ctx context.Context, ops []T, partitionSize int) error
}

// Config controls batching and fan-out.
type Config struct {
	PartitionSize      int    // rows per bulk-write request
	WindowSize         uint64 // blocks fetched and imported together by Backfill
	FetchConcurrency   int    // concurrent block fetches
	BalanceConcurrency int64  // concurrent balance reads for snapshots
}

// Indexer turns blocks into rows and bulk imports them. When a balance sink
// is set it also snapshots the balances of the addresses each batch touches.
type Indexer struct {
	sugar        *zap.SugaredLogger
	provider     chainstate.Provider
	blocks       Sink[models.BlockRow]
	transactions Sink[models.TransactionRow]
	balances     Sink[models.CacheEntry] // nil disables balance snapshots
	cfg          Config

	checkpoints   checkpointer.Checkpointer // nil disables backfill checkpoints
	checkpointCfg checkpointer.Config
}

// Option configures an Indexer.
type Option func(*Indexer)

// WithCheckpointer makes Backfill record the next block to import after every
// window.
func WithCheckpointer(cp checkpointer.Checkpointer, cfg checkpointer.Config) Option {
	return func(ix *Indexer) {
		ix.checkpoints = cp
		ix.checkpointCfg = cfg
	}
}

// New validates its arguments and returns an Indexer. provider may be nil
// when the indexer only imports blocks it is handed (Kafka ingest without
// balance snapshots).
func New(
	sugar *zap.SugaredLogger,
	provider chainstate.Provider,
	blocks Sink[models.BlockRow],
	transactions Sink[models.TransactionRow],
	balances Sink[models.CacheEntry],
	cfg Config,
	opts ...Option,
) (*Indexer, error) {
	if sugar == nil {
		return nil, ErrInvalidLogger
	}
	if blocks == nil || transactions == nil {
		return nil, ErrInvalidSink
	}
	if balances != nil && provider == nil {
		return nil, ErrInvalidProvider
	}
	if cfg.PartitionSize <= 0 {
		return nil, ErrInvalidPartitionSize
	}
	if cfg.FetchConcurrency <= 0 || cfg.BalanceConcurrency <= 0 {
		return nil, ErrInvalidConcurrency
	}
	if cfg.WindowSize == 0 {
		cfg.WindowSize = uint64(cfg.PartitionSize)
	}

	ix := &Indexer{
		sugar:        sugar,
		provider:     provider,
		blocks:       blocks,
		transactions: transactions,
		balances:     balances,
		cfg:          cfg,
	}
	for _, opt := range opts {
		opt(ix)
	}
	return ix, nil
}

// Process imports a batch of consumed block messages.
func (ix *Indexer) Process(ctx context.Context, batch []*message.BlockMessage) error {
	blocks := make([]NetworkBlock, 0, len(batch))
	for _, m := range batch {
		blocks = append(blocks, NetworkBlock{Network: m.Network, Block: m.Block})
	}
	return ix.Import(ctx, blocks)
}

// NetworkBlock is a block tagged with the network it belongs to.
type NetworkBlock struct {
	Network chainstate.Network
	Block   *chainstate.Block
}

// Import converts blocks to rows and imports blocks then transactions. A
// block that fails to convert aborts the import before anything is written.
func (ix *Indexer) Import(ctx context.Context, blocks []NetworkBlock) error {
	if len(blocks) == 0 {
		return nil
	}

	blockRows := make([]models.BlockRow, 0, len(blocks))
	var txRows []models.TransactionRow
	for _, nb := range blocks {
		br, txs, err := models.FromBlock(nb.Network, nb.Block)
		if err != nil {
			return err
		}
		blockRows = append(blockRows, br)
		txRows = append(txRows, txs...)
	}

	if err := ix.blocks.BulkImport(ctx, blockRows, ix.cfg.PartitionSize); err != nil {
		return fmt.Errorf("import %s: %w", ix.blocks.Name(), err)
	}
	if err := ix.transactions.BulkImport(ctx, txRows, ix.cfg.PartitionSize); err != nil {
		return fmt.Errorf("import %s: %w", ix.transactions.Name(), err)
	}

	if ix.balances != nil {
		if err := ix.snapshotBalances(ctx, blocks); err != nil {
			return err
		}
	}

	ix.sugar.Debugw("imported blocks",
		"blocks", len(blockRows),
		"transactions", len(txRows),
		"first", blocks[0].Block.Number,
		"last", blocks[len(blocks)-1].Block.Number,
	)
	return nil
}

// Backfill fetches [from, to] through the provider and imports it one window
// at a time. to == 0 means the latest block. Windows are imported in order and
// the first failure stops the backfill. With a checkpointer, the block after
// each imported window is saved as the network's checkpoint.
func (ix *Indexer) Backfill(ctx context.Context, from, to uint64) error {
	if ix.provider == nil {
		return ErrInvalidProvider
	}
	if to == 0 {
		latest, err := ix.provider.GetLatestBlockNumber(ctx)
		if err != nil {
			return fmt.Errorf("get latest block number: %w", err)
		}
		to = latest
	}
	if from > to {
		return fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, from, to)
	}

	n := ix.provider.Network()
	ix.sugar.Infow("starting backfill", "network", n.String(), "from", from, "to", to)

	for start := from; start <= to; {
		end := min(start+ix.cfg.WindowSize-1, to)

		fetched, err := FetchBlocks(ctx, ix.provider, start, end, ix.cfg.FetchConcurrency)
		if err != nil {
			return err
		}
		window := make([]NetworkBlock, len(fetched))
		for i, b := range fetched {
			window[i] = NetworkBlock{Network: n, Block: b}
		}
		if err := ix.Import(ctx, window); err != nil {
			return fmt.Errorf("import blocks [%d, %d]: %w", start, end, err)
		}
		ix.sugar.Infow("backfilled window", "network", n.String(), "from", start, "to", end)

		if ix.checkpoints != nil {
			if err := checkpointer.Save(ctx, ix.checkpoints, ix.checkpointCfg, n, end+1); err != nil {
				return err
			}
		}

		if end == to {
			break
		}
		start = end + 1
	}
	return nil
}

// Checkpoint returns the next block a previous backfill of the provider's
// network left unimported. The boolean is false without a checkpointer or
// when none was saved.
func (ix *Indexer) Checkpoint(ctx context.Context) (uint64, bool, error) {
	if ix.checkpoints == nil {
		return 0, false, nil
	}
	if ix.provider == nil {
		return 0, false, ErrInvalidProvider
	}
	return ix.checkpoints.Read(ctx, ix.provider.Network())
}

// FetchBlocks fetches [from, to] from p with at most limit requests in
// flight. Blocks are returned in number order.
func FetchBlocks(ctx context.Context, p chainstate.Provider, from, to uint64, limit int) ([]*chainstate.Block, error) {
	if from > to {
		return nil, fmt.Errorf("%w: [%d, %d]", ErrInvalidRange, from, to)
	}

	out := make([]*chainstate.Block, to-from+1)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(limit)
	for i := range out {
		number := from + uint64(i)
		g.Go(func() error {
			b, err := p.GetBlock(gctx, number)
			if err != nil {
				return fmt.Errorf("fetch block %d: %w", number, err)
			}
			out[i] = b
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// snapshotBalances reads the current balance of every address the blocks
// touch and writes it to the balance cache, tagged with the highest block
// number of its network in the batch.
func (ix *Indexer) snapshotBalances(ctx context.Context, blocks []NetworkBlock) error {
	n := ix.provider.Network()

	var (
		addresses []string
		seen      = make(map[string]struct{})
		head      uint64
	)
	for _, nb := range blocks {
		if nb.Network.String() != n.String() {
			continue
		}
		head = max(head, nb.Block.Number)
		for _, addr := range nb.Block.Addresses() {
			if _, ok := seen[addr]; ok {
				continue
			}
			seen[addr] = struct{}{}
			addresses = append(addresses, addr)
		}
	}
	if len(addresses) == 0 {
		return nil
	}

	entries := make([]models.CacheEntry, len(addresses))
	sem := semaphore.NewWeighted(ix.cfg.BalanceConcurrency)
	g, gctx := errgroup.WithContext(ctx)
	for i, addr := range addresses {
		if err := sem.Acquire(gctx, 1); err != nil {
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			bal, err := ix.provider.GetBalance(gctx, addr)
			if err != nil {
				return fmt.Errorf("get balance of %s: %w", addr, err)
			}
			entries[i] = models.NewBalanceEntry(n, addr, bal, head)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	if err := ix.balances.BulkImport(ctx, entries, ix.cfg.PartitionSize); err != nil {
		return fmt.Errorf("import %s: %w", ix.balances.Name(), err)
	}
	return nil
}
