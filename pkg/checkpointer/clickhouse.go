package checkpointer

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/clickhouse"
)

const (
	createTableQuery = `CREATE TABLE IF NOT EXISTS %s (
	chain LowCardinality(String),
	network LowCardinality(String),
	next_block UInt64,
	timestamp Int64
) ENGINE = ReplacingMergeTree(timestamp)
ORDER BY (chain, network)`

	writeQuery = `INSERT INTO %s (chain, network, next_block, timestamp) VALUES (?, ?, ?, ?)`

	readQuery = `SELECT next_block FROM %s FINAL WHERE chain = ? AND network = ? LIMIT 1`
)

// ClickHouse stores one checkpoint row per network. ReplacingMergeTree keeps
// the row with the latest timestamp.
type ClickHouse struct {
	client clickhouse.Client
	table  string
	now    func() time.Time
}

var _ Checkpointer = (*ClickHouse)(nil)

// NewClickHouse returns a ClickHouse checkpointer writing to table.
func NewClickHouse(client clickhouse.Client, table string) *ClickHouse {
	return &ClickHouse{client: client, table: table, now: time.Now}
}

// Initialize creates the checkpoints table if it does not exist.
func (c *ClickHouse) Initialize(ctx context.Context) error {
	if err := c.client.Conn().Exec(ctx, fmt.Sprintf(createTableQuery, c.table)); err != nil {
		return fmt.Errorf("failed to create checkpoints table: %w", err)
	}
	return nil
}

// Write persists next with the current Unix timestamp in nanoseconds, so two
// writes within a second still replace in order.
func (c *ClickHouse) Write(ctx context.Context, n chainstate.Network, next uint64) error {
	err := c.client.Conn().Exec(ctx, fmt.Sprintf(writeQuery, c.table),
		n.Chain, n.Name, next, c.now().UnixNano())
	if err != nil {
		return fmt.Errorf("failed to write checkpoint: %w", err)
	}
	return nil
}

// Read retrieves the checkpoint of n.
func (c *ClickHouse) Read(ctx context.Context, n chainstate.Network) (uint64, bool, error) {
	var next uint64
	err := c.client.Conn().
		QueryRow(ctx, fmt.Sprintf(readQuery, c.table), n.Chain, n.Name).
		Scan(&next)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, false, nil
		}
		return 0, false, fmt.Errorf("failed to read checkpoint: %w", err)
	}
	return next, true, nil
}
