package clickhouse

import (
	"context"
	"fmt"
	"strings"

	"github.com/ava-labs/chainstate-indexer/pkg/storage"
)

// Row is a value insertable into a ClickHouse table, one value per column in
// the order given to OpenTable.
type Row interface {
	Values() []any
}

// Table is a storage.Collection backed by a ClickHouse table. Each BulkWrite
// is one native batch insert.
type Table[T Row] struct {
	conn    Client
	name    string
	columns []string
}

var _ storage.Collection[Row] = (*Table[Row])(nil)

// OpenTable returns a storage.OpenFunc binding a model to the named table.
func OpenTable[T Row](columns ...string) storage.OpenFunc[Client, T] {
	return func(c Client, name string) storage.Collection[T] {
		return &Table[T]{conn: c, name: name, columns: columns}
	}
}

func (t *Table[T]) Name() string {
	return t.name
}

func (t *Table[T]) insertQuery() string {
	if len(t.columns) == 0 {
		return "INSERT INTO " + t.name
	}
	return fmt.Sprintf("INSERT INTO %s (%s)", t.name, strings.Join(t.columns, ", "))
}

// BulkWrite inserts rows as a single batch. The batch is aborted if any row
// fails to append, so a chunk is either sent whole or not at all.
func (t *Table[T]) BulkWrite(ctx context.Context, rows []T) error {
	batch, err := t.conn.Conn().PrepareBatch(ctx, t.insertQuery())
	if err != nil {
		return fmt.Errorf("failed to prepare batch for %s: %w", t.name, err)
	}

	for i, row := range rows {
		if err := batch.Append(row.Values()...); err != nil {
			_ = batch.Abort()
			return fmt.Errorf("failed to append row %d to %s: %w", i, t.name, err)
		}
	}

	if err := batch.Send(); err != nil {
		return fmt.Errorf("failed to send batch to %s: %w", t.name, err)
	}
	return nil
}

// CreateTable returns a storage.ConnectHook running ddl against the bound
// table. ddl must contain a single %s verb for the table name.
func CreateTable[T Row](ddl string) storage.ConnectHook[Client, T] {
	return func(ctx context.Context, c Client, coll storage.Collection[T]) error {
		if err := c.Conn().Exec(ctx, fmt.Sprintf(ddl, coll.Name())); err != nil {
			return fmt.Errorf("failed to create table %s: %w", coll.Name(), err)
		}
		return nil
	}
}
