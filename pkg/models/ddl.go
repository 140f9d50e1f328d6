package models

// Table DDL. Each statement takes the table name as its only %s verb.
// ReplacingMergeTree collapses rows re-imported by overlapping backfills.
const (
	BlocksDDL = `CREATE TABLE IF NOT EXISTS %s (
	chain LowCardinality(String),
	network LowCardinality(String),
	block_number UInt64,
	hash FixedString(32),
	parent_hash FixedString(32),
	block_time DateTime64(3, 'UTC'),
	miner FixedString(20),
	gas_limit UInt64,
	gas_used UInt64,
	base_fee_per_gas UInt256,
	tx_count UInt32
) ENGINE = ReplacingMergeTree
ORDER BY (chain, network, block_number)`

	TransactionsDDL = `CREATE TABLE IF NOT EXISTS %s (
	chain LowCardinality(String),
	network LowCardinality(String),
	block_number UInt64,
	block_time DateTime64(3, 'UTC'),
	hash FixedString(32),
	transaction_index UInt32,
	from_address FixedString(20),
	to_address Nullable(FixedString(20)),
	nonce UInt64,
	value UInt256,
	gas UInt64,
	gas_price UInt256,
	input String
) ENGINE = ReplacingMergeTree
ORDER BY (chain, network, block_number, transaction_index)`
)
