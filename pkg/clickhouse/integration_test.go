//go:build integration
// +build integration

package clickhouse

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/joho/godotenv"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	tcclickhouse "github.com/testcontainers/testcontainers-go/modules/clickhouse"

	"github.com/ava-labs/chainstate-indexer/pkg/storage"
	"github.com/ava-labs/chainstate-indexer/pkg/utils"
)

var testConfig Config

// loadTestEnv loads the .env.test file from the clickhouse directory
func loadTestEnv() error {
	_, currentFile, _, ok := runtime.Caller(0)
	if !ok {
		return nil
	}
	return godotenv.Load(filepath.Join(filepath.Dir(currentFile), ".env.test"))
}

// TestMain points the tests at CLICKHOUSE_HOSTS when set, otherwise at a
// throwaway ClickHouse container.
func TestMain(m *testing.M) {
	ctx := context.Background()

	if err := loadTestEnv(); err != nil {
		log.Printf("integration: could not load .env.test file: %v (using defaults)", err)
	}

	cfg, err := Load()
	if err != nil {
		log.Fatalf("integration: %v", err)
	}
	cfg.DialTimeout = 5

	var container *tcclickhouse.ClickHouseContainer
	if os.Getenv("CLICKHOUSE_HOSTS") == "" {
		container, err = tcclickhouse.Run(ctx,
			"clickhouse/clickhouse-server:24.3-alpine",
			tcclickhouse.WithUsername("default"),
			tcclickhouse.WithPassword("password"),
			tcclickhouse.WithDatabase("default"),
		)
		if err != nil {
			log.Fatalf("integration: failed to start clickhouse container: %v", err)
		}
		host, err := container.ConnectionHost(ctx)
		if err != nil {
			log.Fatalf("integration: failed to resolve clickhouse host: %v", err)
		}
		cfg.Hosts = []string{host}
		cfg.Username = "default"
		cfg.Password = "password"
	}
	testConfig = cfg

	code := m.Run()

	if container != nil {
		if err := testcontainers.TerminateContainer(container); err != nil {
			log.Printf("integration: failed to terminate clickhouse container: %v", err)
		}
	}
	os.Exit(code)
}

type integrationRow struct {
	Number uint64
	Hash   string
}

func (r integrationRow) Values() []any {
	return []any{r.Number, r.Hash}
}

func TestIntegration_ModelBulkImport(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	sugar, err := utils.NewSugaredLogger(true)
	require.NoError(t, err)

	connector := NewConnector(testConfig, storage.ConnectorConfig{BaseDelay: 100 * time.Millisecond}, sugar)
	defer connector.Close()

	model := storage.NewModel(ctx, connector, storage.Binding[Client, integrationRow]{
		Name:      "integration_rows",
		Open:      OpenTable[integrationRow]("number", "hash"),
		OnConnect: CreateTable[integrationRow]("CREATE TABLE IF NOT EXISTS %s (number UInt64, hash String) ENGINE = MergeTree ORDER BY number"),
	}, storage.WithLogger(sugar))
	connector.Start(ctx)

	require.NoError(t, model.WaitConnected(ctx))

	rows := make([]integrationRow, 250)
	for i := range rows {
		rows[i] = integrationRow{Number: uint64(i), Hash: "0x00"}
	}
	require.NoError(t, model.BulkImport(ctx, rows, 100))

	db, ok := connector.DB()
	require.True(t, ok)
	var count uint64
	require.NoError(t, db.Conn().QueryRow(ctx, "SELECT count() FROM integration_rows").Scan(&count))
	assert.Equal(t, uint64(250), count)

	require.NoError(t, db.Conn().Exec(ctx, "DROP TABLE integration_rows"))
}
