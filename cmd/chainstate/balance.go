package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"

	"github.com/ava-labs/chainstate-indexer/internal/indexer"
	"github.com/ava-labs/chainstate-indexer/pkg/chainstate"
	"github.com/ava-labs/chainstate-indexer/pkg/models"
)

// balanceOutput is printed by the balance command.
type balanceOutput struct {
	Network string         `json:"network"`
	Address string         `json:"address"`
	Cached  bool           `json:"cached"`
	Balance models.Balance `json:"balance"`
}

func balance(c *cli.Context) error {
	address := c.Args().First()
	if !common.IsHexAddress(address) {
		return fmt.Errorf("invalid address %q", address)
	}

	rt, err := newRuntime(c)
	if err != nil {
		return err
	}
	defer rt.close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s, err := rt.openStores(ctx, false, true)
	if err != nil {
		return err
	}
	provider, err := rt.dialProvider(ctx)
	if err != nil {
		return err
	}

	lookup := func(ctx context.Context, n chainstate.Network, address string) (models.Balance, bool, error) {
		return models.LookupBalance(ctx, s.balances, n, address)
	}
	b, cached, err := resolveBalance(ctx, provider, lookup, s.balances, address)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(c.App.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(balanceOutput{
		Network: provider.Network().String(),
		Address: address,
		Cached:  cached,
		Balance: b,
	})
}

type balanceLookup func(ctx context.Context, n chainstate.Network, address string) (models.Balance, bool, error)

// resolveBalance serves address from the result cache. On a miss it reads the
// node and writes the result back. The boolean reports a cache hit.
func resolveBalance(
	ctx context.Context,
	provider chainstate.Provider,
	lookup balanceLookup,
	cache indexer.Sink[models.CacheEntry],
	address string,
) (models.Balance, bool, error) {
	n := provider.Network()
	if b, ok, err := lookup(ctx, n, address); err != nil {
		return models.Balance{}, false, fmt.Errorf("read %s: %w", cache.Name(), err)
	} else if ok {
		return b, true, nil
	}

	head, err := provider.GetLatestBlockNumber(ctx)
	if err != nil {
		return models.Balance{}, false, fmt.Errorf("get latest block number: %w", err)
	}
	amount, err := provider.GetBalance(ctx, address)
	if err != nil {
		return models.Balance{}, false, fmt.Errorf("get balance of %s: %w", address, err)
	}

	entry := models.NewBalanceEntry(n, address, amount, head)
	if err := cache.BulkImport(ctx, []models.CacheEntry{entry}, 1); err != nil {
		return models.Balance{}, false, fmt.Errorf("import %s: %w", cache.Name(), err)
	}
	return entry.Value.(models.Balance), false, nil
}
