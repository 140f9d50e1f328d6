package main

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
)

func main() {
	if err := newApp().Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "chainstate",
		Usage: "Index blockchain state into ClickHouse and Redis",
		Commands: []*cli.Command{
			{
				Name:   "backfill",
				Usage:  "Fetch a block range from the RPC endpoint and import it",
				Flags:  backfillFlags(),
				Action: backfill,
			},
			{
				Name:   "consume",
				Usage:  "Import blocks consumed from Kafka",
				Flags:  consumeFlags(),
				Action: consume,
			},
			{
				Name:   "fetch",
				Usage:  "Fetch a block range from the RPC endpoint and publish it to Kafka",
				Flags:  fetchFlags(),
				Action: fetch,
			},
			{
				Name:      "balance",
				Usage:     "Print the balance of an address, served from the result cache when present",
				ArgsUsage: "<address>",
				Flags:     balanceFlags(),
				Action:    balance,
			},
		},
	}
}
