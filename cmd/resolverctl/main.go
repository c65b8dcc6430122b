// Command resolverctl is the §6.3 control surface: submit-fulfill,
// get-order, get-stats, health. It mirrors cmd/lncli's urfave/cli
// structure (a single app, one subcommand per RPC) but dispatches
// in-process against the store.Store file directly rather than over a
// gRPC connection — see control.Controller's doc comment for why.
package main

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/urfave/cli"

	"github.com/breez/swapresolver/config"
	"github.com/breez/swapresolver/control"
	"github.com/breez/swapresolver/store"
)

func fatal(err error) {
	fmt.Fprintf(os.Stderr, "[resolverctl] %v\n", err)
	os.Exit(1)
}

func main() {
	app := cli.NewApp()
	app.Name = "resolverctl"
	app.Usage = "control plane for resolverd"
	app.Flags = []cli.Flag{
		cli.StringFlag{
			Name:  "datadir",
			Value: config.DefaultConfig().DataDir,
			Usage: "resolverd's data directory (where resolver.db lives)",
		},
	}
	app.Commands = []cli.Command{
		getOrderCommand,
		getStatsCommand,
		healthCommand,
		submitFulfillCommand,
	}

	if err := app.Run(os.Args); err != nil {
		fatal(err)
	}
}

func openReadOnly(ctx *cli.Context) *store.Store {
	dbPath := filepath.Join(ctx.GlobalString("datadir"), "resolver.db")
	s, err := store.OpenReadOnly(dbPath)
	if err != nil {
		fatal(fmt.Errorf("opening %s: %w", dbPath, err))
	}
	return s
}

var getOrderCommand = cli.Command{
	Name:      "get-order",
	Usage:     "look up a single order by its hex-encoded order hash",
	ArgsUsage: "order-hash",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.ShowCommandHelp(ctx, "get-order")
		}
		orderHash, err := control.ParseOrderHash(ctx.Args().First())
		if err != nil {
			return err
		}

		s := openReadOnly(ctx)
		defer s.Close()

		c := control.New(s, nil)
		order, err := c.GetOrder(orderHash)
		if err != nil {
			return err
		}
		return printJSON(order)
	},
}

var getStatsCommand = cli.Command{
	Name:  "get-stats",
	Usage: "summarize the pending order table",
	Action: func(ctx *cli.Context) error {
		s := openReadOnly(ctx)
		defer s.Close()

		c := control.New(s, nil)
		stats, err := c.GetStats()
		if err != nil {
			return err
		}
		return printJSON(stats)
	},
}

var healthCommand = cli.Command{
	Name:  "health",
	Usage: "report chain adapter health (requires an embedded, live daemon)",
	Action: func(ctx *cli.Context) error {
		return fmt.Errorf("health() requires running inside resolverd's own " +
			"process; this standalone resolverctl binary has no live " +
			"Supervisor to query, only resolver.db file access")
	},
}

var submitFulfillCommand = cli.Command{
	Name:      "submit-fulfill",
	Usage:     "manually supply a revealed secret for an order",
	ArgsUsage: "order-hash secret-hex",
	Action: func(ctx *cli.Context) error {
		if ctx.NArg() != 2 {
			return cli.ShowCommandHelp(ctx, "submit-fulfill")
		}

		orderHash, err := control.ParseOrderHash(ctx.Args().Get(0))
		if err != nil {
			return err
		}
		secretBytes, err := hex.DecodeString(ctx.Args().Get(1))
		if err != nil || len(secretBytes) != 32 {
			return fmt.Errorf("secret must be 32 bytes hex-encoded")
		}
		var secret [32]byte
		copy(secret[:], secretBytes)

		dbPath := filepath.Join(ctx.GlobalString("datadir"), "resolver.db")
		s, err := store.Open(dbPath)
		if err != nil {
			return fmt.Errorf("opening %s for write: %w", dbPath, err)
		}
		defer s.Close()

		c := control.New(s, nil)
		if err := c.SubmitFulfill(orderHash, secret); err != nil {
			return err
		}
		fmt.Println("secret recorded; a running resolverd will propagate it on its next reconciliation pass")
		return nil
	},
}

func printJSON(v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(b))
	return nil
}
