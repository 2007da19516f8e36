// Command trickle replays a recorded 978 MHz capture at its original
// pace, publishing a sync file so a curator running in test mode shares
// the recording's clock. Output goes to stdout for piping into the
// decoder.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fisb-tools/fisb978/internal/trickle"
	"github.com/fisb-tools/fisb978/internal/version"
)

func main() {
	app := &cli.App{
		Name:      "trickle",
		Version:   version.Version,
		Usage:     "replay a capture file at its original message pace",
		ArgsUsage: "<capture file, - for stdin>",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "sync-file",
				Value: "sync.fisb",
				Usage: "publish the virtual clock to `FILE`",
			},
			&cli.DurationFlag{
				Name:  "initial-delay",
				Value: 5 * time.Second,
				Usage: "lead time granted to the consumer before the first message",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log diagnostics to stderr",
			},
		},
		Action: runTrickle,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runTrickle(c *cli.Context) error {
	var diag io.Writer
	if c.Bool("verbose") {
		diag = os.Stderr
	}
	trickle.SetLogWriters(trickle.LogWriters{Ops: os.Stderr, Diag: diag})

	in := os.Stdin
	if path := c.Args().First(); path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		in = f
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	f := trickle.New(trickle.Config{
		SyncFile:     c.String("sync-file"),
		InitialDelay: c.Duration("initial-delay"),
	})
	if err := f.Run(ctx, in, os.Stdout); err != nil && err != context.Canceled {
		return err
	}
	return nil
}
