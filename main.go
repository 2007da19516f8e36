// Command fisb decodes raw 978 MHz FIS-B uplink captures into curated
// product messages. Input comes from a capture file, standard input, a
// serial-attached receiver, or a pcap recording; decoded products go to
// the curator's spool directory or to standard output as JSON lines.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v2"

	"github.com/fisb-tools/fisb978/internal/config"
	"github.com/fisb-tools/fisb978/internal/fisb/capture"
	"github.com/fisb-tools/fisb978/internal/fisb/l0frames"
	"github.com/fisb-tools/fisb978/internal/fisb/l1assembly"
	"github.com/fisb-tools/fisb978/internal/fisb/l2products"
	"github.com/fisb-tools/fisb978/internal/fisb/l3dedup"
	"github.com/fisb-tools/fisb978/internal/fisb/pipeline"
	"github.com/fisb-tools/fisb978/internal/version"
)

func main() {
	app := &cli.App{
		Name:      "fisb",
		Version:   version.Version,
		Usage:     "decode 978 MHz FIS-B uplink captures into product messages",
		ArgsUsage: "[capture file, - for stdin]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "decode configuration JSON `FILE`",
			},
			&cli.StringFlag{
				Name:  "spool",
				Usage: "write one .msg file per product into `DIR`",
			},
			&cli.BoolFlag{
				Name:  "pp",
				Usage: "pretty print JSON output (stdout only)",
			},
			&cli.StringFlag{
				Name:  "serial",
				Usage: "read from a receiver on serial `DEVICE`",
			},
			&cli.IntFlag{
				Name:  "baud",
				Value: 2000000,
				Usage: "serial baud rate",
			},
			&cli.StringFlag{
				Name:  "pcap",
				Usage: "replay uplink payloads from pcap `FILE`",
			},
			&cli.IntFlag{
				Name:  "pcap-port",
				Value: 30978,
				Usage: "UDP port carrying capture lines in the pcap",
			},
			&cli.StringFlag{
				Name:  "error-file",
				Usage: "append per-message decode failures to `FILE`",
			},
			&cli.BoolFlag{
				Name:  "rsr",
				Usage: "emit periodic reception success rate products",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log diagnostics to stderr",
			},
		},
		Action: runDecode,
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func runDecode(c *cli.Context) error {
	setupDecodeLogs(c.Bool("verbose"))

	cfg := config.EmptyDecodeConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadDecodeConfig(path); err != nil {
			return err
		}
	}

	pcfg := pipeline.DefaultConfig()
	pcfg.Synthesis = cfg.SynthesisConfig()
	pcfg.Dedup = cfg.DedupConfig()
	pcfg.SpoolDir = cfg.GetSpoolDir()
	if dir := c.String("spool"); dir != "" {
		pcfg.SpoolDir = dir
	}
	pcfg.ErrorPath = cfg.GetErrorFile()
	if path := c.String("error-file"); path != "" {
		pcfg.ErrorPath = path
	}
	pcfg.RSR = cfg.GetRSR() || c.Bool("rsr")
	pcfg.RSRWindowSecs = cfg.GetRSRWindowSecs()
	pcfg.RSREverySecs = cfg.GetRSREverySecs()
	if pcfg.SpoolDir == "" {
		pcfg.Output = os.Stdout
		pcfg.PrettyPrint = c.Bool("pp")
	}

	src, err := openSource(c)
	if err != nil {
		return err
	}
	defer src.Close()

	p, err := pipeline.New(pcfg)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := p.Run(ctx, src); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

type closableSource interface {
	pipeline.Source
	Close() error
}

func openSource(c *cli.Context) (closableSource, error) {
	switch {
	case c.String("serial") != "":
		return capture.OpenSerial(c.String("serial"), c.Int("baud"))
	case c.String("pcap") != "":
		return capture.OpenPcap(c.String("pcap"), c.Int("pcap-port"))
	}
	path := c.Args().First()
	if path == "" || path == "-" {
		return capture.NewLineSource(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	return capture.NewLineSource(f), nil
}

// setupDecodeLogs routes ops output to stderr, plus diagnostics when
// verbose.
func setupDecodeLogs(verbose bool) {
	var diag io.Writer
	if verbose {
		diag = os.Stderr
	}
	w := struct{ Ops, Diag, Trace io.Writer }{Ops: os.Stderr, Diag: diag}
	l0frames.SetLogWriters(l0frames.LogWriters(w))
	l1assembly.SetLogWriters(l1assembly.LogWriters(w))
	l2products.SetLogWriters(l2products.LogWriters(w))
	l3dedup.SetLogWriters(l3dedup.LogWriters(w))
	pipeline.SetLogWriters(pipeline.LogWriters(w))
}
