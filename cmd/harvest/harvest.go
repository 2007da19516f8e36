// Command harvest curates decoded FIS-B products: it drains the decode
// spool into sqlite, expires lapsed messages, reconciles current report
// lists, assembles images, and resolves locations. The run command is
// the long-lived daemon; dump-vectors and expire-sweep are one-shot
// tools against the same database.
package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/fisb-tools/fisb978/internal/config"
	"github.com/fisb-tools/fisb978/internal/fisb/clock"
	"github.com/fisb-tools/fisb978/internal/harvest"
	"github.com/fisb-tools/fisb978/internal/harvest/imagery"
	"github.com/fisb-tools/fisb978/internal/harvest/location"
	"github.com/fisb-tools/fisb978/internal/harvest/replay"
	"github.com/fisb-tools/fisb978/internal/harvest/store"
	"github.com/fisb-tools/fisb978/internal/harvest/vectors"
	"github.com/fisb-tools/fisb978/internal/version"
)

func main() {
	app := &cli.App{
		Name:    "harvest",
		Version: version.Version,
		Usage:   "curate decoded FIS-B products into sqlite",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "harvest configuration JSON `FILE`",
			},
			&cli.StringFlag{
				Name:  "db",
				Usage: "override the sqlite database `PATH`",
			},
			&cli.BoolFlag{
				Name:  "verbose",
				Usage: "log diagnostics to stderr",
			},
		},
		Commands: []*cli.Command{
			{
				Name:  "run",
				Usage: "curate the spool until interrupted",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "spool",
						Usage: "override the spool `DIR`",
					},
					&cli.IntFlag{
						Name:  "test",
						Usage: "replay test group `N` with trigger dumps",
					},
					&cli.StringFlag{
						Name:  "debug-addr",
						Usage: "serve the SQL console and backups on `ADDR`",
					},
				},
				Action: runCurator,
			},
			{
				Name:  "dump-vectors",
				Usage: "write WKT CSVs of the vector products on hand",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "out",
						Value: ".",
						Usage: "output `DIR`",
					},
				},
				Action: runDumpVectors,
			},
			{
				Name:   "expire-sweep",
				Usage:  "expire lapsed messages once and exit",
				Action: runExpireSweep,
			},
		},
	}
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func loadConfig(c *cli.Context) (*config.HarvestConfig, error) {
	cfg := config.EmptyHarvestConfig()
	if path := c.String("config"); path != "" {
		var err error
		if cfg, err = config.LoadHarvestConfig(path); err != nil {
			return nil, err
		}
	}
	if db := c.String("db"); db != "" {
		cfg.DBPath = &db
	}
	return cfg, nil
}

func openStore(cfg *config.HarvestConfig) (*store.Store, error) {
	st, err := store.Open(cfg.GetDBPath())
	if err == nil {
		return st, nil
	}
	// A fresh boot can beat the filesystem holding the database; try
	// once more after the configured delay.
	harvest.Opsf("open %s: %v, retrying in %s", cfg.GetDBPath(), err, cfg.GetRetryDBConn())
	time.Sleep(cfg.GetRetryDBConn())
	return store.Open(cfg.GetDBPath())
}

func runCurator(c *cli.Context) error {
	setupHarvestLogs(c.Bool("verbose"))
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	if dir := c.String("spool"); dir != "" {
		cfg.SpoolDir = &dir
	}

	st, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer st.Close()

	clk, err := pickClock(cfg, c.Int("test") > 0)
	if err != nil {
		return err
	}

	var img *imagery.Manager
	if cfg.GetProcessImages() {
		img, err = imagery.NewManager(imagery.Config{
			Dir:         cfg.GetImageDir(),
			QuietPeriod: cfg.GetImageQuietSeconds(),
			Smooth:      cfg.GetSmoothImages(),
			Palettes: imagery.PaletteOptions{
				MapConfiguration: cfg.GetImageMapConfiguration(),
				RadarMap:         cfg.GetRadarMap(),
				CloudTopMap:      cfg.GetCloudTopMap(),
				NotIncluded:      cfg.GetNotIncludedColor(),
			},
		}, st)
		if err != nil {
			return err
		}
		defer img.Close()
	}

	var loc *location.DB
	if path := cfg.GetLocationDB(); path != "" {
		if loc, err = location.LoadFile(path); err != nil {
			return err
		}
	}

	cur := harvest.New(cfg, st, img, loc, clk)
	if tg := c.Int("test"); tg > 0 {
		runner, err := buildRunner(cfg, st, img, tg)
		if err != nil {
			return err
		}
		cur.AfterSweep = func(now time.Time) (bool, error) {
			_, err := runner.Check(now)
			return runner.Done(), err
		}
	}

	if addr := c.String("debug-addr"); addr != "" {
		mux := http.NewServeMux()
		if err := st.AttachAdminRoutes(mux); err != nil {
			return err
		}
		go func() {
			if err := http.ListenAndServe(addr, mux); err != nil {
				harvest.Opsf("debug server: %v", err)
			}
		}()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	if err := cur.Run(ctx); err != nil && err != context.Canceled {
		return err
	}
	return nil
}

// pickClock returns the virtual clock pinned by the sync file when one
// is configured, waiting for it in test mode since trickle publishes it
// only once the replay starts.
func pickClock(cfg *config.HarvestConfig, waitForSync bool) (clock.Clock, error) {
	path := cfg.GetSyncFile()
	if path == "" {
		return clock.System{}, nil
	}
	if waitForSync {
		harvest.Opsf("waiting for sync file %s", path)
		for {
			if _, err := os.Stat(path); err == nil {
				break
			}
			time.Sleep(250 * time.Millisecond)
		}
	} else if _, err := os.Stat(path); err != nil {
		return clock.System{}, nil
	}
	return clock.LoadSyncFile(path)
}

// buildRunner assembles the trigger runner for one test group.
func buildRunner(cfg *config.HarvestConfig, st *store.Store, img *imagery.Manager, tg int) (*replay.Runner, error) {
	start, err := replay.LoadStartDate(cfg.GetTGStartDates(), tg)
	if err != nil {
		return nil, err
	}
	triggers, err := replay.LoadTriggers(
		filepath.Join(cfg.GetTGTriggerDir(), fmt.Sprintf("tg%02d.csv", tg)))
	if err != nil {
		return nil, err
	}
	resultDir := filepath.Join(cfg.GetTGDir(), "results", fmt.Sprintf("tg%02d", tg))
	var reporter replay.ImageReporter
	imageDir := ""
	if img != nil {
		reporter = img
		imageDir = cfg.GetImageDir()
	}
	return replay.NewRunner(st, reporter, start, triggers, resultDir, imageDir), nil
}

func runDumpVectors(c *cli.Context) error {
	setupHarvestLogs(c.Bool("verbose"))
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.GetDBPath())
	if err != nil {
		return err
	}
	defer st.Close()
	return vectors.Dump(st, c.String("out"))
}

func runExpireSweep(c *cli.Context) error {
	setupHarvestLogs(c.Bool("verbose"))
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	st, err := store.Open(cfg.GetDBPath())
	if err != nil {
		return err
	}
	defer st.Close()

	keys, err := st.DeleteExpired(time.Now().UTC())
	if err != nil {
		return err
	}
	fmt.Printf("expired %d messages\n", len(keys))
	return nil
}

// setupHarvestLogs routes ops output to stderr, plus diagnostics when
// verbose.
func setupHarvestLogs(verbose bool) {
	var diag io.Writer
	if verbose {
		diag = os.Stderr
	}
	w := struct{ Ops, Diag, Trace io.Writer }{Ops: os.Stderr, Diag: diag}
	harvest.SetLogWriters(harvest.LogWriters(w))
	store.SetLogWriters(store.LogWriters(w))
	imagery.SetLogWriters(imagery.LogWriters(w))
	location.SetLogWriters(location.LogWriters(w))
	vectors.SetLogWriters(vectors.LogWriters(w))
	replay.SetLogWriters(replay.LogWriters(w))
}
