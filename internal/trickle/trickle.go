// Package trickle replays a recorded 978 MHz capture at its original
// pace. Each line carries the timestamp it was received at; the feeder
// reproduces the gaps between lines so a downstream decoder and curator
// see the stream exactly as it unfolded. Before the first line goes out
// it publishes a sync file pinning the virtual clock, giving the
// curator the same sense of "now" the recording had.
package trickle

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb/clock"
	"github.com/fisb-tools/fisb978/internal/fisb/l0frames"
)

// Config tunes a replay.
type Config struct {
	// SyncFile is where the virtual clock gets published. Empty skips
	// publication.
	SyncFile string
	// InitialDelay backdates the virtual clock this far before the
	// first message so the consumer has time to come up.
	InitialDelay time.Duration
}

// Feeder paces capture lines onto a writer.
type Feeder struct {
	cfg Config

	now   func() time.Time
	sleep func(ctx context.Context, d time.Duration) error
}

// New builds a feeder. A zero InitialDelay defaults to 5 seconds.
func New(cfg Config) *Feeder {
	if cfg.InitialDelay <= 0 {
		cfg.InitialDelay = 5 * time.Second
	}
	return &Feeder{
		cfg: cfg,
		now: func() time.Time { return time.Now().UTC() },
		sleep: func(ctx context.Context, d time.Duration) error {
			t := time.NewTimer(d)
			defer t.Stop()
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-t.C:
				return nil
			}
		},
	}
}

// Run copies capture lines from r to w at the original message pace.
// Comments, blank lines, and lines that do not parse are skipped. The
// sync file is removed on the way out, even when the replay is cut
// short.
func (f *Feeder) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	var (
		started      bool
		wallStart    time.Time
		virtualStart time.Time
		fed          int
	)

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		_, rcvd, err := l0frames.ParseLine(line)
		if err != nil {
			Diagf("skipping unparseable line: %v", err)
			continue
		}

		if !started {
			wallStart = f.now()
			virtualStart = rcvd.Add(-f.cfg.InitialDelay)
			if f.cfg.SyncFile != "" {
				if err := clock.WriteSyncFile(f.cfg.SyncFile, virtualStart); err != nil {
					return fmt.Errorf("publish sync file: %w", err)
				}
				defer os.Remove(f.cfg.SyncFile)
				Opsf("replay pinned to %s via %s",
					virtualStart.Format(time.RFC3339), f.cfg.SyncFile)
			}
			started = true
		}

		target := wallStart.Add(rcvd.Sub(virtualStart))
		if d := target.Sub(f.now()); d > 0 {
			if err := f.sleep(ctx, d); err != nil {
				return err
			}
		}
		if _, err := io.WriteString(w, line+"\n"); err != nil {
			return err
		}
		fed++
	}
	if err := sc.Err(); err != nil {
		return err
	}
	Opsf("replay finished, %d messages fed", fed)
	return nil
}
