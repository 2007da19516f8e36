// Package pipeline is the decode composition root: capture payloads
// run through L0 frame parsing, L1 reassembly, L2 product synthesis,
// and the L3 duplicate filter, and the surviving products land in the
// curator's spool directory or on an output stream. It imports the
// stage packages; none of them import pipeline.
package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/l0frames"
	"github.com/fisb-tools/fisb978/internal/fisb/l1assembly"
	"github.com/fisb-tools/fisb978/internal/fisb/l2products"
	"github.com/fisb-tools/fisb978/internal/fisb/l3dedup"
)

// Source yields raw uplink payloads with their receive times. Next
// returns io.EOF when the capture is exhausted.
type Source interface {
	Next(ctx context.Context) (raw []byte, rcvd time.Time, err error)
}

// Config wires the pipeline's sinks and stage policies.
type Config struct {
	// SpoolDir, when set, receives one .msg file per product.
	SpoolDir string
	// Output, when set, receives newline-delimited product JSON.
	Output io.Writer
	// PrettyPrint indents the Output JSON. Not valid with SpoolDir:
	// the curator reads one message per line.
	PrettyPrint bool
	// ErrorPath, when set, collects per-message decode failures.
	ErrorPath string

	// RSR enables periodic reception success rate products.
	RSR            bool
	RSRWindowSecs  int
	RSREverySecs   int
	RSRUseSiteRate bool

	Synthesis l2products.Config
	Dedup     l3dedup.Config
}

// DefaultConfig returns a config with stage defaults and no sinks.
func DefaultConfig() Config {
	return Config{
		RSRWindowSecs: 10,
		RSREverySecs:  10,
		Synthesis:     l2products.DefaultConfig(),
		Dedup:         l3dedup.DefaultConfig(),
	}
}

// Pipeline runs one capture stream end to end. Build one per stream;
// a Pipeline must not be shared between concurrent Runs.
type Pipeline struct {
	cfg   Config
	runID string
	spool *SpoolWriter

	errMu         sync.Mutex
	decodeErrors  atomic.Int64
	productsTotal atomic.Int64
}

// New builds a pipeline. The run id ties log lines and error-file
// entries from one invocation together.
func New(cfg Config) (*Pipeline, error) {
	if cfg.PrettyPrint && cfg.SpoolDir != "" {
		return nil, errors.New("pretty printing is not valid for spool output")
	}
	p := &Pipeline{cfg: cfg, runID: uuid.NewString()}
	if cfg.SpoolDir != "" {
		spool, err := NewSpoolWriter(cfg.SpoolDir)
		if err != nil {
			return nil, err
		}
		p.spool = spool
	}
	return p, nil
}

// Run consumes src until EOF or ctx cancellation. Per-message decode
// failures are counted and logged, never fatal; only sink failures and
// cancellation abort the run.
func (p *Pipeline) Run(ctx context.Context, src Source) error {
	Opsf("run %s starting", p.runID)

	g, ctx := errgroup.WithContext(ctx)
	packets := make(chan *fisb.Packet, 64)
	products := make(chan *fisb.Product, 256)

	g.Go(func() error {
		defer close(packets)
		return p.readStage(ctx, src, packets)
	})
	g.Go(func() error {
		defer close(products)
		return p.decodeStage(ctx, packets, products)
	})
	g.Go(func() error {
		return p.sinkStage(ctx, products)
	})

	err := g.Wait()
	Opsf("run %s done: %d products, %d decode errors",
		p.runID, p.productsTotal.Load(), p.decodeErrors.Load())
	return err
}

func (p *Pipeline) readStage(ctx context.Context, src Source, out chan<- *fisb.Packet) error {
	for {
		raw, rcvd, err := src.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logError("capture", err)
			continue
		}

		pkt, err := l0frames.DecodePacket(raw, rcvd)
		if err != nil {
			p.logError("l0", err)
			continue
		}
		select {
		case out <- pkt:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

func (p *Pipeline) decodeStage(ctx context.Context, in <-chan *fisb.Packet, out chan<- *fisb.Product) error {
	asm := l1assembly.NewAssembler()
	synth := l2products.NewSynthesizer(p.cfg.Synthesis)
	filter := l3dedup.NewFilter(p.cfg.Dedup, nil)

	var rsr *l0frames.RSRTracker
	if p.cfg.RSR {
		rsr = l0frames.NewRSRTracker(p.cfg.RSRWindowSecs, p.cfg.RSREverySecs, p.cfg.RSRUseSiteRate)
	}

	send := func(prod *fisb.Product) error {
		select {
		case out <- prod:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	for pkt := range in {
		if rsr != nil {
			rsr.Record(pkt)
			// RSR products skip L3: they change every window anyway.
			if report := rsr.Report(pkt.ReceivedTime); report != nil {
				if err := send(report); err != nil {
					return err
				}
			}
		}

		for _, msg := range asm.Process(pkt) {
			prods, err := synth.Process(msg)
			if err != nil {
				p.logError("l2", err)
				continue
			}
			for _, prod := range prods {
				if !filter.ShouldSend(prod) {
					continue
				}
				if err := send(prod); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (p *Pipeline) sinkStage(ctx context.Context, in <-chan *fisb.Product) error {
	for prod := range in {
		data, err := json.Marshal(prod)
		if err != nil {
			p.logError("encode", err)
			continue
		}
		p.productsTotal.Add(1)

		if p.spool != nil {
			if err := p.spool.Write(data, prod.ReceivedTime); err != nil {
				return fmt.Errorf("spool: %w", err)
			}
		}
		if p.cfg.Output != nil {
			if p.cfg.PrettyPrint {
				var buf bytes.Buffer
				if err := json.Indent(&buf, data, "", "  "); err == nil {
					data = buf.Bytes()
				}
			}
			if _, err := p.cfg.Output.Write(append(data, '\n')); err != nil {
				return fmt.Errorf("output: %w", err)
			}
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}
	}
	return nil
}

// logError counts a per-message failure and records it in the error
// file when one is configured.
func (p *Pipeline) logError(stage string, err error) {
	p.decodeErrors.Add(1)
	Diagf("run %s %s: %v", p.runID, stage, err)
	if p.cfg.ErrorPath == "" {
		return
	}
	entry := fmt.Sprintf("---- run %s %s %s\n# %v\n",
		p.runID, time.Now().UTC().Format(time.RFC3339), stage, err)
	p.errMu.Lock()
	defer p.errMu.Unlock()
	f, ferr := os.OpenFile(p.cfg.ErrorPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if ferr != nil {
		Opsf("error file: %v", ferr)
		return
	}
	defer f.Close()
	if _, werr := f.WriteString(entry); werr != nil {
		Opsf("error file: %v", werr)
	}
}
