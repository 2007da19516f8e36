// Package harvest is the curator: it drains the decode spool into the
// sqlite store, expires what has lapsed, keeps current report lists
// reconciled against the reports on hand, and hands image blocks to the
// imagery manager.
package harvest

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/samber/lo"

	"github.com/fisb-tools/fisb978/internal/config"
	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/fisb/clock"
	"github.com/fisb-tools/fisb978/internal/harvest/imagery"
	"github.com/fisb-tools/fisb978/internal/harvest/location"
	"github.com/fisb-tools/fisb978/internal/harvest/store"
)

// pollDelay is how long the spool scan sleeps when no files are
// waiting.
const pollDelay = 250 * time.Millisecond

// sweepBatch bounds how many spool files one sweep consumes, so
// maintenance stays on schedule during bursts.
const sweepBatch = 50

// Cancel products delete this stored type.
var cancelTargets = map[string]string{
	fisb.TypeCancelNOTAM:   fisb.TypeNOTAM,
	fisb.TypeCancelGAIRMET: fisb.TypeGAIRMET,
	fisb.TypeCancelCWA:     fisb.TypeCWA,
}

// Curator applies decoded products to the store. One goroutine drives
// it; the store serializes its own writes.
type Curator struct {
	cfg *config.HarvestConfig
	st  *store.Store
	img *imagery.Manager // nil when image processing is off
	loc *location.DB     // nil when no location database is loaded
	clk clock.Clock

	// AfterSweep, when set, runs after every spool sweep with the data
	// clock's now. Returning stop ends the run cleanly; replay uses
	// this to fire dump triggers and finish after the last one.
	AfterSweep func(now time.Time) (stop bool, err error)

	errMu sync.Mutex
}

// New assembles a curator. img and loc may be nil; a nil clk runs on
// the wall clock.
func New(cfg *config.HarvestConfig, st *store.Store, img *imagery.Manager, loc *location.DB, clk clock.Clock) *Curator {
	if clk == nil {
		clk = clock.System{}
	}
	return &Curator{cfg: cfg, st: st, img: img, loc: loc, clk: clk}
}

// Run drains the spool until ctx is cancelled. Per-message failures go
// to the error file and never abort the run.
func (c *Curator) Run(ctx context.Context) error {
	dir := c.cfg.GetSpoolDir()
	if fi, err := os.Stat(dir); err != nil || !fi.IsDir() {
		return fmt.Errorf("spool directory %q does not exist", dir)
	}
	Opsf("curating %s into %s", dir, c.cfg.GetDBPath())

	if c.img != nil {
		if err := c.img.StoreLegends(c.clk.Now()); err != nil {
			return fmt.Errorf("store legends: %w", err)
		}
	}

	// Clear anything that lapsed while we were down.
	if err := c.Maintenance(c.clk.Now()); err != nil {
		c.dumpError(fmt.Sprintf("maintenance: %v", err))
	}
	lastMaint := time.Now()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}

		// Maintenance runs on the wall-clock interval even when the
		// data clock is virtual.
		if time.Since(lastMaint) >= c.cfg.GetMaintInterval() {
			if err := c.Maintenance(c.clk.Now()); err != nil {
				c.dumpError(fmt.Sprintf("maintenance: %v", err))
			}
			lastMaint = time.Now()
		}

		n, err := c.SweepSpool()
		if err != nil {
			c.dumpError(fmt.Sprintf("spool sweep: %v", err))
		}
		if c.AfterSweep != nil {
			stop, err := c.AfterSweep(c.clk.Now())
			if err != nil {
				c.dumpError(fmt.Sprintf("after sweep: %v", err))
			}
			if stop {
				Opsf("run complete")
				return nil
			}
		}
		if n == 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(pollDelay):
			}
		}
	}
}

// SweepSpool applies waiting spool files in filename order, which is
// arrival order, deleting each after it is applied. Returns how many
// files were consumed.
func (c *Curator) SweepSpool() (int, error) {
	files, err := filepath.Glob(filepath.Join(c.cfg.GetSpoolDir(), "*.msg"))
	if err != nil {
		return 0, err
	}
	sort.Strings(files)
	if len(files) > sweepBatch {
		files = files[:sweepBatch]
	}

	for _, f := range files {
		data, err := os.ReadFile(f)
		if err != nil {
			return 0, err
		}
		if err := os.Remove(f); err != nil {
			return 0, err
		}
		c.applyJSON(data)
	}
	return len(files), nil
}

// applyJSON decodes one spool record and applies it. Failures are
// recorded, not returned: one bad message must not stop the spool.
func (c *Curator) applyJSON(data []byte) {
	text := strings.TrimSpace(string(data))
	if text == "" {
		return
	}
	var p fisb.Product
	if err := json.Unmarshal([]byte(text), &p); err != nil {
		c.dumpRecord(fmt.Sprintf("bad message JSON: %v", err), text)
		return
	}
	if err := c.Apply(&p); err != nil {
		c.dumpRecord(fmt.Sprintf("apply %s/%s: %v", p.Type, p.UniqueName, err), text)
	}
}

// Apply routes one product to its handler.
func (c *Curator) Apply(p *fisb.Product) error {
	now := c.clk.Now()

	// Dead on arrival: replayed sets and marginal reception can hand us
	// products that lapsed before we saw them.
	if c.cfg.GetExpireMessages() && !p.ExpirationTime.IsZero() && !p.ExpirationTime.After(now) {
		if c.cfg.GetPrintImmediateExpirations() {
			Diagf("dead on arrival: %s/%s expired %s",
				p.Type, p.UniqueName, p.ExpirationTime.Format(time.RFC3339))
		}
		return nil
	}

	switch {
	case isImageType(p.Type):
		if c.img == nil || !c.cfg.GetProcessImages() {
			return nil
		}
		return c.img.Process(p, now)

	case p.Type == fisb.TypeRSR:
		return c.st.RecordRSR(p)

	case cancelTargets[p.Type] != "":
		return c.applyCancel(p)

	case strings.HasPrefix(p.Type, "CRL_"):
		if err := c.annotateCRL(p); err != nil {
			return err
		}
		_, err := c.st.Upsert(p)
		return err

	case p.Type == fisb.TypePIREP:
		return c.applyPIREP(p)

	case p.Type == fisb.TypeMETAR, p.Type == fisb.TypeTAF,
		p.Type == fisb.TypeWinds06, p.Type == fisb.TypeWinds12, p.Type == fisb.TypeWinds24:
		if c.loc != nil && c.cfg.GetTextWxLocationSupport() {
			c.loc.EnrichTextWx(p)
		}
		_, err := c.st.Upsert(p)
		return err

	default:
		changed, err := c.st.Upsert(p)
		if err != nil {
			return err
		}
		if changed {
			return c.reportArrived(p)
		}
		return nil
	}
}

// applyCancel removes the report a cancel names and stores the cancel
// itself, so repeats of the same cancellation are recognized until it
// expires.
func (c *Curator) applyCancel(p *fisb.Product) error {
	target := cancelTargets[p.Type]
	existed, err := c.st.Delete(target, p.UniqueName)
	if err != nil {
		return err
	}
	if existed {
		Diagf("cancelled %s/%s", target, p.UniqueName)
	}
	if _, err := c.st.Upsert(p); err != nil {
		return err
	}
	// The report is gone, so its CRL entry loses its star.
	if existed && c.cfg.GetImmediateCRLUpdate() && p.ProductID != 0 {
		return c.refreshCRLs(p.ProductID)
	}
	return nil
}

func (c *Curator) applyPIREP(p *fisb.Product) error {
	if c.loc != nil && c.cfg.GetPIREPLocationSupport() {
		if !c.loc.EnrichPIREP(p) && c.cfg.GetSaveUnmatchedPIREPs() {
			c.saveUnmatchedPIREP(p)
		}
	}
	_, err := c.st.Upsert(p)
	return err
}

// reportArrived refreshes the live CRLs for a changed TWGO report when
// immediate updates are configured. Products without report lists fall
// through untouched.
func (c *Curator) reportArrived(p *fisb.Product) error {
	if !c.cfg.GetImmediateCRLUpdate() {
		return nil
	}
	switch p.ProductID {
	case fisb.ProductNOTAM, fisb.ProductAIRMET, fisb.ProductSIGMET,
		fisb.ProductGAIRMET, fisb.ProductCWA, fisb.ProductNOTAMTRA, fisb.ProductNOTAMTMOA:
		return c.refreshCRLs(p.ProductID)
	}
	return nil
}

// refreshCRLs reannotates every stored CRL for one product.
func (c *Curator) refreshCRLs(productID int) error {
	crls, err := c.st.ListByType(fisb.CRLType(productID))
	if err != nil {
		return err
	}
	for _, crl := range crls {
		if err := c.annotateCRL(crl); err != nil {
			return err
		}
		if _, err := c.st.Upsert(crl); err != nil {
			return err
		}
	}
	return nil
}

// annotateCRL stars each report the store holds in full and recomputes
// the completeness flag. A list that overflowed its frame can never be
// complete: entries were dropped on the air.
func (c *Curator) annotateCRL(p *fisb.Product) error {
	if c.cfg.GetAnnotateCRLReports() {
		var firstErr error
		p.Reports = lo.Map(p.Reports, func(r string, _ int) string {
			r = strings.TrimSuffix(r, "*")
			ok, err := c.st.HasReport(p.CRLProductID, r)
			if err != nil {
				if firstErr == nil {
					firstErr = err
				}
				return r
			}
			if ok {
				return r + "*"
			}
			return r
		})
		if firstErr != nil {
			return firstErr
		}
	}
	p.Complete = !p.HasOverflow && lo.EveryBy(p.Reports, func(r string) bool {
		return strings.HasSuffix(r, "*")
	})
	return nil
}

// Maintenance expires lapsed rows, updates images, and resweeps the
// CRLs. Runs once per maintenance interval and once at startup.
func (c *Curator) Maintenance(now time.Time) error {
	if c.cfg.GetExpireMessages() {
		keys, err := c.st.DeleteExpired(now)
		if err != nil {
			return err
		}
		if len(keys) > 0 {
			Diagf("expired %d messages", len(keys))
		}
		// An expired report may have been holding a star on a CRL.
		if c.anyReports(keys) {
			if err := c.sweepCRLs(); err != nil {
				return err
			}
		}
	}
	if c.img != nil && c.cfg.GetProcessImages() {
		if err := c.img.PeriodicUpdate(now); err != nil {
			return err
		}
	}
	return nil
}

// anyReports reports whether any expired key belongs to a type with a
// current report list.
func (c *Curator) anyReports(keys []store.Key) bool {
	for _, k := range keys {
		switch k.Type {
		case fisb.TypeNOTAM, fisb.TypeAIRMET, fisb.TypeSIGMET,
			fisb.TypeWST, fisb.TypeCWA, fisb.TypeGAIRMET:
			return true
		}
	}
	return false
}

// sweepCRLs reannotates every stored CRL.
func (c *Curator) sweepCRLs() error {
	if !c.cfg.GetAnnotateCRLReports() {
		return nil
	}
	crls, err := c.st.ListByTypePrefix("CRL_")
	if err != nil {
		return err
	}
	for _, crl := range crls {
		if err := c.annotateCRL(crl); err != nil {
			return err
		}
		if _, err := c.st.Upsert(crl); err != nil {
			return err
		}
	}
	return nil
}

// saveUnmatchedPIREP appends the raw report text for later study (or
// amusement).
func (c *Curator) saveUnmatchedPIREP(p *fisb.Product) {
	path := c.cfg.GetUnmatchedPIREPsFile()
	if path == "" || p.Contents == "" {
		return
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		Opsf("unmatched pirep file: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(p.Contents + "\n"); err != nil {
		Opsf("unmatched pirep file: %v", err)
	}
}

func isImageType(t string) bool {
	switch t {
	case fisb.TypeNEXRADRegional, fisb.TypeNEXRADCONUS, fisb.TypeCloudTops, fisb.TypeLightning:
		return true
	}
	return strings.HasPrefix(t, "ICING_") || strings.HasPrefix(t, "TURBULENCE_")
}

// dumpError records a failure with no message attached.
func (c *Curator) dumpError(reason string) {
	c.dumpRecord(reason, "")
}

// dumpRecord appends a failure and the offending message text to the
// error file.
func (c *Curator) dumpRecord(reason, text string) {
	Diagf("%s", reason)
	path := c.cfg.GetErrorFile()
	if path == "" {
		return
	}
	entry := fmt.Sprintf("---- %s\n# %s\n", time.Now().UTC().Format(time.RFC3339), reason)
	if text != "" {
		entry += text + "\n"
	}
	c.errMu.Lock()
	defer c.errMu.Unlock()
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		Opsf("error file: %v", err)
		return
	}
	defer f.Close()
	if _, err := f.WriteString(entry); err != nil {
		Opsf("error file: %v", err)
	}
}
