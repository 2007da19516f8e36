// Package replay drives regression runs against archived test groups.
// A test group starts at a fixed calendar date and carries a trigger
// table; whenever the virtual clock passes a trigger, the runner dumps
// the curator state (store contents, vector CSVs, rendered images) into
// a numbered results directory so runs can be diffed.
package replay

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb"
	"github.com/fisb-tools/fisb978/internal/harvest/store"
	"github.com/fisb-tools/fisb978/internal/harvest/vectors"
)

// Trigger is one dump point of a test group. Offset places the trigger
// relative to the group's start; Adjust shifts when the dump actually
// fires without changing the directory label, for triggers that need to
// land just before or after an expiration boundary.
type Trigger struct {
	Offset time.Duration
	Adjust time.Duration
	Num    int
	Name   string
}

// FireTime is when the trigger goes off on the virtual clock.
func (t Trigger) FireTime(start time.Time) time.Time {
	return start.Add(t.Offset + t.Adjust)
}

// LoadStartDate finds a test group's start in the start date table.
// Rows are tg,year,month,day; the start is that day's UTC midnight.
func LoadStartDate(path string, tg int) (time.Time, error) {
	f, err := os.Open(path)
	if err != nil {
		return time.Time{}, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = 4
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return time.Time{}, fmt.Errorf("%s: %w", path, err)
		}
		n, err := strconv.Atoi(rec[0])
		if err != nil {
			// Header row.
			continue
		}
		if n != tg {
			continue
		}
		year, err1 := strconv.Atoi(rec[1])
		month, err2 := strconv.Atoi(rec[2])
		day, err3 := strconv.Atoi(rec[3])
		if err1 != nil || err2 != nil || err3 != nil {
			return time.Time{}, fmt.Errorf("%s: bad date for test group %d", path, tg)
		}
		return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC), nil
	}
	return time.Time{}, fmt.Errorf("%s: no start date for test group %d", path, tg)
}

// LoadTriggers reads a trigger table. Rows are
// offset_secs,adjust_secs,trigger_num,name, returned in firing order.
func LoadTriggers(path string) ([]Trigger, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	cr := csv.NewReader(f)
	cr.FieldsPerRecord = 4
	var out []Trigger
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%s: %w", path, err)
		}
		offset, err := strconv.Atoi(rec[0])
		if err != nil {
			// Header row.
			continue
		}
		adjust, err1 := strconv.Atoi(rec[1])
		num, err2 := strconv.Atoi(rec[2])
		if err1 != nil || err2 != nil {
			return nil, fmt.Errorf("%s: bad trigger row %v", path, rec)
		}
		out = append(out, Trigger{
			Offset: time.Duration(offset) * time.Second,
			Adjust: time.Duration(adjust) * time.Second,
			Num:    num,
			Name:   strings.TrimSpace(rec[3]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Offset+out[i].Adjust < out[j].Offset+out[j].Adjust
	})
	return out, nil
}

// ImageReporter summarizes assembled images for the dump. The imagery
// manager satisfies it; a nil reporter skips the image sections.
type ImageReporter interface {
	Report(now time.Time) string
}

// Runner fires triggers as the virtual clock passes them.
type Runner struct {
	start     time.Time
	triggers  []Trigger
	resultDir string
	imageDir  string
	st        *store.Store
	img       ImageReporter
	next      int
}

// NewRunner builds a runner. resultDir receives one numbered directory
// per trigger; imageDir is where rendered PNGs live, empty to skip
// copying them.
func NewRunner(st *store.Store, img ImageReporter, start time.Time,
	triggers []Trigger, resultDir, imageDir string) *Runner {
	return &Runner{
		start:     start,
		triggers:  triggers,
		resultDir: resultDir,
		imageDir:  imageDir,
		st:        st,
		img:       img,
	}
}

// Done reports whether every trigger has fired.
func (r *Runner) Done() bool { return r.next >= len(r.triggers) }

// Check fires every trigger the virtual clock has passed, in order,
// and reports how many fired.
func (r *Runner) Check(now time.Time) (int, error) {
	fired := 0
	for r.next < len(r.triggers) {
		t := r.triggers[r.next]
		if now.Before(t.FireTime(r.start)) {
			break
		}
		if err := r.dump(t, now); err != nil {
			return fired, fmt.Errorf("trigger %d (%s): %w", t.Num, t.Name, err)
		}
		Opsf("fired trigger %d %q at %s", t.Num, t.Name, now.UTC().Format(time.RFC3339))
		r.next++
		fired++
	}
	return fired, nil
}

// dump writes one trigger's results directory.
func (r *Runner) dump(t Trigger, now time.Time) error {
	dir := filepath.Join(r.resultDir, fmt.Sprintf("%02d", t.Num))
	if err := os.MkdirAll(dir, 0755); err != nil {
		return err
	}

	if err := os.WriteFile(filepath.Join(dir, r.markerName(t)),
		[]byte(t.Name+"\n"), 0644); err != nil {
		return err
	}
	if err := r.dumpStore(dir, now); err != nil {
		return err
	}
	if err := vectors.Dump(r.st, dir); err != nil {
		return err
	}
	if r.imageDir != "" {
		if err := r.copyImages(dir); err != nil {
			return err
		}
	}
	if r.img != nil {
		if err := os.WriteFile(filepath.Join(dir, "image-report.txt"),
			[]byte(r.img.Report(now)), 0644); err != nil {
			return err
		}
	}
	return nil
}

// markerName labels the dump with the trigger's nominal time and
// offset. An adjusted trigger shows both the adjusted and nominal
// offsets so a diff of two runs lines up.
func (r *Runner) markerName(t Trigger) string {
	at := t.FireTime(r.start)
	name := fmt.Sprintf("%s_%d", at.UTC().Format("2006-01-02-150405"),
		int((t.Offset+t.Adjust)/time.Second))
	if t.Adjust != 0 {
		name += fmt.Sprintf("~%d%+d", int(t.Offset/time.Second), int(t.Adjust/time.Second))
	}
	return name
}

// dumpStore writes one JSON-lines file per message type on hand, with
// the volatile fields stripped and comparison status attached.
func (r *Runner) dumpStore(dir string, now time.Time) error {
	types, err := r.st.Types()
	if err != nil {
		return err
	}
	for _, typ := range types {
		products, err := r.st.ListByType(typ)
		if err != nil {
			return err
		}
		var b strings.Builder
		for _, p := range products {
			rec, err := dumpRecord(p, now)
			if err != nil {
				return err
			}
			b.Write(rec)
			b.WriteByte('\n')
		}
		if err := os.WriteFile(filepath.Join(dir, typ+".json"),
			[]byte(b.String()), 0644); err != nil {
			return err
		}
	}
	return nil
}

// dumpRecord renders one stored message for diffing. Insert time and
// digest change run to run and are dropped; CRLs gain a COMPLETE or
// INCOMPLETE status and TWGO geometry records get their activation
// state at the dump time.
func dumpRecord(p *fisb.Product, now time.Time) ([]byte, error) {
	body, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := json.Unmarshal(body, &m); err != nil {
		return nil, err
	}
	delete(m, "insert_time")

	if strings.HasPrefix(p.Type, "CRL_") {
		if p.Complete {
			m["status"] = "COMPLETE"
		} else {
			m["status"] = "INCOMPLETE"
		}
	}
	if geoms, ok := m["geometry"].([]any); ok {
		for _, gi := range geoms {
			g, ok := gi.(map[string]any)
			if !ok {
				continue
			}
			if s := featureStatus(g, now); s != "" {
				g["status"] = s
			}
		}
	}
	return json.Marshal(m)
}

// featureStatus classifies a geometry record's activation window at
// the dump time. Hours-only schedules repeat every day and are just
// labeled Daily.
func featureStatus(g map[string]any, now time.Time) string {
	if _, ok := g["start_hour"]; ok {
		return "Daily"
	}
	startRaw, hasStart := g["start_time"].(string)
	stopRaw, hasStop := g["stop_time"].(string)
	if !hasStart && !hasStop {
		return ""
	}
	if hasStart {
		start, err := time.Parse(time.RFC3339, startRaw)
		if err == nil && now.Before(start) {
			return "Pending activation"
		}
	}
	if hasStop {
		stop, err := time.Parse(time.RFC3339, stopRaw)
		if err == nil && now.After(stop) {
			return "Expired"
		}
	}
	return "Active"
}

// copyImages copies the rendered PNG and world files into the dump.
func (r *Runner) copyImages(dir string) error {
	for _, pattern := range []string{"*.png", "*.pgw"} {
		files, err := filepath.Glob(filepath.Join(r.imageDir, pattern))
		if err != nil {
			return err
		}
		for _, f := range files {
			data, err := os.ReadFile(f)
			if err != nil {
				return err
			}
			if err := os.WriteFile(filepath.Join(dir, filepath.Base(f)), data, 0644); err != nil {
				return err
			}
		}
	}
	return nil
}
