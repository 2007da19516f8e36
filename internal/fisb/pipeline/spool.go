package pipeline

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/lestrrat-go/strftime"
)

// SpoolWriter drops one product per file into the curator's spool
// directory. Files land under a .tmp name and are renamed to .msg once
// complete, so a reader scanning the directory never sees a partial
// write. Names sort chronologically; the microsecond field plus a
// rolling sequence keeps bursts (image fan-out) from colliding.
type SpoolWriter struct {
	dir     string
	pattern *strftime.Strftime
	seq     int
}

// NewSpoolWriter creates dir if needed and returns a writer into it.
func NewSpoolWriter(dir string) (*SpoolWriter, error) {
	pattern, err := strftime.New("%Y%m%dT%H%M%S")
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create spool dir: %w", err)
	}
	return &SpoolWriter{dir: dir, pattern: pattern}, nil
}

// Write stores one JSON-encoded product stamped with now.
func (w *SpoolWriter) Write(data []byte, now time.Time) error {
	base := fmt.Sprintf("%s.%06d-%02d",
		w.pattern.FormatString(now.UTC()), now.Nanosecond()/1000, w.seq)
	w.seq++
	if w.seq >= 100 {
		w.seq = 0
	}

	tmp := filepath.Join(w.dir, base+".tmp")
	if err := os.WriteFile(tmp, append(data, '\n'), 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, filepath.Join(w.dir, base+".msg"))
}
