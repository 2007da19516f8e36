// Package capture provides the raw uplink sources the decode pipeline
// reads from: capture-line streams (stdin or files), a serial-attached
// receiver, and pcap replay. Every source yields (payload, receive
// time) pairs and returns io.EOF when exhausted.
package capture

import (
	"bufio"
	"context"
	"io"
	"strings"
	"time"

	"github.com/fisb-tools/fisb978/internal/fisb/l0frames"
)

// LineSource reads "+<hex>;...;t=<secs>;" capture lines from a stream.
// Comment lines (#) and blank lines are skipped.
type LineSource struct {
	scanner *bufio.Scanner
	closer  io.Closer
}

// NewLineSource wraps r. If r is also an io.Closer, Close closes it.
func NewLineSource(r io.Reader) *LineSource {
	s := bufio.NewScanner(r)
	// A 432-byte payload is 864 hex characters plus attributes; leave
	// generous headroom for receivers that append extra fields.
	s.Buffer(make([]byte, 4096), 64*1024)
	src := &LineSource{scanner: s}
	if c, ok := r.(io.Closer); ok {
		src.closer = c
	}
	return src
}

// Next returns the next payload. Malformed lines are returned as
// errors so the caller can count them and keep reading.
func (s *LineSource) Next(ctx context.Context) ([]byte, time.Time, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, time.Time{}, err
		}
		if !s.scanner.Scan() {
			if err := s.scanner.Err(); err != nil {
				return nil, time.Time{}, err
			}
			return nil, time.Time{}, io.EOF
		}
		line := strings.TrimSpace(s.scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		return l0frames.ParseLine(line)
	}
}

// Close closes the underlying stream when it supports closing.
func (s *LineSource) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}
