package pipeline

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fisb-tools/fisb978/internal/fisb"
)

type record struct {
	raw  []byte
	rcvd time.Time
}

// sliceSource replays a fixed set of capture records.
type sliceSource struct {
	records []record
	next    int
}

func (s *sliceSource) Next(ctx context.Context) ([]byte, time.Time, error) {
	if s.next >= len(s.records) {
		return nil, time.Time{}, io.EOF
	}
	r := s.records[s.next]
	s.next++
	return r.raw, r.rcvd, nil
}

// serviceStatusUplink builds a 432-byte uplink from a 45N 90W station
// carrying a single service status frame with one traffic entry.
func serviceStatusUplink(t *testing.T) []byte {
	t.Helper()
	ba := make([]byte, 432)

	rawLat := int(45.0 / 360.0 * (1 << 24))
	rawLon := int(270.0 / 360.0 * (1 << 24))
	ba[0] = byte(rawLat >> 15)
	ba[1] = byte(rawLat >> 7)
	ba[2] = byte(rawLat&0x7F) << 1
	ba[2] |= byte(rawLon >> 23 & 0x01)
	ba[3] = byte(rawLon >> 15)
	ba[4] = byte(rawLon >> 7)
	ba[5] = byte(rawLon&0x7F)<<1 | 0x01
	ba[6] = 0x80 | 0x20

	// Frame: length 4, type 15, one entry for ICAO a1b2c3.
	copy(ba[8:], []byte{0x02, 0x0F, 0x00, 0xA1, 0xB2, 0xC3})
	return ba
}

func TestPipelineEndToEnd(t *testing.T) {
	rcvd := time.Date(2021, 5, 14, 7, 15, 37, 0, time.UTC)
	src := &sliceSource{records: []record{{serviceStatusUplink(t), rcvd}}}

	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &out
	p, err := New(cfg)
	require.NoError(t, err)

	require.NoError(t, p.Run(context.Background(), src))

	var prod fisb.Product
	require.NoError(t, json.Unmarshal(out.Bytes(), &prod))
	assert.Equal(t, fisb.TypeServiceStatus, prod.Type)
	assert.Equal(t, "45.0~-90.0", prod.UniqueName)
	assert.Equal(t, []string{"a1b2c3"}, prod.Traffic)
	assert.Equal(t, rcvd, prod.ReceivedTime)
}

func TestPipelineSpoolOutput(t *testing.T) {
	rcvd := time.Date(2021, 5, 14, 7, 15, 37, 0, time.UTC)
	src := &sliceSource{records: []record{{serviceStatusUplink(t), rcvd}}}

	dir := t.TempDir()
	cfg := DefaultConfig()
	cfg.SpoolDir = dir
	p, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), src))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Regexp(t, regexp.MustCompile(`^20210514T071537\.\d{6}-00\.msg$`), entries[0].Name())

	data, err := os.ReadFile(filepath.Join(dir, entries[0].Name()))
	require.NoError(t, err)
	var prod fisb.Product
	require.NoError(t, json.Unmarshal(data, &prod))
	assert.Equal(t, fisb.TypeServiceStatus, prod.Type)
}

func TestPipelineSkipsUndecodableInput(t *testing.T) {
	rcvd := time.Date(2021, 5, 14, 7, 15, 37, 0, time.UTC)
	src := &sliceSource{records: []record{
		{make([]byte, 10), rcvd}, // short packet
		{serviceStatusUplink(t), rcvd},
	}}

	var out bytes.Buffer
	cfg := DefaultConfig()
	cfg.Output = &out
	cfg.ErrorPath = filepath.Join(t.TempDir(), "errors.log")
	p, err := New(cfg)
	require.NoError(t, err)
	require.NoError(t, p.Run(context.Background(), src))

	assert.Equal(t, 1, bytes.Count(out.Bytes(), []byte("\n")), "good packet still decoded")
	errData, err := os.ReadFile(cfg.ErrorPath)
	require.NoError(t, err)
	assert.Contains(t, string(errData), "l0")
}

func TestPipelineRejectsPrettySpool(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SpoolDir = t.TempDir()
	cfg.PrettyPrint = true
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestSpoolWriterSequence(t *testing.T) {
	dir := t.TempDir()
	w, err := NewSpoolWriter(dir)
	require.NoError(t, err)

	now := time.Date(2021, 5, 14, 7, 15, 37, 123456000, time.UTC)
	require.NoError(t, w.Write([]byte(`{}`), now))
	require.NoError(t, w.Write([]byte(`{}`), now))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 2)
	// Same timestamp, distinct sequence numbers, sortable order.
	assert.Equal(t, "20210514T071537.123456-00.msg", entries[0].Name())
	assert.Equal(t, "20210514T071537.123456-01.msg", entries[1].Name())
}
