// Package clock abstracts "now" so the curator can run against replayed
// historical message sets. In test mode the trickle feeder publishes a
// sync file pinning virtual time; the curator then runs on wall time
// plus a fixed offset.
package clock

import (
	"fmt"
	"os"
	"strings"
	"time"
)

// Clock yields the current time, always in UTC.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

func (System) Now() time.Time { return time.Now().UTC() }

// Offset is a wall clock shifted by a fixed delta.
type Offset struct {
	Delta time.Duration
}

func (o Offset) Now() time.Time { return time.Now().UTC().Add(o.Delta) }

// Fixed always returns the same instant. Test helper.
type Fixed struct {
	T time.Time
}

func (f Fixed) Now() time.Time { return f.T }

// WriteSyncFile records virtual time v as of this instant. The reader
// recovers the offset from the recorded pair, so the file stays valid
// however long ago it was written.
func WriteSyncFile(path string, v time.Time) error {
	line := v.UTC().Format(time.RFC3339Nano) + " " +
		time.Now().UTC().Format(time.RFC3339Nano) + "\n"
	return os.WriteFile(path, []byte(line), 0o644)
}

// LoadSyncFile reads a sync file and returns an Offset clock running at
// the virtual time it pins.
func LoadSyncFile(path string) (Offset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Offset{}, fmt.Errorf("read sync file: %w", err)
	}
	fields := strings.Fields(string(data))
	if len(fields) != 2 {
		return Offset{}, fmt.Errorf("sync file %s: want 2 timestamps, got %d fields", path, len(fields))
	}
	virtual, err := time.Parse(time.RFC3339Nano, fields[0])
	if err != nil {
		return Offset{}, fmt.Errorf("sync file virtual time: %w", err)
	}
	wall, err := time.Parse(time.RFC3339Nano, fields[1])
	if err != nil {
		return Offset{}, fmt.Errorf("sync file wall time: %w", err)
	}
	return Offset{Delta: virtual.Sub(wall)}, nil
}
