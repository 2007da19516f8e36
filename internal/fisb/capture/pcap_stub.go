//go:build !pcap
// +build !pcap

package capture

import (
	"context"
	"fmt"
	"time"
)

// PcapSource is a stub when pcap support is disabled.
// Build with -tags=pcap to enable pcap file replay.
type PcapSource struct{}

// OpenPcap reports that pcap support is compiled out.
func OpenPcap(path string, udpPort int) (*PcapSource, error) {
	return nil, fmt.Errorf("pcap support not enabled: rebuild with -tags=pcap")
}

func (s *PcapSource) Next(ctx context.Context) ([]byte, time.Time, error) {
	return nil, time.Time{}, fmt.Errorf("pcap support not enabled")
}

func (s *PcapSource) Close() error { return nil }
