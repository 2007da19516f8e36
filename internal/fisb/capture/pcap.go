//go:build pcap
// +build pcap

package capture

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcap"

	"github.com/fisb-tools/fisb978/internal/fisb/l0frames"
)

// PcapSource replays uplink payloads from UDP datagrams in a pcap
// file. Datagrams carrying capture lines (leading '+') are parsed for
// their embedded timestamp; raw payloads use the capture timestamp.
type PcapSource struct {
	handle  *pcap.Handle
	packets chan gopacket.Packet
}

// OpenPcap opens a pcap file. A nonzero udpPort narrows the replay to
// that destination port.
func OpenPcap(path string, udpPort int) (*PcapSource, error) {
	handle, err := pcap.OpenOffline(path)
	if err != nil {
		return nil, fmt.Errorf("open pcap %s: %w", path, err)
	}
	filter := "udp"
	if udpPort != 0 {
		filter = fmt.Sprintf("udp port %d", udpPort)
	}
	if err := handle.SetBPFFilter(filter); err != nil {
		handle.Close()
		return nil, fmt.Errorf("set filter %q: %w", filter, err)
	}
	source := gopacket.NewPacketSource(handle, handle.LinkType())
	return &PcapSource{handle: handle, packets: source.Packets()}, nil
}

// Next returns the next uplink payload from the replay.
func (s *PcapSource) Next(ctx context.Context) ([]byte, time.Time, error) {
	for {
		select {
		case <-ctx.Done():
			return nil, time.Time{}, ctx.Err()
		case packet, ok := <-s.packets:
			if !ok || packet == nil {
				return nil, time.Time{}, io.EOF
			}
			udpLayer := packet.Layer(layers.LayerTypeUDP)
			if udpLayer == nil {
				continue
			}
			payload := udpLayer.(*layers.UDP).Payload
			if len(payload) == 0 {
				continue
			}
			if payload[0] == '+' {
				raw, rcvd, err := l0frames.ParseLine(string(payload))
				if err != nil {
					return nil, time.Time{}, err
				}
				return raw, rcvd, nil
			}
			return payload, packet.Metadata().Timestamp.UTC(), nil
		}
	}
}

// Close releases the pcap handle.
func (s *PcapSource) Close() error {
	s.handle.Close()
	return nil
}
