// Package pcap reads packets from capture files or live interfaces as
// records to score.
package pcap

import (
	"context"
	"errors"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"

	"github.com/hed1ad/anomalyscore/pkg/detectors"
	"github.com/hed1ad/anomalyscore/pkg/io/packet"
)

// Reader reads packets from a pcap handle.
type Reader struct {
	handle    *pcap.Handle
	extractor *packet.Extractor
}

// NewFileReader creates a reader for PCAP files.
func NewFileReader(filename string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filename)
	if err != nil {
		return nil, err
	}
	return &Reader{handle: handle, extractor: packet.NewExtractor()}, nil
}

// NewLiveReader creates a reader for live packet capture, optionally
// restricted by a BPF filter.
func NewLiveReader(iface string, snaplen int32, promisc bool, timeout time.Duration, bpf string) (*Reader, error) {
	handle, err := pcap.OpenLive(iface, snaplen, promisc, timeout)
	if err != nil {
		return nil, err
	}
	if bpf != "" {
		if err := handle.SetBPFFilter(bpf); err != nil {
			handle.Close()
			return nil, err
		}
	}
	return &Reader{handle: handle, extractor: packet.NewExtractor()}, nil
}

func (r *Reader) packets() (chan gopacket.Packet, error) {
	if r.handle == nil {
		return nil, errors.New("reader not initialized")
	}
	return gopacket.NewPacketSource(r.handle, r.handle.LinkType()).Packets(), nil
}

// Read returns all packets as records. It does not return for live
// captures; use Stream instead.
func (r *Reader) Read() ([]detectors.Record, error) {
	packets, err := r.packets()
	if err != nil {
		return nil, err
	}

	var data []detectors.Record
	for p := range packets {
		data = append(data, r.extractor.Extract(p))
	}
	return data, nil
}

// Stream returns a channel of records for real-time processing.
func (r *Reader) Stream(ctx context.Context) (<-chan detectors.Record, error) {
	packets, err := r.packets()
	if err != nil {
		return nil, err
	}

	out := make(chan detectors.Record, 1000)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case p, ok := <-packets:
				if !ok {
					return
				}
				select {
				case out <- r.extractor.Extract(p):
				case <-ctx.Done():
					return
				}
			}
		}
	}()

	return out, nil
}

// Close releases resources.
func (r *Reader) Close() error {
	if r.handle != nil {
		r.handle.Close()
	}
	return nil
}
