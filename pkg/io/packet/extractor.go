// Package packet extracts named anomaly features from decoded network
// packets.
package packet

import (
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"

	"github.com/hed1ad/anomalyscore/pkg/detectors"
)

// Names of the extracted packet features.
const (
	FeaturePacketSize       = "packet_size"
	FeatureInterArrivalTime = "inter_arrival_time"
	FeatureProtocol         = "protocol"
	FeatureSrcPort          = "src_port"
	FeatureDstPort          = "dst_port"
	FeatureTCPFlags         = "tcp_flags"
	FeatureIPTTL            = "ip_ttl"
	FeaturePayloadSize      = "payload_size"
)

// Extractor extracts named features from network packets. It keeps
// the previous packet timestamp and is not safe for concurrent use.
type Extractor struct {
	lastTimestamp time.Time
}

// NewExtractor creates a new packet feature extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract converts a packet to a record. Features that do not apply to the
// packet, such as ports of an ICMP packet, are left out so that the model
// treats them as missing.
func (e *Extractor) Extract(packet gopacket.Packet) detectors.Record {
	rec := detectors.Record{
		FeaturePacketSize: float64(len(packet.Data())),
	}

	metadata := packet.Metadata()
	if metadata != nil && !metadata.Timestamp.IsZero() {
		if !e.lastTimestamp.IsZero() {
			rec[FeatureInterArrivalTime] = metadata.Timestamp.Sub(e.lastTimestamp).Seconds()
		}
		e.lastTimestamp = metadata.Timestamp
	}

	if tcpLayer := packet.Layer(layers.LayerTypeTCP); tcpLayer != nil {
		tcp := tcpLayer.(*layers.TCP)
		rec[FeatureProtocol] = "tcp"
		rec[FeatureSrcPort] = float64(tcp.SrcPort)
		rec[FeatureDstPort] = float64(tcp.DstPort)
		rec[FeatureTCPFlags] = encodeTCPFlags(tcp)
	} else if udpLayer := packet.Layer(layers.LayerTypeUDP); udpLayer != nil {
		udp := udpLayer.(*layers.UDP)
		rec[FeatureProtocol] = "udp"
		rec[FeatureSrcPort] = float64(udp.SrcPort)
		rec[FeatureDstPort] = float64(udp.DstPort)
	} else if packet.Layer(layers.LayerTypeICMPv4) != nil {
		rec[FeatureProtocol] = "icmp"
	}

	if ipLayer := packet.Layer(layers.LayerTypeIPv4); ipLayer != nil {
		ip := ipLayer.(*layers.IPv4)
		rec[FeatureIPTTL] = float64(ip.TTL)
	}

	if appLayer := packet.ApplicationLayer(); appLayer != nil {
		rec[FeaturePayloadSize] = float64(len(appLayer.Payload()))
	}

	return rec
}

// FeatureNames returns the names of extracted features.
func (e *Extractor) FeatureNames() []string {
	return []string{
		FeaturePacketSize,
		FeatureInterArrivalTime,
		FeatureProtocol,
		FeatureSrcPort,
		FeatureDstPort,
		FeatureTCPFlags,
		FeatureIPTTL,
		FeaturePayloadSize,
	}
}

// encodeTCPFlags converts TCP flags to a numeric value.
func encodeTCPFlags(tcp *layers.TCP) float64 {
	var flags float64
	if tcp.SYN {
		flags += 1
	}
	if tcp.ACK {
		flags += 2
	}
	if tcp.FIN {
		flags += 4
	}
	if tcp.RST {
		flags += 8
	}
	if tcp.PSH {
		flags += 16
	}
	if tcp.URG {
		flags += 32
	}
	return flags
}
