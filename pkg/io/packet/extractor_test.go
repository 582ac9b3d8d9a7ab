package packet

import (
	"net"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func buildPacket(t *testing.T, proto layers.IPProtocol, transport gopacket.SerializableLayer, payload []byte) gopacket.Packet {
	t.Helper()

	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0x00, 0x01, 0x02, 0x03, 0x04, 0x05},
		DstMAC:       net.HardwareAddr{0x06, 0x07, 0x08, 0x09, 0x0a, 0x0b},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		IHL:      5,
		TTL:      64,
		Protocol: proto,
		SrcIP:    net.IP{10, 0, 0, 1},
		DstIP:    net.IP{10, 0, 0, 2},
	}
	switch l := transport.(type) {
	case *layers.TCP:
		require.NoError(t, l.SetNetworkLayerForChecksum(ip))
	case *layers.UDP:
		require.NoError(t, l.SetNetworkLayerForChecksum(ip))
	}

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	serializable := []gopacket.SerializableLayer{eth, ip, transport}
	if len(payload) > 0 {
		serializable = append(serializable, gopacket.Payload(payload))
	}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, serializable...))

	return gopacket.NewPacket(buf.Bytes(), layers.LayerTypeEthernet, gopacket.Default)
}

func TestExtractTCP(t *testing.T) {
	p := buildPacket(t, layers.IPProtocolTCP, &layers.TCP{SrcPort: 51000, DstPort: 41000, SYN: true, ACK: true}, []byte("hello world"))

	rec := NewExtractor().Extract(p)

	assert.Equal(t, float64(14+20+20+11), rec[FeaturePacketSize])
	assert.Equal(t, "tcp", rec[FeatureProtocol])
	assert.Equal(t, 51000.0, rec[FeatureSrcPort])
	assert.Equal(t, 41000.0, rec[FeatureDstPort])
	assert.Equal(t, 3.0, rec[FeatureTCPFlags])
	assert.Equal(t, 64.0, rec[FeatureIPTTL])
	assert.Equal(t, 11.0, rec[FeaturePayloadSize])
	assert.NotContains(t, rec, FeatureInterArrivalTime)
}

func TestExtractUDP(t *testing.T) {
	p := buildPacket(t, layers.IPProtocolUDP, &layers.UDP{SrcPort: 40000, DstPort: 40001}, []byte("ping"))

	rec := NewExtractor().Extract(p)

	assert.Equal(t, "udp", rec[FeatureProtocol])
	assert.Equal(t, 40001.0, rec[FeatureDstPort])
	assert.NotContains(t, rec, FeatureTCPFlags)
	assert.Equal(t, 4.0, rec[FeaturePayloadSize])
}

func TestExtractICMP(t *testing.T) {
	icmp := &layers.ICMPv4{TypeCode: layers.CreateICMPv4TypeCode(layers.ICMPv4TypeEchoRequest, 0), Id: 1, Seq: 1}
	p := buildPacket(t, layers.IPProtocolICMPv4, icmp, nil)

	rec := NewExtractor().Extract(p)

	assert.Equal(t, "icmp", rec[FeatureProtocol])
	assert.NotContains(t, rec, FeatureSrcPort)
	assert.NotContains(t, rec, FeatureDstPort)
}

func TestExtractInterArrivalTime(t *testing.T) {
	e := NewExtractor()
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	first := buildPacket(t, layers.IPProtocolTCP, &layers.TCP{SrcPort: 1, DstPort: 2}, nil)
	first.Metadata().Timestamp = start
	second := buildPacket(t, layers.IPProtocolTCP, &layers.TCP{SrcPort: 1, DstPort: 2}, nil)
	second.Metadata().Timestamp = start.Add(250 * time.Millisecond)

	assert.NotContains(t, e.Extract(first), FeatureInterArrivalTime)
	assert.InDelta(t, 0.25, e.Extract(second)[FeatureInterArrivalTime], 1e-9)
}

func TestFeatureNames(t *testing.T) {
	assert.Len(t, NewExtractor().FeatureNames(), 8)
}
