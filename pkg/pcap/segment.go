package pcap

import (
	"net"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/pkg/errors"
)

// maxInspectBytes bounds the payload prefix retained per segment. The
// handshake (banner, KEXINIT) fits comfortably; encrypted packets only need
// their length.
const maxInspectBytes = 4096

// Segment is one captured TCP segment, before stream assembly assigns
// direction and capture index.
type Segment struct {
	Timestamp time.Time
	SrcIP     net.IP
	DstIP     net.IP
	SrcPort   uint16
	DstPort   uint16
	Seq       uint32
	Ack       uint32
	SYN       bool
	FIN       bool
	RST       bool
	// Payload holds up to maxInspectBytes of TCP payload.
	Payload []byte
	// PayloadLen is the full TCP payload length, which may exceed
	// len(Payload) for oversized segments.
	PayloadLen int
}

// parseSegment decodes a raw frame into a Segment. Non-IP and non-TCP frames
// return an error and are skipped by the reader. Zero-payload segments are
// only kept when they carry SYN/FIN/RST, for stream boundary detection.
func parseSegment(packet gopacket.Packet) (*Segment, error) {
	seg := &Segment{}

	if meta := packet.Metadata(); meta != nil {
		seg.Timestamp = meta.Timestamp
	}

	switch {
	case packet.Layer(layers.LayerTypeIPv4) != nil:
		ip := packet.Layer(layers.LayerTypeIPv4).(*layers.IPv4)
		seg.SrcIP = ip.SrcIP
		seg.DstIP = ip.DstIP
	case packet.Layer(layers.LayerTypeIPv6) != nil:
		ip := packet.Layer(layers.LayerTypeIPv6).(*layers.IPv6)
		seg.SrcIP = ip.SrcIP
		seg.DstIP = ip.DstIP
	default:
		return nil, errors.New("not an IPv4 or IPv6 packet")
	}

	tcpLayer := packet.Layer(layers.LayerTypeTCP)
	if tcpLayer == nil {
		return nil, errors.New("not a TCP packet")
	}
	tcp := tcpLayer.(*layers.TCP)

	seg.SrcPort = uint16(tcp.SrcPort)
	seg.DstPort = uint16(tcp.DstPort)
	seg.Seq = tcp.Seq
	seg.Ack = tcp.Ack
	seg.SYN = tcp.SYN
	seg.FIN = tcp.FIN
	seg.RST = tcp.RST

	payload := tcp.Payload
	seg.PayloadLen = len(payload)
	if seg.PayloadLen == 0 && !seg.SYN && !seg.FIN && !seg.RST {
		return nil, errors.New("empty segment")
	}

	// The capture library may reuse its buffer, so retained bytes are copied.
	keep := seg.PayloadLen
	if keep > maxInspectBytes {
		keep = maxInspectBytes
	}
	if keep > 0 {
		seg.Payload = make([]byte, keep)
		copy(seg.Payload, payload[:keep])
	}

	return seg, nil
}
