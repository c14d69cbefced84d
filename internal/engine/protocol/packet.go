// Package protocol parses the cleartext portion of the SSH wire protocol:
// version banners, binary packet framing, and KEXINIT payloads.
package protocol

import (
	"bytes"
	"encoding/binary"

	"github.com/pkg/errors"
)

// SSH message numbers relevant to session analysis.
const (
	MsgKexInit         = 20
	MsgNewKeys         = 21
	MsgKexDHReply      = 31
	MsgUserauthRequest = 50
	MsgUserauthSuccess = 52
	MsgUserauthPKOK    = 60
)

// maxPacketLen caps the declared length of a cleartext SSH packet, per
// RFC 4253 section 6.1.
const maxPacketLen = 35000

// bannerPrefix starts every SSH identification string.
var bannerPrefix = []byte("SSH-")

// Packet is one cleartext SSH binary packet.
type Packet struct {
	// Length is the declared packet_length field (excludes itself).
	Length        uint32
	PaddingLength byte
	Type          byte
	// Payload is the message body after the type byte, padding stripped.
	Payload []byte
}

// ParseBanner extracts an SSH identification line from the start of a
// payload. Returns the banner without the CR-LF and the number of bytes
// consumed, or ok=false when the payload does not start with a banner.
func ParseBanner(payload []byte) (banner string, consumed int, ok bool) {
	if !bytes.HasPrefix(payload, bannerPrefix) {
		return "", 0, false
	}
	end := bytes.IndexByte(payload, '\n')
	if end < 0 {
		return "", 0, false
	}
	line := payload[:end]
	consumed = end + 1
	line = bytes.TrimRight(line, "\r")
	return string(line), consumed, true
}

// ParsePacket decodes one cleartext SSH binary packet from the front of the
// buffer. Returns the packet and the bytes consumed. A buffer holding only
// part of a packet returns errShort so the caller can feed more data.
func ParsePacket(b []byte) (*Packet, int, error) {
	if len(b) < 6 {
		return nil, 0, errShort
	}
	length := binary.BigEndian.Uint32(b)
	if length < 2 || length > maxPacketLen {
		return nil, 0, errors.Errorf("implausible packet length %d", length)
	}
	total := 4 + int(length)
	if len(b) < total {
		return nil, 0, errShort
	}
	padding := b[4]
	if int(padding)+2 > int(length) {
		return nil, 0, errors.Errorf("padding %d exceeds packet length %d", padding, length)
	}
	p := &Packet{
		Length:        length,
		PaddingLength: padding,
		Type:          b[5],
		Payload:       b[6 : total-int(padding)],
	}
	return p, total, nil
}

var errShort = errors.New("short buffer")

// IsShort reports whether a ParsePacket error means the buffer needs more
// data rather than being malformed.
func IsShort(err error) bool {
	return errors.Is(err, errShort)
}
