package protocol

import (
	"encoding/binary"

	"github.com/pkg/errors"
)

// KexInit holds the ten name-lists of an SSH_MSG_KEXINIT payload, as raw
// comma-separated strings in wire order.
type KexInit struct {
	KexAlgorithms           string
	ServerHostKeyAlgorithms string
	EncryptionC2S           string
	EncryptionS2C           string
	MACC2S                  string
	MACS2C                  string
	CompressionC2S          string
	CompressionS2C          string
	LanguagesC2S            string
	LanguagesS2C            string
}

const kexCookieLen = 16

// ParseKexInit decodes the payload of a type-20 packet.
func ParseKexInit(p *Packet) (*KexInit, error) {
	if p.Type != MsgKexInit {
		return nil, errors.Errorf("not a KEXINIT packet (type %d)", p.Type)
	}

	body := p.Payload
	if len(body) < kexCookieLen {
		return nil, errors.New("KEXINIT shorter than cookie")
	}
	body = body[kexCookieLen:]

	k := &KexInit{}
	fields := []*string{
		&k.KexAlgorithms,
		&k.ServerHostKeyAlgorithms,
		&k.EncryptionC2S,
		&k.EncryptionS2C,
		&k.MACC2S,
		&k.MACS2C,
		&k.CompressionC2S,
		&k.CompressionS2C,
		&k.LanguagesC2S,
		&k.LanguagesS2C,
	}

	for i, field := range fields {
		list, rest, err := readNameList(body)
		if err != nil {
			return nil, errors.Wrapf(err, "name-list %d", i)
		}
		*field = list
		body = rest
	}

	return k, nil
}

func readNameList(b []byte) (string, []byte, error) {
	if len(b) < 4 {
		return "", nil, errors.New("truncated name-list length")
	}
	n := binary.BigEndian.Uint32(b)
	if int(n) > len(b)-4 {
		return "", nil, errors.Errorf("name-list length %d exceeds buffer", n)
	}
	return string(b[4 : 4+n]), b[4+n:], nil
}
