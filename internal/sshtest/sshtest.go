// Package sshtest builds synthetic SSH streams for the analyzer tests,
// so no binary capture fixtures need to live in the tree.
package sshtest

import (
	"encoding/binary"
	"net"
	"time"

	"sshniff/internal/model"
)

// Default KEXINIT lists modelled on an OpenSSH client and server pair that
// negotiate chacha20-poly1305.
var (
	ClientKexLists = [10]string{
		"curve25519-sha256,ecdh-sha2-nistp256,diffie-hellman-group14-sha256",
		"ssh-ed25519,ecdsa-sha2-nistp256,rsa-sha2-512",
		"chacha20-poly1305@openssh.com,aes128-ctr,aes256-gcm@openssh.com",
		"aes128-ctr,chacha20-poly1305@openssh.com,aes256-gcm@openssh.com",
		"umac-64-etm@openssh.com,hmac-sha2-256-etm@openssh.com",
		"umac-64-etm@openssh.com,hmac-sha2-256-etm@openssh.com",
		"none,zlib@openssh.com",
		"none,zlib@openssh.com",
		"",
		"",
	}
	ServerKexLists = [10]string{
		"curve25519-sha256,diffie-hellman-group14-sha256",
		"ssh-ed25519,rsa-sha2-512",
		"chacha20-poly1305@openssh.com,aes256-gcm@openssh.com",
		"chacha20-poly1305@openssh.com,aes256-gcm@openssh.com",
		"umac-64-etm@openssh.com,hmac-sha2-256-etm@openssh.com",
		"umac-64-etm@openssh.com,hmac-sha2-256-etm@openssh.com",
		"none",
		"none",
		"",
		"",
	}
)

// CleartextPacket frames an SSH message in the unencrypted binary packet
// format with an 8-byte padding block.
func CleartextPacket(msgType byte, body []byte) []byte {
	payloadLen := 1 + len(body)
	pad := 8 - (4+1+payloadLen)%8
	if pad < 4 {
		pad += 8
	}
	pktLen := 1 + payloadLen + pad

	out := make([]byte, 4+pktLen)
	binary.BigEndian.PutUint32(out, uint32(pktLen))
	out[4] = byte(pad)
	out[5] = msgType
	copy(out[6:], body)
	return out
}

// KexInitPacket frames a KEXINIT carrying the given ten name-lists.
func KexInitPacket(lists [10]string) []byte {
	var body []byte
	body = append(body, make([]byte, 16)...) // cookie
	for _, list := range lists {
		var l [4]byte
		binary.BigEndian.PutUint32(l[:], uint32(len(list)))
		body = append(body, l[:]...)
		body = append(body, list...)
	}
	body = append(body, 0)          // first_kex_packet_follows
	body = append(body, 0, 0, 0, 0) // reserved
	return CleartextPacket(20, body)
}

// NewKeysPacket frames an SSH_MSG_NEWKEYS.
func NewKeysPacket() []byte {
	return CleartextPacket(21, nil)
}

// StreamBuilder assembles a model.Stream packet by packet, with monotonic
// capture indices, consistent seq/ack numbers and a steadily advancing
// clock.
type StreamBuilder struct {
	stream  *model.Stream
	now     time.Time
	step    time.Duration
	nextSeq [2]uint32
	index   int
}

// NewStreamBuilder starts an empty stream between fixed endpoints.
func NewStreamBuilder() *StreamBuilder {
	return &StreamBuilder{
		stream: &model.Stream{
			Client: model.Endpoint{IP: net.ParseIP("192.168.0.10"), Port: 50222},
			Server: model.Endpoint{IP: net.ParseIP("192.168.0.1"), Port: 22},
		},
		now:  time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		step: 10 * time.Millisecond,
		// client seq space first, server second
		nextSeq: [2]uint32{1000, 9000},
	}
}

// Step overrides the clock advance applied before each packet.
func (b *StreamBuilder) Step(d time.Duration) *StreamBuilder {
	b.step = d
	return b
}

func (b *StreamBuilder) add(dir model.Direction, payload []byte, length int) *StreamBuilder {
	peer := model.ServerToClient
	if dir == model.ServerToClient {
		peer = model.ClientToServer
	}

	b.now = b.now.Add(b.step)
	rec := model.PacketRecord{
		Index:     b.index,
		Timestamp: b.now,
		Seq:       b.nextSeq[dir],
		Ack:       b.nextSeq[peer],
		Length:    length,
		Direction: dir,
		Payload:   payload,
	}
	b.index++
	b.nextSeq[dir] += uint32(length)
	b.stream.Packets = append(b.stream.Packets, rec)
	return b
}

// Client appends a client-to-server packet with the given payload bytes.
func (b *StreamBuilder) Client(payload []byte) *StreamBuilder {
	return b.add(model.ClientToServer, payload, len(payload))
}

// Server appends a server-to-client packet with the given payload bytes.
func (b *StreamBuilder) Server(payload []byte) *StreamBuilder {
	return b.add(model.ServerToClient, payload, len(payload))
}

// ClientLen appends an opaque (post-handshake) client packet of the given
// payload length.
func (b *StreamBuilder) ClientLen(n int) *StreamBuilder {
	return b.add(model.ClientToServer, nil, n)
}

// ServerLen appends an opaque server packet of the given payload length.
func (b *StreamBuilder) ServerLen(n int) *StreamBuilder {
	return b.add(model.ServerToClient, nil, n)
}

// Build returns the assembled stream.
func (b *StreamBuilder) Build() *model.Stream {
	return b.stream
}

// Handshake appends a complete cleartext chacha20-poly1305 handshake:
// banners, KEXINITs, key exchange, and both NEWKEYS (the server's coalesced
// with its KEX reply, as OpenSSH sends them).
func (b *StreamBuilder) Handshake() *StreamBuilder {
	b.Client([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
	b.Server([]byte("SSH-2.0-OpenSSH_8.4p1 Debian-5\r\n"))
	b.Client(KexInitPacket(ClientKexLists))
	b.Server(KexInitPacket(ServerKexLists))
	b.Client(CleartextPacket(30, make([]byte, 36))) // ECDH init
	reply := append(CleartextPacket(31, make([]byte, 180)), NewKeysPacket()...)
	b.Server(reply)
	b.Client(NewKeysPacket())
	return b
}

// ClientNewKeysPos is the position of the client NEWKEYS packet appended by
// Handshake, which is also the stream's encryption boundary.
const ClientNewKeysPos = 6

// Auth appends the encrypted authentication exchange of a chacha20 session
// that succeeds with a password: service request/accept, a "none" attempt,
// the failure prompt, the password, and USERAUTH_SUCCESS (28 bytes).
func (b *StreamBuilder) Auth() *StreamBuilder {
	b.ClientLen(44)  // service request: the keystroke size indicator
	b.ServerLen(44)  // service accept
	b.ClientLen(60)  // userauth request "none"
	b.ServerLen(52)  // failure: the first login prompt
	b.ClientLen(92)  // userauth request with password
	b.ServerLen(28)  // USERAUTH_SUCCESS
	return b
}

// AuthSuccessPos is the position of the USERAUTH_SUCCESS packet appended by
// Handshake().Auth().
const AuthSuccessPos = ClientNewKeysPos + 6

// Session appends a post-auth shell greeting (banner burst and prompt).
func (b *StreamBuilder) Session() *StreamBuilder {
	b.ServerLen(120) // motd
	b.ServerLen(52)  // shell prompt
	return b
}

// Keystroke appends one interactive keystroke and its echo.
func (b *StreamBuilder) Keystroke(size, echoSize int) *StreamBuilder {
	b.ClientLen(size)
	b.ServerLen(echoSize)
	return b
}

// Enter appends the Enter keystroke followed by a command-output burst and
// a fresh prompt.
func (b *StreamBuilder) Enter(size int, burst ...int) *StreamBuilder {
	b.ClientLen(size)
	if len(burst) == 0 {
		burst = []int{100, 52}
	}
	for _, n := range burst {
		b.ServerLen(n)
	}
	return b
}
