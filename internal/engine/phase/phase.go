// Package phase walks a stream's packets to mark protocol phases and locate
// the handshake boundary and the authentication-success packet.
package phase

import (
	"errors"
	"fmt"
	"sort"

	"sshniff/internal/engine/framing"
	"sshniff/internal/engine/protocol"
	"sshniff/internal/model"
)

// Phase of the SSH protocol state machine.
type Phase int

const (
	PhaseBanner Phase = iota
	PhaseKexInit
	PhaseKexExchange
	PhaseNewKeys
	PhaseUserAuth
	PhaseSession
	PhaseClosed
)

var phaseNames = map[Phase]string{
	PhaseBanner:      "Banner",
	PhaseKexInit:     "KexInit",
	PhaseKexExchange: "KexExchange",
	PhaseNewKeys:     "NewKeys",
	PhaseUserAuth:    "UserAuth",
	PhaseSession:     "Session",
	PhaseClosed:      "Closed",
}

func (p Phase) String() string {
	if name, ok := phaseNames[p]; ok {
		return name
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// ErrPhaseInference is returned when the USERAUTH_SUCCESS packet cannot be
// located; keystroke analysis is skipped for the stream.
var ErrPhaseInference = errors.New("failed to locate USERAUTH_SUCCESS")

// handshakeScanLimit bounds how many packets per direction the cleartext
// walker inspects; the handshake of any real session fits well within it.
const handshakeScanLimit = 50

// Result carries everything the cleartext walk discovered. Positions index
// into Stream.Packets; -1 means not found.
type Result struct {
	Reached Phase

	ClientBanner string
	ServerBanner string

	ClientKex *protocol.KexInit
	ServerKex *protocol.KexInit
	// KexUnparseable is set when a KEXINIT was seen but could not be
	// decoded; algorithms degrade to unknown.
	KexUnparseable bool

	// NewKeysPos is the position of the packet containing the second
	// NEWKEYS message: the boundary after which everything is encrypted.
	NewKeysPos int
	// ClientNewKeysPos is the client's own NEWKEYS packet.
	ClientNewKeysPos int
	// HostKeyPos is the server packet carrying the host key (KEX reply).
	HostKeyPos int
	// AuthSuccessPos is the server packet inferred as USERAUTH_SUCCESS.
	AuthSuccessPos int
}

// dirWalker accumulates one direction's cleartext bytes and parses SSH
// records out of them as packets arrive.
type dirWalker struct {
	data    []byte
	pktEnds []int
	pktPos  []int
	parsed  int

	banner     string
	bannerDone bool
	kex        *protocol.KexInit
	kexSeen    bool
	kexErr     error
	newKeysPos int
	hostKeyPos int
	dead       bool
	fed        int
}

func newDirWalker() *dirWalker {
	return &dirWalker{newKeysPos: -1, hostKeyPos: -1}
}

// posAt maps a byte offset in the accumulated buffer back to the stream
// position of the packet that carried it.
func (w *dirWalker) posAt(offset int) int {
	i := sort.SearchInts(w.pktEnds, offset+1)
	if i >= len(w.pktPos) {
		return w.pktPos[len(w.pktPos)-1]
	}
	return w.pktPos[i]
}

// feed appends one packet's payload and parses as far as possible. Returns
// true once the direction's NEWKEYS was seen or the walker gave up.
func (w *dirWalker) feed(rec *model.PacketRecord, streamPos int) bool {
	if w.dead || w.newKeysPos >= 0 {
		return true
	}
	w.fed++
	if w.fed > handshakeScanLimit {
		w.dead = true
		return true
	}

	// A payload truncated by the reader cannot be reassembled past the cut.
	if len(rec.Payload) < rec.Length {
		w.dead = true
	}

	w.data = append(w.data, rec.Payload...)
	w.pktEnds = append(w.pktEnds, len(w.data))
	w.pktPos = append(w.pktPos, streamPos)

	w.parse()
	return w.dead || w.newKeysPos >= 0
}

func (w *dirWalker) parse() {
	if !w.bannerDone {
		banner, consumed, ok := protocol.ParseBanner(w.data[w.parsed:])
		if ok {
			w.banner = banner
			w.parsed += consumed
			w.bannerDone = true
		} else if len(w.data)-w.parsed >= 4 && string(w.data[w.parsed:w.parsed+4]) != "SSH-" {
			// No banner in front of the byte stream; fail soft and try the
			// binary packet layer directly.
			w.bannerDone = true
		} else {
			return
		}
	}

	for {
		pkt, consumed, err := protocol.ParsePacket(w.data[w.parsed:])
		if err != nil {
			if !protocol.IsShort(err) {
				w.dead = true
			}
			return
		}

		endPos := w.posAt(w.parsed + consumed - 1)
		w.parsed += consumed

		switch pkt.Type {
		case protocol.MsgKexInit:
			w.kexSeen = true
			if w.kex == nil {
				kex, kerr := protocol.ParseKexInit(pkt)
				if kerr != nil {
					w.kexErr = kerr
				} else {
					w.kex = kex
				}
			}
		case protocol.MsgKexDHReply:
			if w.hostKeyPos < 0 {
				w.hostKeyPos = endPos
			}
		case protocol.MsgNewKeys:
			w.newKeysPos = endPos
			return
		}
	}
}

// Walk runs the cleartext portion of the state machine over a stream.
func Walk(stream *model.Stream) *Result {
	client := newDirWalker()
	server := newDirWalker()

	for pos := range stream.Packets {
		rec := &stream.Packets[pos]
		w := client
		if rec.Direction == model.ServerToClient {
			w = server
		}
		if w.feed(rec, pos) && client.newKeysPos >= 0 && server.newKeysPos >= 0 {
			break
		}
	}

	res := &Result{
		ClientBanner:     client.banner,
		ServerBanner:     server.banner,
		ClientKex:        client.kex,
		ServerKex:        server.kex,
		KexUnparseable:   client.kexErr != nil || server.kexErr != nil,
		NewKeysPos:       -1,
		ClientNewKeysPos: client.newKeysPos,
		HostKeyPos:       server.hostKeyPos,
		AuthSuccessPos:   -1,
	}

	res.Reached = PhaseBanner
	if client.banner != "" && server.banner != "" {
		res.Reached = PhaseKexInit
	}
	if client.kexSeen && server.kexSeen {
		res.Reached = PhaseKexExchange
	}
	if client.newKeysPos >= 0 && server.newKeysPos >= 0 {
		res.NewKeysPos = client.newKeysPos
		if server.newKeysPos > res.NewKeysPos {
			res.NewKeysPos = server.newKeysPos
		}
		res.Reached = PhaseUserAuth
	}

	return res
}

// authScanLimit bounds how far past the NEWKEYS boundary the success search
// looks; authentication happens promptly or not at all.
const authScanLimit = 40

// LocateAuthSuccess finds the server packet whose TCP payload length equals
// the cipher-specific USERAUTH_SUCCESS footprint. The earliest candidate
// preceded by a client transmission (the password or signature) wins. On
// success the result's AuthSuccessPos and Reached are updated.
func LocateAuthSuccess(stream *model.Stream, res *Result, algs model.AlgorithmSet) error {
	if res.NewKeysPos < 0 {
		return ErrPhaseInference
	}

	expected := framing.DefaultSuccessSizes
	if size, ok := framing.UserauthSuccessSize(algs.EncryptionS2C, algs.MACS2C); ok {
		expected = []int{size}
	}

	clientSent := false
	scanned := 0
	for pos := res.NewKeysPos + 1; pos < len(stream.Packets) && scanned < authScanLimit; pos++ {
		scanned++
		rec := &stream.Packets[pos]
		if rec.Direction == model.ClientToServer {
			clientSent = true
			continue
		}
		if !clientSent {
			continue
		}
		for _, size := range expected {
			if rec.Length == size {
				res.AuthSuccessPos = pos
				res.Reached = PhaseSession
				return nil
			}
		}
	}

	return ErrPhaseInference
}
