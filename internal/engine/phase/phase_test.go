package phase

import (
	"errors"
	"testing"

	"sshniff/internal/engine/protocol"
	"sshniff/internal/model"
	"sshniff/internal/sshtest"
)

func chachaAlgs() model.AlgorithmSet {
	return model.AlgorithmSet{
		KEX:           "curve25519-sha256",
		EncryptionC2S: "chacha20-poly1305@openssh.com",
		EncryptionS2C: "chacha20-poly1305@openssh.com",
		MACC2S:        "implicit",
		MACS2C:        "implicit",
		Compression:   "none",
	}
}

func TestWalkFullHandshake(t *testing.T) {
	stream := sshtest.NewStreamBuilder().Handshake().Auth().Build()

	res := Walk(stream)
	if res.ClientBanner != "SSH-2.0-OpenSSH_9.6" {
		t.Errorf("client banner = %q", res.ClientBanner)
	}
	if res.ServerBanner != "SSH-2.0-OpenSSH_8.4p1 Debian-5" {
		t.Errorf("server banner = %q", res.ServerBanner)
	}
	if res.ClientKex == nil || res.ServerKex == nil {
		t.Fatal("expected both KEXINITs parsed")
	}
	if res.ClientKex.KexAlgorithms != sshtest.ClientKexLists[0] {
		t.Errorf("client kex list = %q", res.ClientKex.KexAlgorithms)
	}
	if res.NewKeysPos != sshtest.ClientNewKeysPos {
		t.Errorf("NewKeysPos = %d, want %d", res.NewKeysPos, sshtest.ClientNewKeysPos)
	}
	if res.HostKeyPos != 5 {
		t.Errorf("HostKeyPos = %d, want 5", res.HostKeyPos)
	}
	if res.Reached != PhaseUserAuth {
		t.Errorf("Reached = %s, want %s", res.Reached, PhaseUserAuth)
	}
}

func TestWalkCoalescedServerNewKeys(t *testing.T) {
	// The server's NEWKEYS rides in the same segment as its KEX reply; the
	// boundary is still the client's own NEWKEYS packet, which comes later.
	stream := sshtest.NewStreamBuilder().Handshake().Build()
	res := Walk(stream)
	if res.NewKeysPos != sshtest.ClientNewKeysPos {
		t.Errorf("NewKeysPos = %d, want %d", res.NewKeysPos, sshtest.ClientNewKeysPos)
	}
}

func TestLocateAuthSuccess(t *testing.T) {
	stream := sshtest.NewStreamBuilder().Handshake().Auth().Build()
	res := Walk(stream)

	if err := LocateAuthSuccess(stream, res, chachaAlgs()); err != nil {
		t.Fatalf("LocateAuthSuccess failed: %v", err)
	}
	if res.AuthSuccessPos != sshtest.AuthSuccessPos {
		t.Errorf("AuthSuccessPos = %d, want %d", res.AuthSuccessPos, sshtest.AuthSuccessPos)
	}
	if res.Reached != PhaseSession {
		t.Errorf("Reached = %s, want %s", res.Reached, PhaseSession)
	}
	if stream.Packets[res.AuthSuccessPos].Length != 28 {
		t.Errorf("success packet length = %d, want 28", stream.Packets[res.AuthSuccessPos].Length)
	}
}

func TestLocateAuthSuccessUnknownTransport(t *testing.T) {
	// With unknown algorithms the search falls back to the default
	// footprint set and still finds the 28-byte packet.
	stream := sshtest.NewStreamBuilder().Handshake().Auth().Build()
	res := Walk(stream)

	algs := protocol.Negotiate(nil, nil)
	if err := LocateAuthSuccess(stream, res, algs); err != nil {
		t.Fatalf("LocateAuthSuccess failed: %v", err)
	}
	if res.AuthSuccessPos != sshtest.AuthSuccessPos {
		t.Errorf("AuthSuccessPos = %d, want %d", res.AuthSuccessPos, sshtest.AuthSuccessPos)
	}
}

func TestTruncatedHandshake(t *testing.T) {
	// Capture cut before NEWKEYS: banners and KEXINIT only.
	b := sshtest.NewStreamBuilder()
	b.Client([]byte("SSH-2.0-OpenSSH_9.6\r\n"))
	b.Server([]byte("SSH-2.0-OpenSSH_8.4p1 Debian-5\r\n"))
	b.Client(sshtest.KexInitPacket(sshtest.ClientKexLists))
	b.Server(sshtest.KexInitPacket(sshtest.ServerKexLists))
	stream := b.Build()

	res := Walk(stream)
	if res.Reached != PhaseKexExchange {
		t.Errorf("Reached = %s, want %s", res.Reached, PhaseKexExchange)
	}
	if res.NewKeysPos != -1 {
		t.Errorf("NewKeysPos = %d, want -1", res.NewKeysPos)
	}

	if err := LocateAuthSuccess(stream, res, chachaAlgs()); !errors.Is(err, ErrPhaseInference) {
		t.Errorf("expected ErrPhaseInference, got %v", err)
	}
}

func TestAuthSuccessRequiresClientTransmission(t *testing.T) {
	// A 28-byte server packet straight after NEWKEYS is not a success
	// marker; the client must have sent its credentials first.
	b := sshtest.NewStreamBuilder().Handshake()
	b.ServerLen(28)
	b.ClientLen(44)
	b.ServerLen(44)
	b.ClientLen(92)
	b.ServerLen(28)
	stream := b.Build()

	res := Walk(stream)
	if err := LocateAuthSuccess(stream, res, chachaAlgs()); err != nil {
		t.Fatalf("LocateAuthSuccess failed: %v", err)
	}
	want := sshtest.ClientNewKeysPos + 5
	if res.AuthSuccessPos != want {
		t.Errorf("AuthSuccessPos = %d, want %d", res.AuthSuccessPos, want)
	}
}
