package protocol

import (
	"testing"

	"sshniff/internal/model"
	"sshniff/internal/sshtest"
)

func TestParseBanner(t *testing.T) {
	banner, consumed, ok := ParseBanner([]byte("SSH-2.0-OpenSSH_9.6\r\nrest"))
	if !ok {
		t.Fatal("expected banner")
	}
	if banner != "SSH-2.0-OpenSSH_9.6" {
		t.Errorf("banner = %q", banner)
	}
	if consumed != len("SSH-2.0-OpenSSH_9.6\r\n") {
		t.Errorf("consumed = %d", consumed)
	}

	if _, _, ok := ParseBanner([]byte("HTTP/1.1 200 OK\r\n")); ok {
		t.Error("non-SSH payload should not parse as banner")
	}
	if _, _, ok := ParseBanner([]byte("SSH-2.0-partial")); ok {
		t.Error("banner without newline should wait for more data")
	}
}

func TestParsePacket(t *testing.T) {
	raw := sshtest.CleartextPacket(MsgNewKeys, nil)

	pkt, consumed, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}
	if pkt.Type != MsgNewKeys {
		t.Errorf("type = %d, want %d", pkt.Type, MsgNewKeys)
	}
	if consumed != len(raw) {
		t.Errorf("consumed = %d, want %d", consumed, len(raw))
	}

	// Truncated buffer must ask for more data rather than fail.
	if _, _, err := ParsePacket(raw[:5]); !IsShort(err) {
		t.Errorf("expected short-buffer error, got %v", err)
	}
	if _, _, err := ParsePacket(raw[:len(raw)-2]); !IsShort(err) {
		t.Errorf("expected short-buffer error for partial packet, got %v", err)
	}

	// A garbage length field is malformed, not short.
	bad := []byte{0xff, 0xff, 0xff, 0xff, 0, 0}
	if _, _, err := ParsePacket(bad); err == nil || IsShort(err) {
		t.Errorf("expected malformed error, got %v", err)
	}
}

func TestParseKexInit(t *testing.T) {
	raw := sshtest.KexInitPacket(sshtest.ClientKexLists)
	pkt, _, err := ParsePacket(raw)
	if err != nil {
		t.Fatalf("ParsePacket failed: %v", err)
	}

	kex, err := ParseKexInit(pkt)
	if err != nil {
		t.Fatalf("ParseKexInit failed: %v", err)
	}
	if kex.KexAlgorithms != sshtest.ClientKexLists[0] {
		t.Errorf("kex_algorithms = %q", kex.KexAlgorithms)
	}
	if kex.EncryptionC2S != sshtest.ClientKexLists[2] {
		t.Errorf("encryption_c2s = %q", kex.EncryptionC2S)
	}
	if kex.LanguagesS2C != "" {
		t.Errorf("languages_s2c = %q, want empty", kex.LanguagesS2C)
	}

	// Truncating the payload must produce an error, not a panic.
	pkt.Payload = pkt.Payload[:20]
	if _, err := ParseKexInit(pkt); err == nil {
		t.Error("expected error for truncated KEXINIT")
	}
}

func TestHasshDeterministic(t *testing.T) {
	raw := sshtest.KexInitPacket(sshtest.ClientKexLists)
	pkt, _, _ := ParsePacket(raw)
	kex, err := ParseKexInit(pkt)
	if err != nil {
		t.Fatalf("ParseKexInit failed: %v", err)
	}

	first := kex.Hassh(false)
	second := kex.Hassh(false)
	if first != second {
		t.Errorf("hassh not deterministic: %s != %s", first, second)
	}
	if len(first) != 32 {
		t.Errorf("hassh length = %d, want 32 hex chars", len(first))
	}
	if kex.Hassh(true) == first {
		t.Error("including languages must change the fingerprint input")
	}
	if kex.HasshServer(false) == first {
		t.Error("client and server fingerprints must differ for asymmetric lists")
	}
}

func TestNegotiate(t *testing.T) {
	clientPkt, _, _ := ParsePacket(sshtest.KexInitPacket(sshtest.ClientKexLists))
	serverPkt, _, _ := ParsePacket(sshtest.KexInitPacket(sshtest.ServerKexLists))
	client, _ := ParseKexInit(clientPkt)
	server, _ := ParseKexInit(serverPkt)

	algs := Negotiate(client, server)
	if algs.KEX != "curve25519-sha256" {
		t.Errorf("KEX = %q", algs.KEX)
	}
	if algs.EncryptionC2S != "chacha20-poly1305@openssh.com" {
		t.Errorf("EncryptionC2S = %q", algs.EncryptionC2S)
	}
	if algs.MACC2S != "umac-64-etm@openssh.com" {
		t.Errorf("MACC2S = %q", algs.MACC2S)
	}
	if algs.Compression != "none" {
		t.Errorf("Compression = %q", algs.Compression)
	}

	unknown := Negotiate(client, nil)
	if unknown.KEX != model.AlgorithmUnknown {
		t.Errorf("missing server KEXINIT should yield unknown, got %q", unknown.KEX)
	}
}

func TestFirstMatchClientOrderWins(t *testing.T) {
	got := firstMatch("b,a", "a,b")
	if got != "b" {
		t.Errorf("firstMatch = %q, want client preference %q", got, "b")
	}
	if firstMatch("x,y", "a,b") != model.AlgorithmUnknown {
		t.Error("disjoint lists must negotiate to unknown")
	}
}
