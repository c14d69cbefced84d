package framing

import "testing"

func TestUserauthSuccessFootprints(t *testing.T) {
	cases := []struct {
		cipher string
		mac    string
		want   int
	}{
		{"chacha20-poly1305@openssh.com", ImplicitMAC, 28},
		{"aes128-gcm@openssh.com", ImplicitMAC, 36},
		{"aes256-gcm@openssh.com", ImplicitMAC, 36},
		{"aes128-ctr", "umac-64-etm@openssh.com", 28},
		{"aes256-ctr", "umac-64-etm@openssh.com", 28},
		{"aes256-ctr", "hmac-sha2-256-etm@openssh.com", 52},
	}

	for _, c := range cases {
		got, ok := UserauthSuccessSize(c.cipher, c.mac)
		if !ok {
			t.Errorf("UserauthSuccessSize(%s, %s) not derivable", c.cipher, c.mac)
			continue
		}
		if got != c.want {
			t.Errorf("UserauthSuccessSize(%s, %s) = %d, want %d", c.cipher, c.mac, got, c.want)
		}
	}
}

func TestKeystrokeFootprints(t *testing.T) {
	cases := []struct {
		cipher string
		mac    string
		want   int
	}{
		{"chacha20-poly1305@openssh.com", ImplicitMAC, 36},
		{"aes256-gcm@openssh.com", ImplicitMAC, 36},
		{"aes128-ctr", "umac-64-etm@openssh.com", 28},
	}

	for _, c := range cases {
		got, ok := KeystrokeSize(c.cipher, c.mac)
		if !ok {
			t.Fatalf("KeystrokeSize(%s, %s) not derivable", c.cipher, c.mac)
		}
		if got != c.want {
			t.Errorf("KeystrokeSize(%s, %s) = %d, want %d", c.cipher, c.mac, got, c.want)
		}
	}
}

func TestFramedSizePadding(t *testing.T) {
	// Padding must be minimal but at least 4 bytes, and the padded region a
	// block multiple.
	for payload := 1; payload < 64; payload++ {
		for _, block := range []int{8, 16} {
			size := FramedSize(payload, block, 4, 16)
			region := size - 4 - 16
			if region%block != 0 {
				t.Fatalf("payload %d block %d: padded region %d not a block multiple", payload, block, region)
			}
			pad := region - 1 - payload
			if pad < 4 || pad >= block+4 {
				t.Fatalf("payload %d block %d: padding %d out of range", payload, block, pad)
			}
		}
	}
}

func TestUnknownTransport(t *testing.T) {
	if _, ok := UserauthSuccessSize("unknown", "unknown"); ok {
		t.Error("expected failure for unknown cipher")
	}
	if _, ok := UserauthSuccessSize("aes256-ctr", "unknown"); ok {
		t.Error("expected failure for unknown MAC with non-AEAD cipher")
	}
	if _, ok := UserauthSuccessSize("chacha20-poly1305@openssh.com", "unknown"); !ok {
		t.Error("AEAD ciphers must not require a known MAC")
	}
}

func TestIsAEADOrEtM(t *testing.T) {
	if !IsAEADOrEtM("chacha20-poly1305@openssh.com", ImplicitMAC) {
		t.Error("chacha20-poly1305 is AEAD")
	}
	if !IsAEADOrEtM("aes256-ctr", "hmac-sha2-256-etm@openssh.com") {
		t.Error("etm MAC should count")
	}
	if IsAEADOrEtM("aes256-ctr", "hmac-sha2-256") {
		t.Error("plain hmac is neither AEAD nor EtM")
	}
}
