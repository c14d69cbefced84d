package framing

import "strings"

// Cipher describes the framing-relevant parameters of an SSH transport
// cipher. Adding a cipher is a table edit; no scanner logic changes.
type Cipher struct {
	Name      string
	BlockSize int
	IVLen     int
	// AuthLen is the AEAD tag length; zero for non-AEAD ciphers, whose tag
	// comes from the negotiated MAC instead.
	AuthLen int
	AEAD    bool
}

// MAC describes a MAC algorithm's tag length and mode.
type MAC struct {
	Name   string
	TagLen int
	// EtM MACs leave the packet length field unencrypted, which changes the
	// framing arithmetic the same way AEAD does.
	EtM bool
}

// ImplicitMAC is the MAC name recorded for AEAD ciphers, which carry their
// own authentication tag.
const ImplicitMAC = "implicit"

var ciphers = map[string]Cipher{
	"chacha20-poly1305@openssh.com": {Name: "chacha20-poly1305@openssh.com", BlockSize: 8, IVLen: 8, AuthLen: 16, AEAD: true},
	"aes128-gcm@openssh.com":        {Name: "aes128-gcm@openssh.com", BlockSize: 16, IVLen: 12, AuthLen: 16, AEAD: true},
	"aes256-gcm@openssh.com":        {Name: "aes256-gcm@openssh.com", BlockSize: 16, IVLen: 12, AuthLen: 16, AEAD: true},
	"aes128-ctr":                    {Name: "aes128-ctr", BlockSize: 16, IVLen: 16},
	"aes192-ctr":                    {Name: "aes192-ctr", BlockSize: 16, IVLen: 16},
	"aes256-ctr":                    {Name: "aes256-ctr", BlockSize: 16, IVLen: 16},
	"aes128-cbc":                    {Name: "aes128-cbc", BlockSize: 16, IVLen: 16},
	"aes256-cbc":                    {Name: "aes256-cbc", BlockSize: 16, IVLen: 16},
	"3des-cbc":                      {Name: "3des-cbc", BlockSize: 8, IVLen: 8},
}

var macs = map[string]MAC{
	"umac-64-etm@openssh.com":       {Name: "umac-64-etm@openssh.com", TagLen: 8, EtM: true},
	"umac-128-etm@openssh.com":      {Name: "umac-128-etm@openssh.com", TagLen: 16, EtM: true},
	"hmac-sha1-etm@openssh.com":     {Name: "hmac-sha1-etm@openssh.com", TagLen: 20, EtM: true},
	"hmac-sha2-256-etm@openssh.com": {Name: "hmac-sha2-256-etm@openssh.com", TagLen: 32, EtM: true},
	"hmac-sha2-512-etm@openssh.com": {Name: "hmac-sha2-512-etm@openssh.com", TagLen: 64, EtM: true},
	"umac-64@openssh.com":           {Name: "umac-64@openssh.com", TagLen: 8},
	"umac-128@openssh.com":          {Name: "umac-128@openssh.com", TagLen: 16},
	"hmac-sha1":                     {Name: "hmac-sha1", TagLen: 20},
	"hmac-sha1-96":                  {Name: "hmac-sha1-96", TagLen: 12},
	"hmac-md5":                      {Name: "hmac-md5", TagLen: 16},
	"hmac-sha2-256":                 {Name: "hmac-sha2-256", TagLen: 32},
	"hmac-sha2-512":                 {Name: "hmac-sha2-512", TagLen: 64},
}

// LookupCipher returns the framing parameters for a cipher name.
func LookupCipher(name string) (Cipher, bool) {
	c, ok := ciphers[name]
	return c, ok
}

// LookupMAC returns the parameters for a MAC name.
func LookupMAC(name string) (MAC, bool) {
	m, ok := macs[name]
	return m, ok
}

// FramedSize computes the TCP payload length of an SSH packet from its
// plaintext payload length and the transport parameters.
//
// With aadLen > 0 (AEAD or EtM), the 4-byte length field is associated data:
// padding brings pad_len+payload to a block multiple and the tag follows.
// With aadLen == 0 the length field is part of the encrypted region.
// Padding is minimal but at least 4 bytes in either case.
func FramedSize(payloadLen, blockSize, aadLen, authLen int) int {
	enc := 1 + payloadLen // pad_len byte + payload
	if aadLen == 0 {
		enc += 4
	}
	pad := blockSize - enc%blockSize
	if pad < 4 {
		pad += blockSize
	}
	return aadLen + enc + pad + authLen
}

// Params resolves the (block, aad, auth) triple for a negotiated cipher/MAC
// pair. Returns false when either algorithm is not in the tables.
func Params(cipherName, macName string) (block, aad, auth int, ok bool) {
	c, found := LookupCipher(cipherName)
	if !found {
		return 0, 0, 0, false
	}
	if c.AEAD {
		return c.BlockSize, 4, c.AuthLen, true
	}
	m, found := LookupMAC(macName)
	if !found {
		return 0, 0, 0, false
	}
	if m.EtM {
		return c.BlockSize, 4, m.TagLen, true
	}
	return c.BlockSize, 0, m.TagLen, true
}

// userauthSuccessPayload is the plaintext size of SSH_MSG_USERAUTH_SUCCESS:
// the single type byte.
const userauthSuccessPayload = 1

// keystrokePayload is the plaintext size of a one-byte interactive
// SSH_MSG_CHANNEL_DATA packet: type(1) + recipient(4) + strlen(4) + data(1).
const keystrokePayload = 10

// UserauthSuccessSize returns the expected TCP payload length of the
// USERAUTH_SUCCESS packet under the given transport.
func UserauthSuccessSize(cipherName, macName string) (int, bool) {
	block, aad, auth, ok := Params(cipherName, macName)
	if !ok {
		return 0, false
	}
	return FramedSize(userauthSuccessPayload, block, aad, auth), true
}

// KeystrokeSize returns the expected TCP payload length of a single
// encrypted keystroke under the given transport.
func KeystrokeSize(cipherName, macName string) (int, bool) {
	block, aad, auth, ok := Params(cipherName, macName)
	if !ok {
		return 0, false
	}
	return FramedSize(keystrokePayload, block, aad, auth), true
}

// DefaultSuccessSizes are the USERAUTH_SUCCESS footprints observed across
// the common OpenSSH defaults, used when the negotiated transport is not in
// the tables.
var DefaultSuccessSizes = []int{28, 36}

// IsAEADOrEtM reports whether the transport leaves the length field
// unencrypted.
func IsAEADOrEtM(cipherName, macName string) bool {
	if c, ok := LookupCipher(cipherName); ok && c.AEAD {
		return true
	}
	return strings.Contains(macName, "-etm@")
}
