package protocol

import (
	"crypto/md5"
	"encoding/hex"
	"strings"
)

// hasshFieldDelimiter separates the algorithm lists in the fingerprint
// input, per the Salesforce HASSH definition.
const hasshFieldDelimiter = ";"

// Hassh computes the client fingerprint: MD5 over the client's kex,
// enc_c2s, mac_c2s and comp_c2s lists. When includeLanguages is set, the
// language lists are appended to the input (non-standard, but occasionally
// useful to separate otherwise identical builds).
func (k *KexInit) Hassh(includeLanguages bool) string {
	fields := []string{k.KexAlgorithms, k.EncryptionC2S, k.MACC2S, k.CompressionC2S}
	if includeLanguages {
		fields = append(fields, k.LanguagesC2S)
	}
	return md5Hex(strings.Join(fields, hasshFieldDelimiter))
}

// HasshServer computes the server fingerprint, mirrored onto the
// server-to-client lists.
func (k *KexInit) HasshServer(includeLanguages bool) string {
	fields := []string{k.KexAlgorithms, k.EncryptionS2C, k.MACS2C, k.CompressionS2C}
	if includeLanguages {
		fields = append(fields, k.LanguagesS2C)
	}
	return md5Hex(strings.Join(fields, hasshFieldDelimiter))
}

func md5Hex(s string) string {
	sum := md5.Sum([]byte(s))
	return hex.EncodeToString(sum[:])
}
