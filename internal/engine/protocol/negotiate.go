package protocol

import (
	"strings"

	"sshniff/internal/model"
)

// firstMatch applies the RFC 4253 negotiation rule: the first algorithm in
// the client's list that the server also offers.
func firstMatch(client, server string) string {
	serverSet := make(map[string]struct{})
	for _, name := range strings.Split(server, ",") {
		serverSet[name] = struct{}{}
	}
	for _, name := range strings.Split(client, ",") {
		if _, ok := serverSet[name]; ok {
			return name
		}
	}
	return model.AlgorithmUnknown
}

// Negotiate derives the session's AlgorithmSet from both KEXINIT payloads.
// Either side may be nil, in which case every field is unknown.
func Negotiate(client, server *KexInit) model.AlgorithmSet {
	if client == nil || server == nil {
		return model.AlgorithmSet{
			KEX:           model.AlgorithmUnknown,
			HostKey:       model.AlgorithmUnknown,
			EncryptionC2S: model.AlgorithmUnknown,
			EncryptionS2C: model.AlgorithmUnknown,
			MACC2S:        model.AlgorithmUnknown,
			MACS2C:        model.AlgorithmUnknown,
			Compression:   model.AlgorithmUnknown,
		}
	}

	return model.AlgorithmSet{
		KEX:           firstMatch(client.KexAlgorithms, server.KexAlgorithms),
		HostKey:       firstMatch(client.ServerHostKeyAlgorithms, server.ServerHostKeyAlgorithms),
		EncryptionC2S: firstMatch(client.EncryptionC2S, server.EncryptionC2S),
		EncryptionS2C: firstMatch(client.EncryptionS2C, server.EncryptionS2C),
		MACC2S:        firstMatch(client.MACC2S, server.MACC2S),
		MACS2C:        firstMatch(client.MACS2C, server.MACS2C),
		Compression:   firstMatch(client.CompressionC2S, server.CompressionC2S),
	}
}
