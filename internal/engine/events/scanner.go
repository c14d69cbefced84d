// Package events finds timeline events in a stream: host-key acceptance,
// public-key offers and their outcomes, login prompts.
package events

import (
	"log"

	"sshniff/internal/engine/phase"
	"sshniff/internal/model"
)

// offerBands maps client USERAUTH_REQUEST packet lengths to the offered key
// type. The ranges cover the common key sizes (RSA 2048/3072/4096, ECDSA
// P-256/384/521, Ed25519) across the supported transports.
var offerBands = []struct {
	kind model.EventKind
	lo   int
	hi   int
}{
	{model.EventOfferRSAKey, 492, 500},
	{model.EventOfferECDSAKey, 188, 212},
	{model.EventOfferEd25519Key, 140, 148},
}

func classifyOffer(length int) (model.EventKind, bool) {
	for _, band := range offerBands {
		if length >= band.lo && length <= band.hi {
			return band.kind, true
		}
	}
	return model.EventOfferUnknownKey, false
}

func eventAt(stream *model.Stream, pos int, kind model.EventKind) model.TimelineEvent {
	rec := &stream.Packets[pos]
	return model.TimelineEvent{Index: rec.Index, Seq: rec.Seq, Kind: kind}
}

// ScanHostKeyAccept finds the client's acceptance of the server host key:
// the first client packet after the server's KEX reply (which carries the
// host key), before the encryption switch. Returns nil when the handshake
// was truncated.
func ScanHostKeyAccept(stream *model.Stream, ph *phase.Result) *model.TimelineEvent {
	hostKeyPos := ph.HostKeyPos
	if hostKeyPos < 0 {
		// Fall back to the first large server packet of the exchange.
		limit := ph.NewKeysPos
		if limit < 0 || limit > len(stream.Packets) {
			limit = len(stream.Packets)
		}
		for pos := 0; pos < limit; pos++ {
			rec := &stream.Packets[pos]
			if rec.Direction == model.ServerToClient && rec.Length > 400 {
				hostKeyPos = pos
				break
			}
		}
	}
	if hostKeyPos < 0 {
		return nil
	}

	for pos := hostKeyPos + 1; pos < len(stream.Packets); pos++ {
		if ph.NewKeysPos >= 0 && pos > ph.NewKeysPos {
			break
		}
		if stream.Packets[pos].Direction == model.ClientToServer {
			ev := eventAt(stream, pos, model.EventHostKeyAccepted)
			return &ev
		}
	}
	return nil
}

// ScanLoginData walks the server prompts between the first login prompt and
// the authentication success, classifying each client transmission as a key
// offer (by size band) or a password attempt, and each outcome as rejected
// or accepted.
func ScanLoginData(stream *model.Stream, promptPos int, promptSize int, successPos int) []model.TimelineEvent {
	var out []model.TimelineEvent
	if promptPos < 0 || successPos < 0 || promptPos >= len(stream.Packets) {
		return out
	}

	ptr := promptPos
	for ptr+2 < len(stream.Packets) && ptr < successPos {
		next := &stream.Packets[ptr+1]
		nextNext := &stream.Packets[ptr+2]

		// A client packet sandwiched between prompt-sized server packets is
		// a failed attempt: either a rejected key offer or a wrong password.
		if nextNext.SignedLength() == promptSize {
			if kind, isOffer := classifyOffer(next.SignedLength()); isOffer {
				out = append(out, eventAt(stream, ptr+1, kind))
				out = append(out, eventAt(stream, ptr+2, model.EventRejectedKey))
			} else {
				out = append(out, eventAt(stream, ptr+2, model.EventWrongPassword))
			}
		} else if ptr+2 == successPos {
			if stream.Packets[ptr].SignedLength() == promptSize {
				out = append(out, eventAt(stream, ptr+2, model.EventCorrectPassword))
			}
			break
		} else {
			// The response is not another prompt: the offer was accepted, or
			// a password was right.
			if kind, isOffer := classifyOffer(next.SignedLength()); isOffer {
				out = append(out, eventAt(stream, ptr+1, kind))
				out = append(out, eventAt(stream, ptr+2, model.EventAcceptedKey))
			} else {
				out = append(out, eventAt(stream, ptr+2, model.EventCorrectPassword))
			}
			if ptr+4 >= successPos {
				break
			}
		}

		ptr += 2
	}

	if len(out) == 0 {
		log.Printf("Stream %d: no login events between prompt and auth success.", stream.ID)
	}
	return out
}
