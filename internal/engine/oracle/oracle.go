// Package oracle derives the expected encrypted size of a single keystroke
// packet for a session's negotiated transport.
package oracle

import (
	"errors"
	"log"

	"sshniff/internal/config"
	"sshniff/internal/engine/framing"
	"sshniff/internal/engine/phase"
	"sshniff/internal/model"
)

// ErrKeystrokeSizeUnknown is returned when no method could settle on a
// keystroke size; the classifier then produces no sequences.
var ErrKeystrokeSizeUnknown = errors.New("keystroke size unknown")

// indicatorDelta separates the NEWKEYS+1 size-indicator packet from the
// keystroke footprint it predicts.
const indicatorDelta = 8

// clusterScanLimit is how many post-login client packets the fallback
// clustering method inspects.
const clusterScanLimit = 50

// clusterMinMembers is the smallest cluster accepted as the keystroke size.
const clusterMinMembers = 3

// Result of keystroke size inference.
type Result struct {
	// KeystrokeSize is the inferred client keystroke TCP payload length K.
	KeystrokeSize int
	// PromptSize is the server packet length taken as the login prompt
	// footprint P, negative per the signed server-length convention.
	PromptSize int
	// IndicatorPos is the NEWKEYS+1 packet position, -1 when unavailable.
	IndicatorPos int
	// PromptPos is the first-login-prompt packet position, -1 when
	// unavailable.
	PromptPos int
}

// Infer determines the keystroke and prompt footprints for a stream.
//
// The NEWKEYS+1 size indicator is the primary source; the modal-cluster
// fallback cross-checks it and wins on disagreement. A transport in the
// framing tables contributes a derived expectation used as a last resort.
func Infer(stream *model.Stream, ph *phase.Result, algs model.AlgorithmSet, cfg config.Analyzer) (*Result, error) {
	res := &Result{IndicatorPos: -1, PromptPos: -1}

	if ph.NewKeysPos < 0 {
		return res, ErrKeystrokeSizeUnknown
	}

	// Delayed compression makes keystroke sizes variable; nothing to infer.
	if algs.Compression != "" && algs.Compression != "none" && algs.Compression != model.AlgorithmUnknown {
		log.Printf("Stream %d: compression %q negotiated, keystroke sizes are variable.", stream.ID, algs.Compression)
		return res, ErrKeystrokeSizeUnknown
	}

	indicator := 0
	if pos := ph.NewKeysPos + 1; pos < len(stream.Packets) {
		res.IndicatorPos = pos
		indicator = stream.Packets[pos].Length - indicatorDelta
	}

	if pos := ph.NewKeysPos + 4; pos < len(stream.Packets) {
		res.PromptPos = pos
		res.PromptSize = stream.Packets[pos].SignedLength()
	}

	start := ph.AuthSuccessPos
	if start < 0 {
		start = ph.NewKeysPos
	}
	cluster := clusterSize(stream, start+1)

	derived, haveDerived := framing.KeystrokeSize(algs.EncryptionC2S, algs.MACC2S)

	switch {
	case cluster > 0 && indicator == cluster:
		res.KeystrokeSize = cluster
	case cluster > 0:
		if indicator > 0 {
			log.Printf("Stream %d: disagreement when finding keystroke size (indicator %d, cluster %d). Relying on cluster method.", stream.ID, indicator, cluster)
		}
		res.KeystrokeSize = cluster
	case indicator > 0:
		res.KeystrokeSize = indicator
	case haveDerived:
		res.KeystrokeSize = derived
	default:
		return res, ErrKeystrokeSizeUnknown
	}

	if haveDerived && derived != res.KeystrokeSize {
		log.Printf("Stream %d: observed keystroke size %d differs from framing-derived %d for %s/%s.",
			stream.ID, res.KeystrokeSize, derived, algs.EncryptionC2S, algs.MACC2S)
	}

	return res, nil
}

// clusterSize returns the modal value of the smallest client packet size
// cluster after the given position, or 0 when no cluster has enough
// members. This is the alternative method for sessions where the NEWKEYS+1
// indicator is unusable.
func clusterSize(stream *model.Stream, start int) int {
	counts := make(map[int]int)
	seen := 0
	for pos := start; pos < len(stream.Packets) && seen < clusterScanLimit; pos++ {
		rec := &stream.Packets[pos]
		if rec.Direction != model.ClientToServer {
			continue
		}
		seen++
		counts[rec.Length]++
	}

	best := 0
	for size, n := range counts {
		if n < clusterMinMembers {
			continue
		}
		if best == 0 || size < best {
			best = size
		}
	}
	return best
}
