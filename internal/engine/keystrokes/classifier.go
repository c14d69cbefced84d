// Package keystrokes labels post-authentication client packets as
// interactive input, pairs them with their server echoes, and groups them
// into Enter-terminated sequences with inter-arrival latencies.
package keystrokes

import (
	"log"
	"time"

	"sshniff/internal/config"
	"sshniff/internal/model"
)

// echoScanLimit bounds how far ahead the pairing looks for a server echo;
// echoes arrive promptly even when slightly reordered.
const echoScanLimit = 10

// arrowDelta is the cipher-block echo size shift produced by horizontal
// cursor movement.
const arrowDelta = 8

// Classify iterates the client packets after startPos, labelling those of
// keystroke size and grouping them into sequences. A trailing run of events
// with no terminating Enter is dropped so every returned sequence ends in
// exactly one Enter.
func Classify(stream *model.Stream, startPos, keystrokeSize, promptSize int, cfg config.Analyzer) []model.KeystrokeSequence {
	pkts := stream.Packets
	eps := int(cfg.SizeToleranceBytes)
	deadline := cfg.PairingDeadline()
	window := cfg.EchoWindow()

	var sequences []model.KeystrokeSequence
	var current []model.KeystrokeEvent
	echoCounts := make(map[int]int)
	used := make(map[int]bool)

	// modalEcho is the most common echo size seen in the current sequence,
	// defaulting to the keystroke size itself before any echo was observed.
	modalEcho := func() int {
		best, bestN := keystrokeSize, 0
		for size, n := range echoCounts {
			if n > bestN || (n == bestN && size < best) {
				best, bestN = size, n
			}
		}
		return best
	}

	closeSequence := func(footprint uint64) {
		if len(current) == 0 {
			return
		}
		seq := model.KeystrokeSequence{
			Events:            current,
			ResponseFootprint: footprint,
		}
		seq.DurationMicros = current[len(current)-1].Timestamp.Sub(current[0].Timestamp).Microseconds()
		sequences = append(sequences, seq)
		current = nil
		echoCounts = make(map[int]int)
	}

	pos := startPos + 1
	for pos < len(pkts) {
		rec := &pkts[pos]
		if rec.Direction != model.ClientToServer || !within(rec.Length, keystrokeSize, eps) {
			pos++
			continue
		}

		echoPos := findEcho(pkts, pos, used, deadline)

		ev := model.KeystrokeEvent{
			Index:     rec.Index,
			Seq:       rec.Seq,
			Timestamp: rec.Timestamp,
			Type:      model.KeystrokeUnknown,
		}
		if len(current) > 0 {
			ev.LatencyMicros = rec.Timestamp.Sub(current[len(current)-1].Timestamp).Microseconds()
		}

		if echoPos < 0 {
			current = append(current, ev)
			pos++
			continue
		}

		echo := &pkts[echoPos]
		used[echoPos] = true
		ev.Echo = &model.Echo{Index: echo.Index, Length: echo.Length}

		burst := isBurst(pkts, pos, echoPos)
		inWindow := echo.Timestamp.Sub(rec.Timestamp) <= window
		s0 := modalEcho()
		prompt := promptSize
		if prompt < 0 {
			prompt = -prompt
		}

		switch {
		case !inWindow:
			// An echo slower than the terminal's round trip is not an echo.
			ev.Type = model.KeystrokeUnknown
		case burst || echo.Length == prompt:
			ev.Type = model.KeystrokeEnter
		case echo.Length == s0:
			ev.Type = model.KeystrokeRegular
		case echo.Length == s0+arrowDelta || echo.Length == s0-arrowDelta:
			ev.Type = model.KeystrokeArrowHorizontal
		case echo.Length > s0+arrowDelta && within(echo.Length, prompt, eps):
			// A full-line redraw the size of the prompt means history
			// scrolling.
			ev.Type = model.KeystrokeArrowVertical
		case echo.Length > s0+arrowDelta:
			ev.Type = model.KeystrokeTab
		case echo.Length < s0:
			ev.Type = model.KeystrokeDelete
		default:
			ev.Type = model.KeystrokeUnknown
		}

		if ev.Type == model.KeystrokeRegular {
			echoCounts[echo.Length]++
		}

		current = append(current, ev)

		if ev.Type == model.KeystrokeEnter {
			footprint, next := responseFootprint(pkts, pos, keystrokeSize, eps)
			closeSequence(footprint)
			pos = next
			continue
		}

		if echoPos == pos+1 {
			pos = echoPos + 1
		} else {
			pos++
		}
	}

	if len(current) > 0 {
		log.Printf("Stream %d: dropping %d trailing keystrokes with no terminating Enter.", stream.ID, len(current))
	}

	return sequences
}

func within(length, target, eps int) bool {
	d := length - target
	if d < 0 {
		d = -d
	}
	return d <= eps
}

// findEcho locates the server packet answering the client packet at pos:
// the next unconsumed server-to-client packet whose ack covers the
// keystroke's data, within the pairing deadline.
func findEcho(pkts []model.PacketRecord, pos int, used map[int]bool, deadline time.Duration) int {
	rec := &pkts[pos]
	covered := rec.Seq + uint32(rec.Length)
	for i := pos + 1; i < len(pkts) && i <= pos+echoScanLimit; i++ {
		cand := &pkts[i]
		if cand.Direction != model.ServerToClient || used[i] {
			continue
		}
		if cand.Timestamp.Sub(rec.Timestamp) > deadline {
			return -1
		}
		if ackCovers(cand.Ack, covered) {
			return i
		}
	}
	return -1
}

// ackCovers reports whether ack acknowledges at least up to seq, modulo
// 32-bit wraparound.
func ackCovers(ack, seq uint32) bool {
	return int32(ack-seq) >= 0
}

// isBurst reports whether the server reply to the client packet at pos is a
// multi-packet burst, the signature of a command being executed.
func isBurst(pkts []model.PacketRecord, pos, echoPos int) bool {
	serverRun := 0
	for i := pos + 1; i < len(pkts) && i <= echoPos+1; i++ {
		if pkts[i].Direction == model.ServerToClient {
			serverRun++
			if serverRun >= 2 {
				return true
			}
		}
	}
	return false
}

// responseFootprint sums the server payload sent after the Enter at pos
// until the next keystroke-sized client packet, returning the sum and the
// position to resume scanning from.
func responseFootprint(pkts []model.PacketRecord, pos, keystrokeSize, eps int) (uint64, int) {
	var sum uint64
	i := pos + 1
	for ; i < len(pkts); i++ {
		if pkts[i].Direction == model.ClientToServer {
			if within(pkts[i].Length, keystrokeSize, eps) {
				break
			}
			continue
		}
		sum += uint64(pkts[i].Length)
	}
	return sum, i
}
