// Package analyzer orchestrates the per-stream pipeline: phase walk,
// negotiation, size inference, event scanning, keystroke classification,
// report assembly.
package analyzer

import (
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"

	"sshniff/internal/config"
	"sshniff/internal/engine/events"
	"sshniff/internal/engine/framing"
	"sshniff/internal/engine/keystrokes"
	"sshniff/internal/engine/oracle"
	"sshniff/internal/engine/phase"
	"sshniff/internal/engine/protocol"
	"sshniff/internal/model"
)

// ErrInternalInconsistency indicates a broken stream invariant; it points at
// a bug rather than at the capture.
var ErrInternalInconsistency = errors.New("internal inconsistency")

const timeLayout = "2006-01-02 15:04:05"

// validate re-checks the stream invariants the demuxer is supposed to
// guarantee: capture indices strictly increasing, per-direction TCP seq
// monotonic.
func validate(stream *model.Stream) error {
	lastIndex := -1
	var lastSeq [2]uint32
	var seqSeen [2]bool
	for i := range stream.Packets {
		rec := &stream.Packets[i]
		if rec.Index <= lastIndex {
			return fmt.Errorf("%w: stream %d capture index %d after %d", ErrInternalInconsistency, stream.ID, rec.Index, lastIndex)
		}
		lastIndex = rec.Index
		d := rec.Direction
		if seqSeen[d] && int32(rec.Seq-lastSeq[d]) < 0 {
			return fmt.Errorf("%w: stream %d seq %d regressed below %d", ErrInternalInconsistency, stream.ID, rec.Seq, lastSeq[d])
		}
		lastSeq[d] = rec.Seq
		seqSeen[d] = true
	}
	return nil
}

// Analyze runs the full pipeline over a single stream. Per-stream problems
// degrade the report and are recorded in its Notes; the only returned error
// is an invariant violation.
func Analyze(stream *model.Stream, cfg config.Analyzer, metaOnly bool) (*model.StreamReport, error) {
	if err := validate(stream); err != nil {
		return nil, err
	}

	report := &model.StreamReport{
		StreamID: stream.ID,
		Client:   stream.Client.String(),
		Server:   stream.Server.String(),
		StartUTC: stream.FirstSeen().UTC().Format(timeLayout),
		EndUTC:   stream.LastSeen().UTC().Format(timeLayout),
	}

	ph := phase.Walk(stream)
	report.ClientBanner = ph.ClientBanner
	report.ServerBanner = ph.ServerBanner

	algs := protocol.Negotiate(ph.ClientKex, ph.ServerKex)
	if c, ok := framing.LookupCipher(algs.EncryptionC2S); ok && c.AEAD {
		algs.MACC2S = framing.ImplicitMAC
	}
	if c, ok := framing.LookupCipher(algs.EncryptionS2C); ok && c.AEAD {
		algs.MACS2C = framing.ImplicitMAC
	}
	report.Algorithms = algs

	if ph.ClientKex != nil {
		report.HasshClient = ph.ClientKex.Hassh(cfg.HasshIncludeLanguages)
	}
	if ph.ServerKex != nil {
		report.HasshServer = ph.ServerKex.HasshServer(cfg.HasshIncludeLanguages)
	}
	if ph.ClientKex == nil || ph.ServerKex == nil || ph.KexUnparseable {
		report.Notes = append(report.Notes, "malformed or incomplete handshake, algorithms may be unknown")
	}

	var timeline []model.TimelineEvent

	if ev := events.ScanHostKeyAccept(stream, ph); ev != nil {
		timeline = append(timeline, *ev)
	}

	if ph.NewKeysPos >= 0 {
		timeline = append(timeline, eventAt(stream, ph.NewKeysPos, model.EventNewKeys))
	} else {
		report.Notes = append(report.Notes, fmt.Sprintf("capture truncated during %s, no encrypted phase analysis", ph.Reached))
		report.Timeline = timeline
		return report, nil
	}

	if err := phase.LocateAuthSuccess(stream, ph, algs); err != nil {
		report.Notes = append(report.Notes, "USERAUTH_SUCCESS not locatable, keystroke analysis skipped")
	}

	inference, oerr := oracle.Infer(stream, ph, algs, cfg)
	if oerr != nil {
		report.Notes = append(report.Notes, "keystroke size unknown")
	}
	report.KeystrokeSize = inference.KeystrokeSize
	report.PromptSize = inference.PromptSize

	if inference.IndicatorPos >= 0 {
		timeline = append(timeline, eventAt(stream, inference.IndicatorPos, model.EventKeystrokeSizeIndicator))
	}
	if inference.PromptPos >= 0 {
		timeline = append(timeline, eventAt(stream, inference.PromptPos, model.EventFirstLoginPrompt))
	}

	if ph.AuthSuccessPos >= 0 {
		timeline = append(timeline, events.ScanLoginData(stream, inference.PromptPos, inference.PromptSize, ph.AuthSuccessPos)...)
		timeline = append(timeline, eventAt(stream, ph.AuthSuccessPos, model.EventUserAuthSuccess))
	}

	sort.SliceStable(timeline, func(i, j int) bool { return timeline[i].Index < timeline[j].Index })
	report.Timeline = timeline

	if !metaOnly && oerr == nil && ph.AuthSuccessPos >= 0 {
		report.Sequences = keystrokes.Classify(stream, ph.AuthSuccessPos, inference.KeystrokeSize, inference.PromptSize, cfg)
	}

	return report, nil
}

func eventAt(stream *model.Stream, pos int, kind model.EventKind) model.TimelineEvent {
	rec := &stream.Packets[pos]
	return model.TimelineEvent{Index: rec.Index, Seq: rec.Seq, Kind: kind}
}

// AnalyzeAll analyses every stream, one goroutine per stream. Streams share
// no mutable state, so the only coordination is the final join. Reports
// come back in stream order.
func AnalyzeAll(streams []*model.Stream, cfg config.Analyzer, metaOnly bool) ([]*model.StreamReport, error) {
	reports := make([]*model.StreamReport, len(streams))
	errs := make([]error, len(streams))

	var wg sync.WaitGroup
	wg.Add(len(streams))
	for i, stream := range streams {
		go func(i int, stream *model.Stream) {
			defer wg.Done()
			report, err := Analyze(stream, cfg, metaOnly)
			reports[i] = report
			errs[i] = err
		}(i, stream)
	}
	wg.Wait()

	for _, err := range errs {
		if err != nil {
			return nil, err
		}
	}

	for _, report := range reports {
		log.Printf("Analysed stream %d: %s -> %s, %d timeline events, %d keystroke sequences.",
			report.StreamID, report.Client, report.Server, len(report.Timeline), len(report.Sequences))
	}
	return reports, nil
}
