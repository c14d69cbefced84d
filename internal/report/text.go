package report

import (
	"fmt"
	"strings"

	"sshniff/internal/model"
)

// Text renders a stream report as the stable human-readable form, with the
// sections Header, Algorithms, Timeline and Keystroke Sequences.
func Text(r *model.StreamReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "==== Stream %d ====\n", r.StreamID)
	fmt.Fprintf(&b, "Duration (UTC):  %s - %s\n", r.StartUTC, r.EndUTC)
	fmt.Fprintf(&b, "Client:          %s  %s\n", r.Client, r.ClientBanner)
	fmt.Fprintf(&b, "Server:          %s  %s\n", r.Server, r.ServerBanner)
	fmt.Fprintf(&b, "HASSH:           %s\n", orDash(r.HasshClient))
	fmt.Fprintf(&b, "HASSH Server:    %s\n", orDash(r.HasshServer))
	b.WriteString("\n-- Algorithms --\n")
	fmt.Fprintf(&b, "KEX:             %s\n", r.Algorithms.KEX)
	fmt.Fprintf(&b, "Host Key:        %s\n", r.Algorithms.HostKey)
	fmt.Fprintf(&b, "Encryption:      %s / %s\n", r.Algorithms.EncryptionC2S, r.Algorithms.EncryptionS2C)
	fmt.Fprintf(&b, "MAC:             %s / %s\n", r.Algorithms.MACC2S, r.Algorithms.MACS2C)
	fmt.Fprintf(&b, "Compression:     %s\n", r.Algorithms.Compression)
	if r.KeystrokeSize > 0 {
		fmt.Fprintf(&b, "Keystroke size:  %d\n", r.KeystrokeSize)
	}

	b.WriteString("\n-- Timeline --\n")
	if len(r.Timeline) == 0 {
		b.WriteString("(none)\n")
	}
	for _, ev := range r.Timeline {
		fmt.Fprintf(&b, "[%10d] %s\n", ev.Seq, ev.Kind)
	}

	if len(r.Sequences) > 0 {
		b.WriteString("\n-- Keystroke Sequences --\n")
		b.WriteString("tcp_seq      latency_us   category\n")
		for _, seq := range r.Sequences {
			for _, ev := range seq.Events {
				fmt.Fprintf(&b, "%-12d %-12d %s\n", ev.Seq, ev.LatencyMicros, ev.Type)
			}
			fmt.Fprintf(&b, "  [%d]\n", seq.ResponseFootprint)
		}
	}

	for _, note := range r.Notes {
		fmt.Fprintf(&b, "\nnote: %s\n", note)
	}

	return b.String()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
