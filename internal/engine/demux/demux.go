package demux

import (
	"errors"
	"fmt"
	"log"
	"sort"

	"sshniff/internal/model"
	"sshniff/pkg/pcap"
)

// ErrNoSSHStreams is returned when no bidirectional flow on the SSH port
// survived demultiplexing.
var ErrNoSSHStreams = errors.New("no SSH streams found in capture")

// minPacketsPerDirection is the floor below which a stream is considered
// degenerate and discarded.
const minPacketsPerDirection = 2

// Demuxer groups captured segments into bidirectional SSH streams keyed on
// the canonicalised 4-tuple.
type Demuxer struct {
	sshPort   uint16
	open      map[string]*assembly
	completed []*model.Stream
	rejected  int
	nextIndex int
	nextID    int
}

// assembly is an in-progress stream plus the bookkeeping needed to enforce
// per-direction seq monotonicity and detect completion.
type assembly struct {
	stream    *model.Stream
	dataCount [2]int
	nextSeq   [2]uint32
	seqValid  [2]bool
	order     int
	closed    bool
}

// New creates a demuxer for the given SSH port.
func New(sshPort uint16) *Demuxer {
	return &Demuxer{
		sshPort: sshPort,
		open:    make(map[string]*assembly),
	}
}

// key canonicalises a 4-tuple with the server endpoint last, so packets in
// either direction map to the same stream.
func key(client, server model.Endpoint) string {
	return fmt.Sprintf("%s,%s", client, server)
}

// roles splits a segment into (client, server) endpoints. The side on the
// SSH port is the server; flows touching the port on neither side are not
// SSH and are rejected. When both sides use the SSH port, the destination of
// the stream's first observed segment is the server.
func (d *Demuxer) roles(seg *pcap.Segment) (client, server model.Endpoint, ok bool) {
	src := model.Endpoint{IP: seg.SrcIP, Port: seg.SrcPort}
	dst := model.Endpoint{IP: seg.DstIP, Port: seg.DstPort}

	switch {
	case seg.DstPort == d.sshPort:
		if seg.SrcPort == d.sshPort {
			if _, open := d.open[key(dst, src)]; open {
				return dst, src, true
			}
		}
		return src, dst, true
	case seg.SrcPort == d.sshPort:
		return dst, src, true
	default:
		return model.Endpoint{}, model.Endpoint{}, false
	}
}

// Add feeds one captured segment into the demuxer.
func (d *Demuxer) Add(seg *pcap.Segment) {
	client, server, ok := d.roles(seg)
	if !ok {
		d.rejected++
		return
	}

	k := key(client, server)
	asm, exists := d.open[k]
	if !exists {
		if seg.FIN || seg.RST {
			return
		}
		asm = &assembly{
			stream: &model.Stream{ID: d.nextID, Client: client, Server: server},
			order:  d.nextIndex,
		}
		d.nextID++
		d.open[k] = asm
	}

	if seg.PayloadLen == 0 {
		if seg.FIN || seg.RST {
			d.finish(k, asm)
		}
		return
	}

	src := model.Endpoint{IP: seg.SrcIP, Port: seg.SrcPort}
	dir := model.ClientToServer
	if src.Equal(server) {
		dir = model.ServerToClient
	}

	// Retransmitted or duplicate segments never advance the seq cursor and
	// are dropped to keep per-direction seq monotonic.
	if asm.seqValid[dir] && !seqAdvances(seg.Seq, asm.nextSeq[dir]) {
		return
	}
	asm.nextSeq[dir] = seg.Seq + uint32(seg.PayloadLen)
	asm.seqValid[dir] = true
	asm.dataCount[dir]++

	asm.stream.Packets = append(asm.stream.Packets, model.PacketRecord{
		Index:     d.nextIndex,
		Timestamp: seg.Timestamp,
		Seq:       seg.Seq,
		Ack:       seg.Ack,
		Length:    seg.PayloadLen,
		Direction: dir,
		Payload:   seg.Payload,
	})
	d.nextIndex++

	if seg.FIN || seg.RST {
		d.finish(k, asm)
	}
}

// seqAdvances reports whether seq is at or beyond the expected cursor,
// modulo 32-bit wraparound.
func seqAdvances(seq, next uint32) bool {
	return int32(seq-next) >= 0
}

func (d *Demuxer) finish(k string, asm *assembly) {
	if asm.closed {
		return
	}
	asm.closed = true
	delete(d.open, k)
	d.keep(asm)
}

func (d *Demuxer) keep(asm *assembly) {
	if asm.dataCount[model.ClientToServer] < minPacketsPerDirection ||
		asm.dataCount[model.ServerToClient] < minPacketsPerDirection {
		log.Printf("Discarding degenerate stream %s <-> %s (%d/%d data packets).",
			asm.stream.Client, asm.stream.Server,
			asm.dataCount[model.ClientToServer], asm.dataCount[model.ServerToClient])
		return
	}
	d.completed = append(d.completed, asm.stream)
}

// Flush closes all still-open streams at end of capture and returns every
// completed stream in order of first appearance.
func (d *Demuxer) Flush() []*model.Stream {
	remaining := make([]*assembly, 0, len(d.open))
	for _, asm := range d.open {
		remaining = append(remaining, asm)
	}
	sort.Slice(remaining, func(i, j int) bool { return remaining[i].order < remaining[j].order })
	for _, asm := range remaining {
		asm.closed = true
		d.keep(asm)
	}
	d.open = make(map[string]*assembly)

	sort.Slice(d.completed, func(i, j int) bool {
		return d.completed[i].Packets[0].Index < d.completed[j].Packets[0].Index
	})
	for i, s := range d.completed {
		s.ID = i
	}
	return d.completed
}

// Rejected returns the number of segments dropped for not involving the
// SSH port.
func (d *Demuxer) Rejected() int {
	return d.rejected
}

// Collect drains a reader into streams. It returns ErrNoSSHStreams when the
// capture held no usable SSH flow.
func Collect(r *pcap.Reader, sshPort uint16) ([]*model.Stream, error) {
	d := New(sshPort)

	segments := make(chan *pcap.Segment, 1024)
	go r.ReadSegments(segments)
	for seg := range segments {
		d.Add(seg)
	}

	streams := d.Flush()
	if len(streams) == 0 {
		return nil, ErrNoSSHStreams
	}
	return streams, nil
}
