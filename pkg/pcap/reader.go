package pcap

import (
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
	"github.com/pkg/errors"
)

// Reader reads TCP segments from a pcap or pcapng file.
type Reader struct {
	handle  *pcap.Handle
	skipped int
}

// NewReader creates a new capture reader for the given file path.
func NewReader(filePath string) (*Reader, error) {
	handle, err := pcap.OpenOffline(filePath)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to open capture %q", filePath)
	}
	return &Reader{handle: handle}, nil
}

// Close closes the capture handle.
func (r *Reader) Close() {
	r.handle.Close()
}

// Skipped returns the number of frames dropped because they could not be
// decoded as IP/TCP, or carried no payload and no SYN/FIN/RST flag.
func (r *Reader) Skipped() int {
	return r.skipped
}

// ReadSegments reads all frames from the capture and sends decoded TCP
// segments to the provided channel, in capture order. It closes the channel
// when done. Unparseable frames are counted and skipped.
func (r *Reader) ReadSegments(out chan<- *Segment) {
	defer close(out)

	packetSource := gopacket.NewPacketSource(r.handle, r.handle.LinkType())
	for packet := range packetSource.Packets() {
		seg, err := parseSegment(packet)
		if err != nil {
			r.skipped++
			continue
		}
		out <- seg
	}

	if r.skipped > 0 {
		log.Printf("Skipped %d non-TCP or empty frames.", r.skipped)
	}
}
