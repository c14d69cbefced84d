package report

import (
	"log"

	"github.com/nats-io/nats.go"

	"sshniff/internal/config"
	"sshniff/internal/model"
)

// NATSWriter publishes each machine-readable report to a subject, for
// pipelines that feed analysis results into a SIEM.
type NATSWriter struct {
	nc      *nats.Conn
	subject string
}

// NewNATSWriter connects to the configured NATS server.
func NewNATSWriter(cfg config.NATSConfig) (*NATSWriter, error) {
	nc, err := nats.Connect(cfg.URL)
	if err != nil {
		return nil, err
	}
	log.Printf("Connected to NATS server at %s", cfg.URL)
	return &NATSWriter{nc: nc, subject: cfg.Subject}, nil
}

// Write serialises the report to JSON and publishes it.
func (w *NATSWriter) Write(r *model.StreamReport) error {
	data, err := JSON(r)
	if err != nil {
		return err
	}
	return w.nc.Publish(w.subject, data)
}

// Close drains and closes the NATS connection.
func (w *NATSWriter) Close() error {
	if w.nc != nil {
		if err := w.nc.Drain(); err != nil {
			return err
		}
		log.Println("NATS connection drained and closed.")
	}
	return nil
}
