package report

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"

	"sshniff/internal/config"
	"sshniff/internal/model"
)

const createTableStatement = `
CREATE TABLE IF NOT EXISTS ssh_sessions (
    AnalysedAt      DateTime,
    StreamID        Int32,
    Client          String,
    Server          String,
    ClientBanner    String,
    ServerBanner    String,
    Hassh           String,
    HasshServer     String,
    KexAlgorithm    String,
    Encryption      String,
    MAC             String,
    Compression     String,
    KeystrokeSize   Int32,
    TimelineEvents  UInt32,
    Sequences       UInt32,
    Keystrokes      UInt32,
    StartUTC        String,
    EndUTC          String
) ENGINE = MergeTree()
PARTITION BY toYYYYMM(AnalysedAt)
ORDER BY (Server, AnalysedAt);
`

// ClickHouseWriter exports one row per analysed session, so captures from a
// whole estate can be hunted over with SQL.
type ClickHouseWriter struct {
	conn driver.Conn
}

// NewClickHouseWriter connects and ensures the sessions table exists.
func NewClickHouseWriter(cfg config.ClickHouseConfig) (*ClickHouseWriter, error) {
	conn, err := connect(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to clickhouse: %w", err)
	}

	if err := conn.Exec(context.Background(), createTableStatement); err != nil {
		return nil, fmt.Errorf("failed to create table: %w", err)
	}
	log.Println("Successfully connected to ClickHouse and ensured table exists.")

	return &ClickHouseWriter{conn: conn}, nil
}

func connect(cfg config.ClickHouseConfig) (driver.Conn, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)

	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{addr},
		Auth: clickhouse.Auth{
			Database: cfg.Database,
			Username: cfg.Username,
			Password: cfg.Password,
		},
		Compression: &clickhouse.Compression{
			Method: clickhouse.CompressionLZ4,
		},
	})
	if err != nil {
		return nil, err
	}

	if err := conn.Ping(context.Background()); err != nil {
		return nil, fmt.Errorf("failed to ping clickhouse: %w", err)
	}

	return conn, nil
}

// Write inserts one session row.
func (w *ClickHouseWriter) Write(r *model.StreamReport) error {
	batch, err := w.conn.PrepareBatch(context.Background(), "INSERT INTO ssh_sessions")
	if err != nil {
		return fmt.Errorf("failed to prepare batch: %w", err)
	}

	keystrokes := uint32(0)
	for _, seq := range r.Sequences {
		keystrokes += uint32(len(seq.Events))
	}

	err = batch.Append(
		time.Now().UTC(),
		int32(r.StreamID),
		r.Client,
		r.Server,
		r.ClientBanner,
		r.ServerBanner,
		r.HasshClient,
		r.HasshServer,
		r.Algorithms.KEX,
		r.Algorithms.EncryptionC2S,
		r.Algorithms.MACC2S,
		r.Algorithms.Compression,
		int32(r.KeystrokeSize),
		uint32(len(r.Timeline)),
		uint32(len(r.Sequences)),
		keystrokes,
		r.StartUTC,
		r.EndUTC,
	)
	if err != nil {
		return fmt.Errorf("failed to append session to batch: %w", err)
	}

	return batch.Send()
}

// Close releases the connection.
func (w *ClickHouseWriter) Close() error {
	return w.conn.Close()
}
