package publish

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/config"
	"github.com/Adithya-Monish-Kumar-K/textindex/pkg/postgres"
)

const createBuildsTable = `
CREATE TABLE IF NOT EXISTS index_builds (
	build_id     TEXT PRIMARY KEY,
	segment_path TEXT NOT NULL,
	documents    INTEGER NOT NULL,
	terms        INTEGER NOT NULL,
	skipped      INTEGER NOT NULL,
	bytes        BIGINT NOT NULL,
	checksum     BIGINT NOT NULL,
	elapsed_ms   BIGINT NOT NULL,
	committed_at TIMESTAMPTZ NOT NULL
)`

const insertBuild = `
INSERT INTO index_builds
	(build_id, segment_path, documents, terms, skipped, bytes, checksum, elapsed_ms, committed_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (build_id) DO NOTHING`

// PostgresSink records every build in the index_builds table.
type PostgresSink struct {
	client *postgres.Client
}

// NewPostgresSink connects and makes sure the table exists.
func NewPostgresSink(ctx context.Context, cfg config.PostgresConfig) (*PostgresSink, error) {
	client, err := postgres.New(ctx, cfg)
	if err != nil {
		return nil, err
	}
	sink := NewPostgresSinkWithClient(client)
	if err := sink.EnsureSchema(ctx); err != nil {
		client.Close()
		return nil, err
	}
	return sink, nil
}

func NewPostgresSinkWithClient(client *postgres.Client) *PostgresSink {
	return &PostgresSink{client: client}
}

func (s *PostgresSink) Name() string { return "postgres" }

func (s *PostgresSink) EnsureSchema(ctx context.Context) error {
	if _, err := s.client.DB.ExecContext(ctx, createBuildsTable); err != nil {
		return fmt.Errorf("creating index_builds table: %w", err)
	}
	return nil
}

// Publish inserts the event. Replaying an already recorded build is a no-op
// so retries stay safe.
func (s *PostgresSink) Publish(ctx context.Context, event Event) error {
	return s.client.InTx(ctx, func(tx *sql.Tx) error {
		if _, err := tx.ExecContext(ctx, insertBuild, buildArgs(event)...); err != nil {
			return fmt.Errorf("inserting build %s: %w", event.BuildID, err)
		}
		return nil
	})
}

func (s *PostgresSink) Close() error {
	return s.client.Close()
}

func buildArgs(e Event) []any {
	return []any{
		e.BuildID,
		e.SegmentPath,
		e.Documents,
		e.Terms,
		e.Skipped,
		e.Bytes,
		int64(e.Checksum),
		e.ElapsedMs,
		e.CommittedAt.UTC(),
	}
}
