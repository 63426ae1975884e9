package feedbackstore

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/danmuck/pushgate/internal/protocol/wire"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog/log"
)

const ddlFeedback = `
CREATE TABLE IF NOT EXISTS feedback (
    token        TEXT    PRIMARY KEY,     -- lower-case hex
    seen_at      INTEGER NOT NULL,        -- Unix seconds, from the feedback service
    harvested_at INTEGER NOT NULL         -- Unix seconds
);
CREATE INDEX IF NOT EXISTS idx_feedback_seen_at ON feedback (seen_at DESC);
`

const upsertFeedback = `
INSERT INTO feedback (token, seen_at, harvested_at) VALUES (?, ?, ?)
ON CONFLICT(token) DO UPDATE SET
    seen_at      = excluded.seen_at,
    harvested_at = excluded.harvested_at
WHERE excluded.seen_at >= feedback.seen_at
`

type sqliteStore struct {
	db  *sql.DB
	now func() time.Time
}

// OpenSQLite opens (or creates) the store at path in WAL mode and applies the
// schema.
func OpenSQLite(path string) (Store, error) {
	dsn := fmt.Sprintf("file:%s?_journal_mode=WAL&_busy_timeout=5000", path)
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("feedbackstore: open %s: %w", path, err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("feedbackstore: ping: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(ddlFeedback); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("feedbackstore: migrate: %w", err)
	}
	log.Debug().Str("path", path).Msg("feedbackstore.OpenSQLite")
	return &sqliteStore{db: db, now: time.Now}, nil
}

func (s *sqliteStore) Put(ctx context.Context, records []wire.FeedbackRecord) error {
	if len(records) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("feedbackstore: begin: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.PrepareContext(ctx, upsertFeedback)
	if err != nil {
		return fmt.Errorf("feedbackstore: prepare: %w", err)
	}
	defer stmt.Close()

	harvested := s.now().Unix()
	for _, r := range records {
		if _, err := stmt.ExecContext(ctx, r.Token.String(), r.Timestamp.Unix(), harvested); err != nil {
			return fmt.Errorf("feedbackstore: put %s: %w", r.Token, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("feedbackstore: commit: %w", err)
	}
	return nil
}

func (s *sqliteStore) List(ctx context.Context, limit int) ([]Entry, error) {
	q := `SELECT token, seen_at, harvested_at FROM feedback ORDER BY seen_at DESC, token ASC`
	var args []any
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}
	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("feedbackstore: list: %w", err)
	}
	defer rows.Close()

	out := []Entry{}
	for rows.Next() {
		var (
			e        Entry
			seen, hv int64
		)
		if err := rows.Scan(&e.Token, &seen, &hv); err != nil {
			return nil, fmt.Errorf("feedbackstore: scan: %w", err)
		}
		e.Timestamp = time.Unix(seen, 0).UTC()
		e.HarvestedAt = time.Unix(hv, 0).UTC()
		out = append(out, e)
	}
	return out, rows.Err()
}

func (s *sqliteStore) Len(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM feedback`).Scan(&n); err != nil {
		return 0, fmt.Errorf("feedbackstore: count: %w", err)
	}
	return n, nil
}

func (s *sqliteStore) Close() error {
	return s.db.Close()
}
