package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/healthchat/internal/types"
)

const schema = `
CREATE TABLE IF NOT EXISTS records (
	subject       TEXT NOT NULL,
	resource_type TEXT NOT NULL,
	id            TEXT NOT NULL,
	payload       TEXT NOT NULL,
	updated_at    INTEGER NOT NULL,
	PRIMARY KEY (subject, resource_type, id)
);
CREATE INDEX IF NOT EXISTS idx_records_subject ON records(subject);
`

const (
	selectRecordsSQL = `SELECT id, payload, updated_at FROM records WHERE subject = ? AND resource_type = ? ORDER BY rowid`
	upsertRecordSQL  = `INSERT INTO records (subject, resource_type, id, payload, updated_at) VALUES (?, ?, ?, ?, ?)
ON CONFLICT(subject, resource_type, id) DO UPDATE SET payload = excluded.payload, updated_at = excluded.updated_at`
	deleteSubjectSQL = `DELETE FROM records WHERE subject = ?`
	countsSQL        = `SELECT resource_type, COUNT(*) FROM records WHERE subject = ? GROUP BY resource_type`
)

// SQLiteStore is the on-device record store. Writes are serialized through a
// mutex; SQLite itself resolves concurrent upserts of one key last-writer-wins.
type SQLiteStore struct {
	db      *sql.DB
	writeMu sync.Mutex
}

// OpenSQLite opens (creating if needed) the database at path.
func OpenSQLite(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite store: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec("PRAGMA journal_mode=WAL; PRAGMA busy_timeout=5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("configure sqlite store: %w", err)
	}
	if _, err := db.Exec(schema); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate sqlite store: %w", err)
	}
	return NewSQLiteStore(db), nil
}

// NewSQLiteStore wraps an already-migrated database handle.
func NewSQLiteStore(db *sql.DB) *SQLiteStore {
	return &SQLiteStore{db: db}
}

func (s *SQLiteStore) GetRecords(ctx context.Context, subject types.SubjectID, rt types.ResourceType) ([]types.Record, error) {
	rows, err := s.db.QueryContext(ctx, selectRecordsSQL, string(subject), string(rt))
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	out := []types.Record{}
	for rows.Next() {
		var (
			id, payload string
			updated     int64
		)
		if err := rows.Scan(&id, &payload, &updated); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		rec := types.Record{
			Subject:      subject,
			ResourceType: rt,
			ID:           types.RecordID(id),
			UpdatedAt:    time.Unix(0, updated),
		}
		if err := json.Unmarshal([]byte(payload), &rec.Payload); err != nil {
			return nil, fmt.Errorf("decode record %s/%s: %w", rt, id, err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) UpsertRecord(ctx context.Context, subject types.SubjectID, rec types.Record) error {
	if err := validate(subject, rec); err != nil {
		return err
	}
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("encode record %s/%s: %w", rec.ResourceType, rec.ID, err)
	}
	updated := rec.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, upsertRecordSQL,
		string(subject), string(rec.ResourceType), string(rec.ID), string(payload), updated.UnixNano()); err != nil {
		return fmt.Errorf("upsert record %s/%s: %w", rec.ResourceType, rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) DeleteAllForSubject(ctx context.Context, subject types.SubjectID) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.db.ExecContext(ctx, deleteSubjectSQL, string(subject)); err != nil {
		return fmt.Errorf("delete records for %s: %w", subject, err)
	}
	return nil
}

func (s *SQLiteStore) GetCounts(ctx context.Context, subject types.SubjectID) (map[types.ResourceType]int, error) {
	rows, err := s.db.QueryContext(ctx, countsSQL, string(subject))
	if err != nil {
		return nil, fmt.Errorf("count records: %w", err)
	}
	defer rows.Close()

	counts := make(map[types.ResourceType]int)
	for rows.Next() {
		var (
			rt string
			n  int
		)
		if err := rows.Scan(&rt, &n); err != nil {
			return nil, fmt.Errorf("scan count: %w", err)
		}
		counts[types.ResourceType(rt)] = n
	}
	return counts, rows.Err()
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}
