// Package registry provides the SQLite-backed post registry. It is the
// only durable state shared between the interactive session and the
// scheduler; all cross-process coordination happens through the status
// column, and CompareAndSetStatus is a single conditional UPDATE so a
// record can never be claimed twice.
package registry

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/user/postpilot/internal/types"
)

// Store is a SQLite-backed types.PostRegistry.
type Store struct {
	db *sql.DB
}

// Open opens (or creates) the registry database at path and applies
// migrations.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("registry path is required")
	}
	dsn := filepath.Clean(path) + "?_journal_mode=WAL&_busy_timeout=5000&_synchronous=NORMAL"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping sqlite db: %w", err)
	}
	if err := applyMigrations(db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	return &Store{db: db}, nil
}

// Close releases the database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

const recordColumns = "id, content, attachments, scheduled_at, published_at, status, attempts, last_error, engagement, created_at, updated_at"

// Append inserts a new record and returns its assigned sequence number.
func (s *Store) Append(ctx context.Context, record *types.PostRecord) (types.PostID, error) {
	if record.Content == "" {
		return 0, fmt.Errorf("content is required")
	}
	if !record.Status.Valid() {
		return 0, fmt.Errorf("invalid status %q", record.Status)
	}

	attachments, err := json.Marshal(record.Attachments)
	if err != nil {
		return 0, fmt.Errorf("marshal attachments: %w", err)
	}
	now := time.Now().UTC()

	res, err := s.db.ExecContext(ctx, `
INSERT INTO posts (content, attachments, scheduled_at, status, attempts, last_error, created_at, updated_at)
VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		record.Content,
		string(attachments),
		record.ScheduledAt.UTC().Unix(),
		string(record.Status),
		record.Attempts,
		record.LastError,
		now.Unix(),
		now.Unix(),
	)
	if err != nil {
		return 0, fmt.Errorf("insert post: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("last insert id: %w", err)
	}
	return types.PostID(id), nil
}

// Get returns the record with the given sequence number.
func (s *Store) Get(ctx context.Context, id types.PostID) (*types.PostRecord, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+recordColumns+" FROM posts WHERE id = ?", int64(id))
	return scanRecord(row)
}

// List returns all records ordered by sequence number.
func (s *Store) List(ctx context.Context) ([]*types.PostRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM posts ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("list posts: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// FindDue returns scheduled records whose publish time has passed, oldest
// schedule first.
func (s *Store) FindDue(ctx context.Context, now time.Time) ([]*types.PostRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+recordColumns+" FROM posts WHERE status = ? AND scheduled_at <= ? ORDER BY scheduled_at",
		string(types.StatusScheduled), now.UTC().Unix())
	if err != nil {
		return nil, fmt.Errorf("find due posts: %w", err)
	}
	defer rows.Close()
	return scanRecords(rows)
}

// CompareAndSetStatus transitions the record's status only if it currently
// equals expect. Returns false when another writer got there first. This is
// the exactly-once claim: one conditional UPDATE, no read-then-write.
func (s *Store) CompareAndSetStatus(ctx context.Context, id types.PostID, expect, next types.Status) (bool, error) {
	if !expect.CanTransition(next) {
		return false, fmt.Errorf("illegal transition %s -> %s", expect, next)
	}
	res, err := s.db.ExecContext(ctx,
		"UPDATE posts SET status = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(next), time.Now().UTC().Unix(), int64(id), string(expect))
	if err != nil {
		return false, fmt.Errorf("cas status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("cas rows affected: %w", err)
	}
	return n == 1, nil
}

// MarkPosted records a successful publish. It only succeeds from
// publishing, so published_at is set exactly once.
func (s *Store) MarkPosted(ctx context.Context, id types.PostID, at time.Time, engagement *types.Engagement) error {
	var engJSON any
	if engagement != nil {
		data, err := json.Marshal(engagement)
		if err != nil {
			return fmt.Errorf("marshal engagement: %w", err)
		}
		engJSON = string(data)
	}
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET status = ?, published_at = ?, engagement = ?, last_error = '', updated_at = ?
WHERE id = ? AND status = ?`,
		string(types.StatusPosted), at.UTC().Unix(), engJSON, time.Now().UTC().Unix(),
		int64(id), string(types.StatusPublishing))
	if err != nil {
		return fmt.Errorf("mark posted: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("post %d not in publishing state", id)
	}
	return nil
}

// Reschedule re-queues a record for a later attempt. Allowed from
// publishing (retryable publish failure) and from failed (manual retry).
func (s *Store) Reschedule(ctx context.Context, id types.PostID, at time.Time, attempts int, lastError string) error {
	res, err := s.db.ExecContext(ctx, `
UPDATE posts SET status = ?, scheduled_at = ?, attempts = ?, last_error = ?, updated_at = ?
WHERE id = ? AND status IN (?, ?)`,
		string(types.StatusScheduled), at.UTC().Unix(), attempts, lastError, time.Now().UTC().Unix(),
		int64(id), string(types.StatusPublishing), string(types.StatusFailed))
	if err != nil {
		return fmt.Errorf("reschedule: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("post %d not reschedulable", id)
	}
	return nil
}

// MarkFailed records a terminal publish failure. The record stays visible
// in the registry for manual intervention.
func (s *Store) MarkFailed(ctx context.Context, id types.PostID, lastError string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE posts SET status = ?, last_error = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(types.StatusFailed), lastError, time.Now().UTC().Unix(),
		int64(id), string(types.StatusPublishing))
	if err != nil {
		return fmt.Errorf("mark failed: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("post %d not in publishing state", id)
	}
	return nil
}

// CancelledByUser is the last_error marker Cancel writes. Cancellation has
// no status of its own; it reuses failed, and this marker is what tells a
// withdrawn post apart from a terminal publish failure.
const CancelledByUser = "cancelled by user"

// Cancel withdraws a scheduled post by moving it to failed with the
// CancelledByUser marker. A record already claimed by a publish cycle, or
// one that has finished, cannot be cancelled. `post retry` re-queues it
// like any other failed record.
func (s *Store) Cancel(ctx context.Context, id types.PostID) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE posts SET status = ?, last_error = ?, updated_at = ? WHERE id = ? AND status = ?",
		string(types.StatusFailed), CancelledByUser, time.Now().UTC().Unix(),
		int64(id), string(types.StatusScheduled))
	if err != nil {
		return fmt.Errorf("cancel: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n != 1 {
		return fmt.Errorf("post %d is not scheduled", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row rowScanner) (*types.PostRecord, error) {
	var (
		rec         types.PostRecord
		attachments string
		scheduledAt int64
		publishedAt sql.NullInt64
		status      string
		engagement  sql.NullString
		createdAt   int64
		updatedAt   int64
	)
	err := row.Scan(&rec.ID, &rec.Content, &attachments, &scheduledAt, &publishedAt,
		&status, &rec.Attempts, &rec.LastError, &engagement, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, types.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan post: %w", err)
	}

	if err := json.Unmarshal([]byte(attachments), &rec.Attachments); err != nil {
		return nil, fmt.Errorf("unmarshal attachments: %w", err)
	}
	rec.ScheduledAt = time.Unix(scheduledAt, 0).UTC()
	if publishedAt.Valid {
		t := time.Unix(publishedAt.Int64, 0).UTC()
		rec.PublishedAt = &t
	}
	rec.Status = types.Status(status)
	if engagement.Valid && engagement.String != "" {
		var eng types.Engagement
		if err := json.Unmarshal([]byte(engagement.String), &eng); err != nil {
			return nil, fmt.Errorf("unmarshal engagement: %w", err)
		}
		rec.Engagement = &eng
	}
	rec.CreatedAt = time.Unix(createdAt, 0).UTC()
	rec.UpdatedAt = time.Unix(updatedAt, 0).UTC()
	return &rec, nil
}

func scanRecords(rows *sql.Rows) ([]*types.PostRecord, error) {
	var out []*types.PostRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return out, nil
}
