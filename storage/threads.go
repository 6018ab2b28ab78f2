// Package storage provides a SQLite-backed store for conversation threads
// and their usage records.
package storage

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite" // register sqlite driver

	"llmgate/billing"
	"llmgate/model"
)

// ErrThreadNotFound is returned by Load for unknown thread ids.
var ErrThreadNotFound = errors.New("thread not found")

const schemaSQL = `
CREATE TABLE IF NOT EXISTS threads (
	thread_id     TEXT PRIMARY KEY,
	user_id       TEXT NOT NULL,
	provider_id   TEXT NOT NULL,
	model         TEXT NOT NULL,
	system_prompt TEXT NOT NULL DEFAULT '',
	messages      TEXT NOT NULL,
	created_at    TEXT NOT NULL,
	updated_at    TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_threads_user ON threads(user_id, updated_at);

CREATE TABLE IF NOT EXISTS thread_usage (
	id                 INTEGER PRIMARY KEY AUTOINCREMENT,
	thread_id          TEXT NOT NULL REFERENCES threads(thread_id) ON DELETE CASCADE,
	brand              TEXT NOT NULL,
	model              TEXT NOT NULL,
	input_tokens       INTEGER NOT NULL DEFAULT 0,
	output_tokens      INTEGER NOT NULL DEFAULT 0,
	cache_hit_tokens   INTEGER NOT NULL DEFAULT 0,
	cache_miss_tokens  INTEGER NOT NULL DEFAULT 0,
	cached_tokens      INTEGER NOT NULL DEFAULT 0,
	cache_read_tokens  INTEGER NOT NULL DEFAULT 0,
	cache_write_tokens INTEGER NOT NULL DEFAULT 0,
	cost               REAL NOT NULL DEFAULT 0,
	recorded_at        TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_thread_usage_thread ON thread_usage(thread_id);
`

// Thread is a stored conversation.
type Thread struct {
	ID           string
	UserID       string
	ProviderID   string
	Model        string
	SystemPrompt string
	Messages     []model.Message
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ThreadMeta is the lightweight listing shape.
type ThreadMeta struct {
	ID           string
	UserID       string
	Model        string
	MessageCount int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// ThreadStore persists threads and usage records in SQLite.
type ThreadStore struct {
	db *sql.DB
}

// Open opens or creates the thread database at the given path.
func Open(dbPath string) (*ThreadStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return nil, fmt.Errorf("creating data dir: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath+"?_pragma=journal_mode(wal)&_pragma=synchronous(normal)&_pragma=foreign_keys(on)")
	if err != nil {
		return nil, fmt.Errorf("opening thread db: %w", err)
	}

	if _, err := db.Exec(schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	return &ThreadStore{db: db}, nil
}

// Close closes the database.
func (s *ThreadStore) Close() error {
	return s.db.Close()
}

// Save upserts a thread. A missing id gets a fresh uuid; the assigned id is
// set on the thread before returning.
func (s *ThreadStore) Save(t *Thread) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	t.UpdatedAt = time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = t.UpdatedAt
	}

	messages, err := json.Marshal(t.Messages)
	if err != nil {
		return fmt.Errorf("failed to serialize messages: %w", err)
	}

	_, err = s.db.Exec(`INSERT INTO threads
		(thread_id, user_id, provider_id, model, system_prompt, messages, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(thread_id) DO UPDATE SET
			user_id = excluded.user_id,
			provider_id = excluded.provider_id,
			model = excluded.model,
			system_prompt = excluded.system_prompt,
			messages = excluded.messages,
			updated_at = excluded.updated_at`,
		t.ID, t.UserID, t.ProviderID, t.Model, t.SystemPrompt, string(messages),
		t.CreatedAt.Format(time.RFC3339), t.UpdatedAt.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to save thread: %w", err)
	}
	return nil
}

// Load returns one thread by id.
func (s *ThreadStore) Load(id string) (*Thread, error) {
	row := s.db.QueryRow(`SELECT thread_id, user_id, provider_id, model, system_prompt, messages, created_at, updated_at
		FROM threads WHERE thread_id = ?`, id)

	var t Thread
	var messages, createdAt, updatedAt string
	err := row.Scan(&t.ID, &t.UserID, &t.ProviderID, &t.Model, &t.SystemPrompt, &messages, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load thread: %w", err)
	}

	if err := json.Unmarshal([]byte(messages), &t.Messages); err != nil {
		return nil, fmt.Errorf("failed to parse thread messages: %w", err)
	}
	t.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
	t.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)

	return &t, nil
}

// List returns thread metadata for a user, newest first. A zero limit means
// no limit.
func (s *ThreadStore) List(userID string, limit int) ([]ThreadMeta, error) {
	query := `SELECT thread_id, user_id, model, messages, created_at, updated_at
		FROM threads WHERE user_id = ? ORDER BY updated_at DESC`
	args := []any{userID}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list threads: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []ThreadMeta
	for rows.Next() {
		var meta ThreadMeta
		var messages, createdAt, updatedAt string
		if err := rows.Scan(&meta.ID, &meta.UserID, &meta.Model, &messages, &createdAt, &updatedAt); err != nil {
			return nil, err
		}

		var parsed []model.Message
		if err := json.Unmarshal([]byte(messages), &parsed); err == nil {
			meta.MessageCount = len(parsed)
		}
		meta.CreatedAt, _ = time.Parse(time.RFC3339, createdAt)
		meta.UpdatedAt, _ = time.Parse(time.RFC3339, updatedAt)
		result = append(result, meta)
	}
	return result, rows.Err()
}

// Delete removes a thread and its usage rows.
func (s *ThreadStore) Delete(id string) error {
	result, err := s.db.Exec("DELETE FROM threads WHERE thread_id = ?", id)
	if err != nil {
		return fmt.Errorf("failed to delete thread: %w", err)
	}
	affected, _ := result.RowsAffected()
	if affected == 0 {
		return ErrThreadNotFound
	}
	return nil
}

// AppendUsage stores one billing record against a thread.
func (s *ThreadStore) AppendUsage(threadID string, rec billing.Record) error {
	at := rec.At
	if at.IsZero() {
		at = time.Now().UTC()
	}

	_, err := s.db.Exec(`INSERT INTO thread_usage
		(thread_id, brand, model, input_tokens, output_tokens,
		 cache_hit_tokens, cache_miss_tokens, cached_tokens,
		 cache_read_tokens, cache_write_tokens, cost, recorded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		threadID, rec.Brand, rec.Model, rec.Input, rec.Output,
		rec.CacheHit, rec.CacheMiss, rec.Cached,
		rec.CacheRead, rec.CacheWrite, rec.Cost,
		at.Format(time.RFC3339),
	)
	if err != nil {
		return fmt.Errorf("failed to append usage: %w", err)
	}
	return nil
}

// Usage returns all billing records of a thread in insertion order.
func (s *ThreadStore) Usage(threadID string) ([]billing.Record, error) {
	rows, err := s.db.Query(`SELECT brand, model, input_tokens, output_tokens,
		cache_hit_tokens, cache_miss_tokens, cached_tokens,
		cache_read_tokens, cache_write_tokens, cost, recorded_at
		FROM thread_usage WHERE thread_id = ? ORDER BY id`, threadID)
	if err != nil {
		return nil, fmt.Errorf("failed to query usage: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var result []billing.Record
	for rows.Next() {
		var rec billing.Record
		var recordedAt string
		if err := rows.Scan(&rec.Brand, &rec.Model, &rec.Input, &rec.Output,
			&rec.CacheHit, &rec.CacheMiss, &rec.Cached,
			&rec.CacheRead, &rec.CacheWrite, &rec.Cost, &recordedAt); err != nil {
			return nil, err
		}
		rec.At, _ = time.Parse(time.RFC3339, recordedAt)
		result = append(result, rec)
	}
	return result, rows.Err()
}
