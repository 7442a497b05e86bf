package session

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/opsmind/opsmind/types"
)

//go:embed schema.sql
var schemaSQL string

const (
	defaultBusyTimeout = 5 * time.Second
	defaultListLimit   = 100
)

// SQLiteStore persists sessions and messages in a local sqlite database.
type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(path string) (*SQLiteStore, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("sqlite path is required")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create sqlite directory: %w", err)
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db: %w", err)
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLiteStore{db: db}
	if err := s.initialize(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) initialize(ctx context.Context) error {
	ms := int(defaultBusyTimeout / time.Millisecond)
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("PRAGMA busy_timeout=%d;", ms)); err != nil {
		return fmt.Errorf("failed to set busy_timeout: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, "PRAGMA journal_mode=WAL;"); err != nil {
		return fmt.Errorf("failed to enable wal: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to initialize schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) CreateSession(ctx context.Context, metadata map[string]any) (Session, error) {
	if metadata == nil {
		metadata = map[string]any{}
	}
	metaRaw, err := json.Marshal(metadata)
	if err != nil {
		return Session{}, fmt.Errorf("failed to marshal session metadata: %w", err)
	}

	now := time.Now().UTC()
	sess := Session{
		ID:        uuid.NewString(),
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	const q = `INSERT INTO sessions (session_id, metadata, created_at, updated_at) VALUES (?, ?, ?, ?);`
	if _, err := s.db.ExecContext(ctx, q, sess.ID, string(metaRaw), formatTime(now), formatTime(now)); err != nil {
		return Session{}, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) GetSession(ctx context.Context, id string) (Session, error) {
	const q = `SELECT session_id, metadata, created_at, updated_at FROM sessions WHERE session_id = ?;`

	var (
		sess       Session
		metaRaw    string
		createdRaw string
		updatedRaw string
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&sess.ID, &metaRaw, &createdRaw, &updatedRaw)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, ErrNotFound
		}
		return Session{}, fmt.Errorf("failed to load session: %w", err)
	}
	if err := json.Unmarshal([]byte(metaRaw), &sess.Metadata); err != nil {
		return Session{}, fmt.Errorf("failed to decode session metadata: %w", err)
	}
	if sess.CreatedAt, err = parseTime(createdRaw); err != nil {
		return Session{}, fmt.Errorf("failed to parse session created_at: %w", err)
	}
	if sess.UpdatedAt, err = parseTime(updatedRaw); err != nil {
		return Session{}, fmt.Errorf("failed to parse session updated_at: %w", err)
	}
	return sess, nil
}

func (s *SQLiteStore) DeleteSession(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, `DELETE FROM sessions WHERE session_id = ?;`, id)
	if err != nil {
		return fmt.Errorf("failed to delete session: %w", err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read delete result: %w", err)
	}
	if affected == 0 {
		return ErrNotFound
	}
	if _, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE session_id = ?;`, id); err != nil {
		return fmt.Errorf("failed to delete session messages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) AppendMessages(ctx context.Context, sessionID string, messages []types.Message) error {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return err
	}
	kept := filterKnown(sessionID, messages)
	if len(kept) == 0 {
		return nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	const q = `INSERT INTO messages (message_id, session_id, role, name, content, created_at) VALUES (?, ?, ?, ?, ?, ?);`
	now := time.Now().UTC()
	for i, msg := range kept {
		// Nanosecond offsets keep insertion order stable under the
		// created_at sort.
		createdAt := now.Add(time.Duration(i) * time.Nanosecond)
		if _, err := tx.ExecContext(ctx, q,
			uuid.NewString(), sessionID, string(msg.Role), msg.Name, msg.Content, formatTime(createdAt)); err != nil {
			return fmt.Errorf("failed to insert message: %w", err)
		}
	}
	if _, err := tx.ExecContext(ctx,
		`UPDATE sessions SET updated_at = ? WHERE session_id = ?;`, formatTime(now), sessionID); err != nil {
		return fmt.Errorf("failed to touch session: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit messages: %w", err)
	}
	return nil
}

func (s *SQLiteStore) ListMessages(ctx context.Context, sessionID string, limit int) ([]StoredMessage, error) {
	if _, err := s.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = defaultListLimit
	}

	const q = `
SELECT message_id, session_id, role, name, content, created_at
FROM messages
WHERE session_id = ?
ORDER BY created_at ASC
LIMIT ?;
`
	rows, err := s.db.QueryContext(ctx, q, sessionID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	out := make([]StoredMessage, 0, limit)
	for rows.Next() {
		var (
			msg        StoredMessage
			roleRaw    string
			createdRaw string
		)
		if err := rows.Scan(&msg.ID, &msg.SessionID, &roleRaw, &msg.Name, &msg.Content, &createdRaw); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		msg.Role = types.Role(roleRaw)
		if msg.CreatedAt, err = parseTime(createdRaw); err != nil {
			return nil, fmt.Errorf("failed to parse message created_at: %w", err)
		}
		out = append(out, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate messages: %w", err)
	}
	return out, nil
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

func formatTime(t time.Time) string {
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(raw string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339Nano, raw)
	if err != nil {
		return time.Time{}, err
	}
	return t.UTC(), nil
}
