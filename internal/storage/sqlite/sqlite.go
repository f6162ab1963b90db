package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/michaelbrown/oracle/internal/llm"
	"github.com/michaelbrown/oracle/internal/storage"

	_ "modernc.org/sqlite"
)

// timeLayout is fixed-width so text ordering matches time ordering.
const timeLayout = "2006-01-02T15:04:05.000000000Z"

// SQLiteStore implements storage.Store backed by a SQLite database.
type SQLiteStore struct {
	db *sql.DB
}

// Open creates or opens a SQLite database at the given path and runs migrations.
// Use ":memory:" for an in-memory database (useful for testing).
func Open(dbPath string) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		dir := filepath.Dir(dbPath)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("creating db directory: %w", err)
		}
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// One connection: every :memory: connection is a separate database, and
	// SQLite serializes writers anyway.
	db.SetMaxOpenConns(1)

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &SQLiteStore{db: db}, nil
}

func (s *SQLiteStore) CreateAttempt(ctx context.Context, a *storage.Attempt) error {
	if a.ID == "" {
		return errors.New("attempt id is required")
	}
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO attempts (id, level_id, level_number, function_name, code, status, passed, total, elapsed_ns, report, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.LevelID, a.LevelNumber, a.FunctionName, a.Code, string(a.Status),
		a.Passed, a.Total, int64(a.Elapsed), string(a.Report), a.CreatedAt.UTC().Format(timeLayout),
	)
	if err != nil {
		return fmt.Errorf("inserting attempt: %w", err)
	}
	return nil
}

const attemptColumns = `id, level_id, level_number, function_name, code, status, passed, total, elapsed_ns, report, created_at`

func (s *SQLiteStore) GetAttempt(ctx context.Context, id string) (*storage.Attempt, error) {
	if id == "" {
		return nil, fmt.Errorf("attempt %w: empty id", storage.ErrNotFound)
	}
	a, err := scanAttempt(s.db.QueryRowContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id = ?`, id))
	if err == nil {
		return a, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("querying attempt: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, `SELECT `+attemptColumns+` FROM attempts WHERE id LIKE ? || '%' LIMIT 2`, id)
	if err != nil {
		return nil, fmt.Errorf("querying attempt: %w", err)
	}
	defer rows.Close()

	var matches []*storage.Attempt
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		matches = append(matches, a)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("attempt %w: %s", storage.ErrNotFound, id)
	case 1:
		return matches[0], nil
	default:
		return nil, fmt.Errorf("attempt %q: %w", id, storage.ErrAmbiguous)
	}
}

func (s *SQLiteStore) ListAttempts(ctx context.Context, opts storage.AttemptListOptions) ([]storage.Attempt, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = 50
	}

	query := `SELECT id, level_id, level_number, function_name, '', status, passed, total, elapsed_ns, '', created_at
		FROM attempts WHERE 1 = 1`
	var args []any
	if opts.LevelID != "" {
		query += ` AND level_id = ?`
		args = append(args, opts.LevelID)
	}
	if opts.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(opts.Status))
	}
	query += ` ORDER BY created_at DESC LIMIT ? OFFSET ?`
	args = append(args, limit, opts.Offset)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("listing attempts: %w", err)
	}
	defer rows.Close()

	attempts := []storage.Attempt{}
	for rows.Next() {
		a, err := scanAttempt(rows)
		if err != nil {
			return nil, err
		}
		attempts = append(attempts, *a)
	}
	return attempts, rows.Err()
}

func (s *SQLiteStore) DeleteAttempt(ctx context.Context, id string) error {
	a, err := s.GetAttempt(ctx, id)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, `DELETE FROM attempts WHERE id = ?`, a.ID)
	return err
}

func (s *SQLiteStore) Progress(ctx context.Context) ([]storage.LevelProgress, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT level_id,
		       MAX(level_number),
		       COUNT(*),
		       MAX(status = 'passed'),
		       MIN(CASE WHEN status = 'passed' THEN created_at END),
		       MIN(CASE WHEN status = 'passed' THEN elapsed_ns END)
		FROM attempts
		GROUP BY level_id
		ORDER BY MAX(level_number), level_id`)
	if err != nil {
		return nil, fmt.Errorf("querying progress: %w", err)
	}
	defer rows.Close()

	progress := []storage.LevelProgress{}
	for rows.Next() {
		var (
			p           storage.LevelProgress
			solved      int
			firstSolved sql.NullString
			best        sql.NullInt64
		)
		if err := rows.Scan(&p.LevelID, &p.LevelNumber, &p.Attempts, &solved, &firstSolved, &best); err != nil {
			return nil, fmt.Errorf("scanning progress: %w", err)
		}
		p.Solved = solved == 1
		if firstSolved.Valid {
			p.FirstSolvedAt, _ = time.Parse(timeLayout, firstSolved.String)
		}
		if best.Valid {
			p.BestElapsed = time.Duration(best.Int64)
		}
		progress = append(progress, p)
	}
	return progress, rows.Err()
}

func (s *SQLiteStore) SaveConversation(ctx context.Context, levelID string, messages []llm.Message) error {
	data, err := json.Marshal(messages)
	if err != nil {
		return fmt.Errorf("marshaling messages: %w", err)
	}

	now := time.Now().UTC().Format(timeLayout)
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO tutor_conversations (level_id, messages, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(level_id) DO UPDATE SET messages = excluded.messages, updated_at = excluded.updated_at`,
		levelID, string(data), now,
	)
	return err
}

func (s *SQLiteStore) LoadConversation(ctx context.Context, levelID string) ([]llm.Message, error) {
	var data string
	err := s.db.QueryRowContext(ctx, `
		SELECT messages FROM tutor_conversations WHERE level_id = ?`, levelID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("loading messages: %w", err)
	}

	var messages []llm.Message
	if err := json.Unmarshal([]byte(data), &messages); err != nil {
		return nil, fmt.Errorf("unmarshaling messages: %w", err)
	}
	return messages, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// scanner works with both *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanAttempt(s scanner) (*storage.Attempt, error) {
	var (
		a         storage.Attempt
		status    string
		elapsed   int64
		report    string
		createdAt string
	)
	err := s.Scan(&a.ID, &a.LevelID, &a.LevelNumber, &a.FunctionName, &a.Code,
		&status, &a.Passed, &a.Total, &elapsed, &report, &createdAt)
	if err != nil {
		return nil, err
	}
	a.Status = storage.AttemptStatus(status)
	a.Elapsed = time.Duration(elapsed)
	if report != "" {
		a.Report = json.RawMessage(report)
	}
	a.CreatedAt, _ = time.Parse(timeLayout, createdAt)
	return &a, nil
}
