package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/michaelbrown/oracle/internal/evaluator"
	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/llm"
)

var (
	ErrNotFound  = errors.New("not found")
	ErrAmbiguous = errors.New("ambiguous id prefix")
)

// AttemptStatus mirrors evaluator.Status.
type AttemptStatus string

const (
	StatusPassed   AttemptStatus = AttemptStatus(evaluator.StatusPassed)
	StatusFailed   AttemptStatus = AttemptStatus(evaluator.StatusFailed)
	StatusRejected AttemptStatus = AttemptStatus(evaluator.StatusRejected)
)

// Attempt is one evaluated submission.
type Attempt struct {
	ID           string          `json:"id"`
	LevelID      string          `json:"level_id"`
	LevelNumber  int             `json:"level_number"`
	FunctionName string          `json:"function_name"`
	Code         string          `json:"code"`
	Status       AttemptStatus   `json:"status"`
	Passed       int             `json:"passed"`
	Total        int             `json:"total"`
	Elapsed      time.Duration   `json:"elapsed"`
	Report       json.RawMessage `json:"report,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
}

// NewAttempt builds an attempt record for a finished evaluation.
func NewAttempt(l *level.Level, code string, r *evaluator.Report) (*Attempt, error) {
	data, err := json.Marshal(r)
	if err != nil {
		return nil, fmt.Errorf("encoding report: %w", err)
	}
	return &Attempt{
		ID:           uuid.NewString(),
		LevelID:      l.ID,
		LevelNumber:  l.Number,
		FunctionName: l.FunctionName,
		Code:         code,
		Status:       AttemptStatus(r.Status),
		Passed:       r.PassedCount(),
		Total:        len(r.Verdicts),
		Elapsed:      r.Elapsed,
		Report:       data,
	}, nil
}

// DecodeReport unmarshals the stored evaluator report.
func (a *Attempt) DecodeReport() (*evaluator.Report, error) {
	if len(a.Report) == 0 {
		return nil, fmt.Errorf("attempt %s has no report", a.ID)
	}
	var r evaluator.Report
	if err := json.Unmarshal(a.Report, &r); err != nil {
		return nil, fmt.Errorf("decoding report: %w", err)
	}
	return &r, nil
}

// AttemptListOptions controls filtering and pagination for ListAttempts.
type AttemptListOptions struct {
	LevelID string
	Status  AttemptStatus
	Limit   int
	Offset  int
}

// LevelProgress aggregates the attempts for one level.
type LevelProgress struct {
	LevelID       string        `json:"level_id"`
	LevelNumber   int           `json:"level_number"`
	Attempts      int           `json:"attempts"`
	Solved        bool          `json:"solved"`
	FirstSolvedAt time.Time     `json:"first_solved_at,omitzero"`
	BestElapsed   time.Duration `json:"best_elapsed,omitempty"`
}

// Store is the persistence interface for attempts and tutor conversations.
type Store interface {
	// CreateAttempt inserts an attempt. The ID field must be set by the caller.
	CreateAttempt(ctx context.Context, a *Attempt) error

	// GetAttempt returns an attempt by ID or unique ID prefix.
	GetAttempt(ctx context.Context, id string) (*Attempt, error)

	// ListAttempts returns attempts newest first. Code and Report are omitted.
	ListAttempts(ctx context.Context, opts AttemptListOptions) ([]Attempt, error)

	// DeleteAttempt removes an attempt by ID or unique ID prefix.
	DeleteAttempt(ctx context.Context, id string) error

	// Progress returns per-level progress ordered by level number.
	Progress(ctx context.Context) ([]LevelProgress, error)

	// SaveConversation overwrites the tutor history for a level.
	SaveConversation(ctx context.Context, levelID string, messages []llm.Message) error

	// LoadConversation returns the tutor history for a level, or nil.
	LoadConversation(ctx context.Context, levelID string) ([]llm.Message, error)

	// Close releases resources.
	Close() error
}
