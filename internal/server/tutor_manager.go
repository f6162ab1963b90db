package server

import (
	"context"
	"fmt"
	"sync"

	"github.com/michaelbrown/oracle/internal/level"
	"github.com/michaelbrown/oracle/internal/storage"
	"github.com/michaelbrown/oracle/internal/tutor"
)

// TutorFactory builds a tutor with no level selected.
type TutorFactory func() (*tutor.Tutor, error)

// ActiveTutor is an in-memory tutor for one level.
type ActiveTutor struct {
	Tutor  *tutor.Tutor
	Cancel context.CancelFunc // cancels an in-flight question
	mu     sync.Mutex         // one question at a time per level
}

// TutorManager keeps one tutor conversation per level.
type TutorManager struct {
	mu      sync.Mutex
	factory TutorFactory
	store   storage.Store
	tutors  map[string]*ActiveTutor
}

// NewTutorManager creates a manager. A nil factory disables tutoring.
func NewTutorManager(factory TutorFactory, store storage.Store) *TutorManager {
	return &TutorManager{
		factory: factory,
		store:   store,
		tutors:  make(map[string]*ActiveTutor),
	}
}

// Enabled reports whether tutors can be created.
func (tm *TutorManager) Enabled() bool {
	return tm.factory != nil
}

// GetOrCreate returns the tutor for l, building one and restoring its saved
// conversation on first use.
func (tm *TutorManager) GetOrCreate(ctx context.Context, l *level.Level) (*ActiveTutor, error) {
	tm.mu.Lock()
	defer tm.mu.Unlock()

	if at, ok := tm.tutors[l.ID]; ok {
		return at, nil
	}
	if tm.factory == nil {
		return nil, fmt.Errorf("tutor is not configured")
	}

	t, err := tm.factory()
	if err != nil {
		return nil, fmt.Errorf("creating tutor: %w", err)
	}
	t.SetLevel(l)

	messages, err := tm.store.LoadConversation(ctx, l.ID)
	if err != nil {
		return nil, fmt.Errorf("loading conversation: %w", err)
	}
	if len(messages) > 0 {
		t.SetHistory(messages)
	}

	at := &ActiveTutor{Tutor: t}
	tm.tutors[l.ID] = at
	return at, nil
}

// Save persists the conversation for levelID.
func (tm *TutorManager) Save(ctx context.Context, levelID string, at *ActiveTutor) error {
	return tm.store.SaveConversation(ctx, levelID, at.Tutor.History())
}

// Remove drops the tutor for levelID and cancels any in-flight question.
func (tm *TutorManager) Remove(levelID string) {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	if at, ok := tm.tutors[levelID]; ok {
		if at.Cancel != nil {
			at.Cancel()
		}
		delete(tm.tutors, levelID)
	}
}

// CloseAll cancels every in-flight question.
func (tm *TutorManager) CloseAll() {
	tm.mu.Lock()
	defer tm.mu.Unlock()
	for id, at := range tm.tutors {
		if at.Cancel != nil {
			at.Cancel()
		}
		delete(tm.tutors, id)
	}
}
