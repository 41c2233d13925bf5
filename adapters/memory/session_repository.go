package memory

import (
	"context"
	"encoding/json"
	"sort"
	"sync"
	"time"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/domain/repositories"
)

// SessionRepository is an in-memory session store used in tests and
// when running without MongoDB. Sessions are stored as deep copies so
// callers observe only what was persisted.
type SessionRepository struct {
	mu       sync.RWMutex
	sessions map[string]*entities.Session
}

// NewSessionRepository creates an empty in-memory session repository.
func NewSessionRepository() repositories.SessionRepository {
	return &SessionRepository{
		sessions: make(map[string]*entities.Session),
	}
}

func (r *SessionRepository) Create(ctx context.Context, session *entities.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if session.CreatedAt.IsZero() {
		session.CreatedAt = time.Now()
	}
	session.UpdatedAt = time.Now()
	r.sessions[session.ID] = clone(session)
	return nil
}

func (r *SessionRepository) GetByID(ctx context.Context, id string) (*entities.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	session, ok := r.sessions[id]
	if !ok {
		return nil, entities.ErrSessionNotFound
	}
	return clone(session), nil
}

func (r *SessionRepository) List(ctx context.Context) ([]*entities.Session, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	sessions := make([]*entities.Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		sessions = append(sessions, clone(s))
	}
	sort.Slice(sessions, func(i, j int) bool {
		return sessions[i].CreatedAt.After(sessions[j].CreatedAt)
	})
	return sessions, nil
}

func (r *SessionRepository) Update(ctx context.Context, session *entities.Session) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[session.ID]; !ok {
		return entities.ErrSessionNotFound
	}
	session.UpdatedAt = time.Now()
	r.sessions[session.ID] = clone(session)
	return nil
}

func (r *SessionRepository) Delete(ctx context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.sessions[id]; !ok {
		return entities.ErrSessionNotFound
	}
	delete(r.sessions, id)
	return nil
}

func clone(s *entities.Session) *entities.Session {
	data, _ := json.Marshal(s)
	var out entities.Session
	_ = json.Unmarshal(data, &out)
	return &out
}
