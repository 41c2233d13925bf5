package session

import (
	"context"
	"fmt"
	"os"
	"sync"

	"go.uber.org/zap"

	"github.com/mnemosyne/server/domain/entities"
	"github.com/mnemosyne/server/domain/repositories"
)

// Service is the authoritative session state machine. All lifecycle
// transitions flow through it and every mutation is persisted before
// the call returns, so a crash never loses a status change.
type Service struct {
	repo   repositories.SessionRepository
	logger *zap.Logger

	// recordingsDir maps a session id to its audio directory, removed
	// on delete.
	recordingsDir func(sessionID string) string

	// locks serializes writes per session id. Every write is a
	// read-modify-update against the repository, so without this two
	// concurrent legal-looking transitions could both commit.
	locks sync.Map
}

// NewService creates the session service. recordingsDir resolves where
// a session's audio artifacts live.
func NewService(repo repositories.SessionRepository, recordingsDir func(string) string, logger *zap.Logger) *Service {
	return &Service{repo: repo, recordingsDir: recordingsDir, logger: logger}
}

// Create creates and persists a new session in the created state.
func (s *Service) Create(ctx context.Context, name string) (*entities.Session, error) {
	session := entities.NewSession(name)
	if err := s.repo.Create(ctx, session); err != nil {
		return nil, err
	}
	s.logger.Info("Created session",
		zap.String("sessionID", session.ID),
		zap.String("name", session.Name))
	return session, nil
}

// Get returns a session by id.
func (s *Service) Get(ctx context.Context, id string) (*entities.Session, error) {
	return s.repo.GetByID(ctx, id)
}

// List returns all sessions, newest first.
func (s *Service) List(ctx context.Context) ([]*entities.Session, error) {
	return s.repo.List(ctx)
}

// Rename changes a session's display name.
func (s *Service) Rename(ctx context.Context, id, name string) (*entities.Session, error) {
	return s.mutate(ctx, id, func(session *entities.Session) {
		session.Name = name
	})
}

// UpdateNotes replaces a session's free-text notes.
func (s *Service) UpdateNotes(ctx context.Context, id, notes string) (*entities.Session, error) {
	return s.mutate(ctx, id, func(session *entities.Session) {
		session.Notes = notes
	})
}

// SetSummary stores a generated summary.
func (s *Service) SetSummary(ctx context.Context, id, summary string) (*entities.Session, error) {
	return s.mutate(ctx, id, func(session *entities.Session) {
		session.Summary = summary
	})
}

// SetAudioFile records the encoded recording path. Called only once a
// capture has fully stopped and finished encoding.
func (s *Service) SetAudioFile(ctx context.Context, id, path string) (*entities.Session, error) {
	return s.mutate(ctx, id, func(session *entities.Session) {
		session.AudioFile = path
	})
}

// AppendSegment appends one finalized segment to the transcript.
func (s *Service) AppendSegment(ctx context.Context, id string, seg entities.Segment) (*entities.Session, error) {
	return s.mutate(ctx, id, func(session *entities.Session) {
		session.AppendSegment(seg)
	})
}

// SetTranscript atomically replaces the transcript and derives the
// participant list.
func (s *Service) SetTranscript(ctx context.Context, id string, segments []entities.Segment) (*entities.Session, error) {
	return s.mutate(ctx, id, func(session *entities.Session) {
		session.SetTranscript(segments)
	})
}

// Transition moves a session along the lifecycle, rejecting illegal
// moves. Only the capture controller and pipeline orchestrator call
// this.
func (s *Service) Transition(ctx context.Context, id string, status entities.SessionStatus) (*entities.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !session.CanTransitionTo(status) {
		return nil, fmt.Errorf("illegal transition %s -> %s for session %s",
			session.Status, status, id)
	}

	previous := session.Status
	session.Status = status
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, err
	}

	s.logger.Info("Session transitioned",
		zap.String("sessionID", id),
		zap.String("from", string(previous)),
		zap.String("to", string(status)))
	return session, nil
}

// Delete removes the persisted record and the session's audio
// artifacts. A session still owned by a capture or pipeline run is
// rejected; callers must stop the activity first.
func (s *Service) Delete(ctx context.Context, id string) error {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return err
	}
	if session.IsActive() {
		return entities.ErrSessionBusy
	}

	if err := s.repo.Delete(ctx, id); err != nil {
		return err
	}

	if dir := s.recordingsDir(id); dir != "" {
		if err := os.RemoveAll(dir); err != nil {
			s.logger.Warn("Failed to remove session recordings",
				zap.String("sessionID", id),
				zap.String("dir", dir),
				zap.Error(err))
		}
	}

	s.locks.Delete(id)
	s.logger.Info("Deleted session", zap.String("sessionID", id))
	return nil
}

// lock acquires the per-session write lock and returns its release.
func (s *Service) lock(id string) func() {
	m, _ := s.locks.LoadOrStore(id, &sync.Mutex{})
	mu := m.(*sync.Mutex)
	mu.Lock()
	return mu.Unlock
}

func (s *Service) mutate(ctx context.Context, id string, fn func(*entities.Session)) (*entities.Session, error) {
	unlock := s.lock(id)
	defer unlock()

	session, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	fn(session)
	if err := s.repo.Update(ctx, session); err != nil {
		return nil, err
	}
	return session, nil
}
