package repositories

import (
	"context"

	"github.com/mnemosyne/server/domain/entities"
)

// SessionRepository defines durable storage for sessions. Every write
// must be visible before the call returns; the session state machine
// relies on that for crash safety.
type SessionRepository interface {
	Create(ctx context.Context, session *entities.Session) error
	GetByID(ctx context.Context, id string) (*entities.Session, error)
	List(ctx context.Context) ([]*entities.Session, error)
	Update(ctx context.Context, session *entities.Session) error
	Delete(ctx context.Context, id string) error
}
