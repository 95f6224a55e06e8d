package directory

import (
	"context"
	"errors"

	"github.com/hirewire/chat-service/internal/domain"
	"github.com/hirewire/chat-service/pkg/jwt"
)

var (
	ErrUserNotFound = errors.New("user not found")
	ErrJobNotFound  = errors.New("job not found")
)

// TokenVerifier verifies an issued access token. Token minting and
// rotation live in the auth service; the chat core only verifies.
type TokenVerifier interface {
	Verify(token string) (*jwt.Claims, error)
}

// UserDirectory resolves user identities for session population.
type UserDirectory interface {
	GetUser(ctx context.Context, userID string) (*domain.User, error)
}

// JobDirectory resolves a job's chat participants for the access policy.
type JobDirectory interface {
	GetParticipants(ctx context.Context, jobID string) (*domain.JobParticipants, error)
}
