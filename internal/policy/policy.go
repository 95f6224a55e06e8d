package policy

import (
	"context"
	"errors"

	"github.com/hirewire/chat-service/internal/directory"
	"github.com/hirewire/chat-service/internal/domain"
)

var (
	// ErrNotParticipant means the user is neither the job's poster nor
	// its assigned worker.
	ErrNotParticipant = errors.New("user is not a participant of this job")
	// ErrJobNotFound mirrors the directory error for callers that only
	// import the policy package.
	ErrJobNotFound = directory.ErrJobNotFound
)

// AccessPolicy decides whether a user may act on a job's chat. It is
// deliberately stateless: results are never cached, so a worker
// reassignment revokes access on the next privileged action.
type AccessPolicy struct {
	jobs directory.JobDirectory
}

// New creates an access policy over the given job directory.
func New(jobs directory.JobDirectory) *AccessPolicy {
	return &AccessPolicy{jobs: jobs}
}

// Authorize returns the user's role for a job's chat, or an error when
// the job does not exist or the user is not a participant. The system
// sender sentinel is always authorized as poster.
func (p *AccessPolicy) Authorize(ctx context.Context, userID, jobID string) (domain.Role, error) {
	if userID == domain.SystemSenderID {
		return domain.RolePoster, nil
	}

	job, err := p.jobs.GetParticipants(ctx, jobID)
	if err != nil {
		return "", err
	}

	switch {
	case userID == job.PosterID:
		return domain.RolePoster, nil
	case job.WorkerID != "" && userID == job.WorkerID:
		return domain.RoleWorker, nil
	default:
		return "", ErrNotParticipant
	}
}
