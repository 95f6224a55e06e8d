package directory

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/hirewire/chat-service/internal/domain"
)

// UserModel is the minimal slice of the marketplace user table the chat
// core reads. The full schema is owned by the user service.
type UserModel struct {
	ID          string `gorm:"primaryKey"`
	DisplayName string
	IsVerified  bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

func (UserModel) TableName() string {
	return "users"
}

// JobModel is the minimal slice of the job table the access policy
// reads: poster, assigned worker and status.
type JobModel struct {
	ID        string `gorm:"primaryKey"`
	PosterID  string `gorm:"index;not null"`
	WorkerID  string `gorm:"index"`
	Status    string
	CreatedAt time.Time
	UpdatedAt time.Time
}

func (JobModel) TableName() string {
	return "jobs"
}

// GormUserDirectory implements UserDirectory over the shared database.
type GormUserDirectory struct {
	db *gorm.DB
}

// NewGormUserDirectory creates a GORM-backed user directory.
func NewGormUserDirectory(db *gorm.DB) *GormUserDirectory {
	return &GormUserDirectory{db: db}
}

func (d *GormUserDirectory) GetUser(ctx context.Context, userID string) (*domain.User, error) {
	var model UserModel
	result := d.db.WithContext(ctx).First(&model, "id = ?", userID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, result.Error
	}
	return &domain.User{
		ID:          model.ID,
		DisplayName: model.DisplayName,
		IsVerified:  model.IsVerified,
	}, nil
}

// GormJobDirectory implements JobDirectory over the shared database.
type GormJobDirectory struct {
	db *gorm.DB
}

// NewGormJobDirectory creates a GORM-backed job directory.
func NewGormJobDirectory(db *gorm.DB) *GormJobDirectory {
	return &GormJobDirectory{db: db}
}

func (d *GormJobDirectory) GetParticipants(ctx context.Context, jobID string) (*domain.JobParticipants, error) {
	var model JobModel
	result := d.db.WithContext(ctx).First(&model, "id = ?", jobID)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrJobNotFound
		}
		return nil, result.Error
	}
	return &domain.JobParticipants{
		JobID:    model.ID,
		PosterID: model.PosterID,
		WorkerID: model.WorkerID,
		Status:   model.Status,
	}, nil
}
