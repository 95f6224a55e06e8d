package store

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/hirewire/chat-service/internal/directory"
	"github.com/hirewire/chat-service/internal/domain"
)

// GormMessageRepository implements MessageStore using GORM.
type GormMessageRepository struct {
	db *gorm.DB

	// Per-job write locks preserve persistence order within a room.
	jobLocks sync.Map // jobID -> *sync.Mutex

	clock func() time.Time
	newID func() string
}

// NewGormMessageRepository creates a new GORM-based message store.
func NewGormMessageRepository(db *gorm.DB) *GormMessageRepository {
	return &GormMessageRepository{
		db:    db,
		clock: time.Now,
		newID: func() string { return uuid.New().String() },
	}
}

func (r *GormMessageRepository) lockJob(jobID string) *sync.Mutex {
	mu, _ := r.jobLocks.LoadOrStore(jobID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (r *GormMessageRepository) Create(ctx context.Context, msg *domain.Message) error {
	mu := r.lockJob(msg.JobID)
	mu.Lock()
	defer mu.Unlock()

	now := r.clock().UTC()
	msg.ID = r.newID()
	msg.CreatedAt = now
	msg.UpdatedAt = now
	msg.IsRead = false
	msg.ReadAt = nil

	model := domain.MessageToModel(msg)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}
	return nil
}

func (r *GormMessageRepository) GetByID(ctx context.Context, id string) (*domain.Message, error) {
	var model domain.MessageModel
	result := r.db.WithContext(ctx).First(&model, "id = ?", id)
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return nil, ErrMessageNotFound
		}
		return nil, result.Error
	}
	return model.ToDomain(), nil
}

func (r *GormMessageRepository) GetByIDs(ctx context.Context, ids []string) ([]*domain.Message, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	var models []domain.MessageModel
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&models).Error; err != nil {
		return nil, err
	}
	messages := make([]*domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, models[i].ToDomain())
	}
	return messages, nil
}

// encodeCursor builds the opaque page cursor. The message id breaks
// ties between rows persisted in the same instant, so no row is skipped
// or repeated across a page boundary.
func encodeCursor(msg *domain.Message) string {
	return msg.CreatedAt.Format(time.RFC3339Nano) + "|" + msg.ID
}

func decodeCursor(cursor string) (time.Time, string, error) {
	ts, id, ok := strings.Cut(cursor, "|")
	if !ok || id == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor %q", cursor)
	}
	cursorTime, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor: %w", err)
	}
	return cursorTime, id, nil
}

func (r *GormMessageRepository) ListByJob(ctx context.Context, jobID, cursor string, limit int, dir Direction) ([]*domain.Message, string, bool, error) {
	if limit <= 0 {
		limit = 50
	}

	q := r.db.WithContext(ctx).Where("job_id = ?", jobID)

	if cursor != "" {
		cursorTime, cursorID, err := decodeCursor(cursor)
		if err != nil {
			return nil, "", false, err
		}
		if dir == DirectionForward {
			q = q.Where("created_at > ? OR (created_at = ? AND id > ?)", cursorTime, cursorTime, cursorID)
		} else {
			q = q.Where("created_at < ? OR (created_at = ? AND id < ?)", cursorTime, cursorTime, cursorID)
		}
	}

	order := "created_at DESC, id DESC"
	if dir == DirectionForward {
		order = "created_at ASC, id ASC"
	}

	// Fetch one extra row to detect whether more pages exist.
	var models []domain.MessageModel
	if err := q.Order(order).Limit(limit + 1).Find(&models).Error; err != nil {
		return nil, "", false, err
	}

	hasMore := len(models) > limit
	if hasMore {
		models = models[:limit]
	}

	messages := make([]*domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, models[i].ToDomain())
	}

	nextCursor := ""
	if hasMore && len(messages) > 0 {
		nextCursor = encodeCursor(messages[len(messages)-1])
	}

	return messages, nextCursor, hasMore, nil
}

func (r *GormMessageRepository) MarkRead(ctx context.Context, ids []string, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("id IN ?", ids).
		Updates(map[string]interface{}{
			"is_read":    true,
			"read_at":    at,
			"updated_at": at,
		}).Error
}

func (r *GormMessageRepository) UnreadCount(ctx context.Context, jobID, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Where("job_id = ? AND sender_id <> ? AND is_read = ?", jobID, userID, false).
		Count(&count).Error
	return count, err
}

func (r *GormMessageRepository) UnreadTotal(ctx context.Context, userID string) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&domain.MessageModel{}).
		Joins("JOIN jobs ON jobs.id = messages.job_id").
		Where("(jobs.poster_id = ? OR jobs.worker_id = ?)", userID, userID).
		Where("messages.sender_id <> ? AND messages.is_read = ?", userID, false).
		Count(&count).Error
	return count, err
}

func (r *GormMessageRepository) Search(ctx context.Context, jobID, query string, limit int) ([]*domain.Message, error) {
	if limit <= 0 {
		limit = 50
	}
	var models []domain.MessageModel
	err := r.db.WithContext(ctx).
		Where("job_id = ? AND content LIKE ?", jobID, "%"+query+"%").
		Order("created_at DESC").
		Limit(limit).
		Find(&models).Error
	if err != nil {
		return nil, err
	}
	messages := make([]*domain.Message, 0, len(models))
	for i := range models {
		messages = append(messages, models[i].ToDomain())
	}
	return messages, nil
}

func (r *GormMessageRepository) DeleteOwn(ctx context.Context, messageID, userID string) error {
	return r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var model domain.MessageModel
		if err := tx.First(&model, "id = ?", messageID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrMessageNotFound
			}
			return err
		}
		if model.SenderID != userID {
			return ErrNotMessageOwner
		}
		return tx.Delete(&domain.MessageModel{}, "id = ?", messageID).Error
	})
}

func (r *GormMessageRepository) ListRooms(ctx context.Context, userID string) ([]*domain.RoomPreview, error) {
	var jobs []directory.JobModel
	err := r.db.WithContext(ctx).
		Where("poster_id = ? OR worker_id = ?", userID, userID).
		Find(&jobs).Error
	if err != nil {
		return nil, err
	}

	previews := make([]*domain.RoomPreview, 0, len(jobs))
	for i := range jobs {
		jobID := jobs[i].ID

		var last domain.MessageModel
		err := r.db.WithContext(ctx).
			Where("job_id = ?", jobID).
			Order("created_at DESC").
			First(&last).Error
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				// No messages yet; the room has no chat activity.
				continue
			}
			return nil, err
		}

		unread, err := r.UnreadCount(ctx, jobID, userID)
		if err != nil {
			return nil, err
		}

		lastMsg := last.ToDomain()
		previews = append(previews, &domain.RoomPreview{
			JobID:       jobID,
			RoomID:      domain.RoomID(jobID),
			LastMessage: lastMsg,
			UnreadCount: unread,
			UpdatedAt:   &lastMsg.CreatedAt,
		})
	}

	// Most recently active room first.
	sort.Slice(previews, func(i, j int) bool {
		return previews[i].LastMessage.CreatedAt.After(previews[j].LastMessage.CreatedAt)
	})

	return previews, nil
}
