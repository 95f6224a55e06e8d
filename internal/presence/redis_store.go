package presence

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/hirewire/chat-service/internal/domain"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Address  string
	Password string
	DB       int
}

// Redis key patterns:
// presence:user:{user_id}:status     STRING<online|offline>
// presence:user:{user_id}:last_seen  STRING<RFC3339Nano>

type redisStore struct {
	client *redis.Client
}

// NewRedisStore creates a Redis-backed presence store.
func NewRedisStore(cfg RedisConfig) (Store, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}

	return &redisStore{client: client}, nil
}

func statusKey(userID string) string {
	return fmt.Sprintf("presence:user:%s:status", userID)
}

func lastSeenKey(userID string) string {
	return fmt.Sprintf("presence:user:%s:last_seen", userID)
}

func (s *redisStore) SetStatus(ctx context.Context, userID string, status domain.Status, at time.Time) error {
	pipe := s.client.TxPipeline()
	pipe.Set(ctx, statusKey(userID), string(status), 0)
	pipe.Set(ctx, lastSeenKey(userID), at.UTC().Format(time.RFC3339Nano), 0)
	_, err := pipe.Exec(ctx)
	return err
}

func (s *redisStore) GetStatus(ctx context.Context, userID string) (*UserStatus, error) {
	pipe := s.client.TxPipeline()
	statusCmd := pipe.Get(ctx, statusKey(userID))
	lastSeenCmd := pipe.Get(ctx, lastSeenKey(userID))
	_, err := pipe.Exec(ctx)
	if err != nil && err != redis.Nil {
		return nil, err
	}

	us := &UserStatus{UserID: userID, Status: domain.StatusOffline}

	if v, err := statusCmd.Result(); err == nil && v != "" {
		us.Status = domain.Status(v)
	}
	if v, err := lastSeenCmd.Result(); err == nil && v != "" {
		if ts, err := time.Parse(time.RFC3339Nano, v); err == nil {
			us.LastSeen = ts
		}
	}

	return us, nil
}

func (s *redisStore) Close() error {
	return s.client.Close()
}
