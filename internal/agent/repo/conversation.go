package repo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/Chative-insight/server/internal/agent/model"
	errx "github.com/Chative-insight/server/internal/core/error"
	logx "github.com/Chative-insight/server/pkg/logger"
)

// RedisSessionRepository stores one JSON snapshot per session, refreshing its
// TTL on every save.
type RedisSessionRepository struct {
	rdb redis.Cmdable
	ttl time.Duration
}

func NewRedisSessionRepository(rdb redis.Cmdable, ttl time.Duration) *RedisSessionRepository {
	return &RedisSessionRepository{rdb: rdb, ttl: ttl}
}

func (r *RedisSessionRepository) sessionKey(sessionID string) string {
	return fmt.Sprintf("session:%s:memory", sessionID)
}

func (r *RedisSessionRepository) SaveSession(ctx context.Context, snap *model.SessionSnapshot) error {
	if snap == nil {
		return errors.New("nil session snapshot")
	}
	b, err := json.Marshal(snap)
	if err != nil {
		logx.Error().Err(err).Str("sessionID", snap.SessionID).Msg("failed to marshal session snapshot")
		return fmt.Errorf("marshal session snapshot: %w", err)
	}
	key := r.sessionKey(snap.SessionID)

	// ttl 0 keeps the key forever
	if err := r.rdb.Set(ctx, key, b, r.ttl).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to save session to redis")
		return errx.WrapRedis(err)
	}
	return nil
}

func (r *RedisSessionRepository) LoadSession(ctx context.Context, sessionID string) (*model.SessionSnapshot, error) {
	key := r.sessionKey(sessionID)

	raw, err := r.rdb.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, nil
		}
		logx.Error().Err(err).Str("key", key).Msg("failed to load session from redis")
		return nil, errx.WrapRedis(err)
	}

	var snap model.SessionSnapshot
	if err := json.Unmarshal(raw, &snap); err != nil {
		logx.Error().Err(err).Str("sessionID", sessionID).Msg("failed to unmarshal session snapshot")
		return nil, fmt.Errorf("unmarshal session snapshot: %w", err)
	}
	if snap.Profile.IntentHistogram == nil {
		snap.Profile.IntentHistogram = map[model.Intent]int{}
	}
	if snap.Profile.TopicHistogram == nil {
		snap.Profile.TopicHistogram = map[string]int{}
	}
	for i := range snap.Turns {
		if snap.Turns[i].Metadata == nil {
			snap.Turns[i].Metadata = map[string]any{}
		}
	}
	return &snap, nil
}

func (r *RedisSessionRepository) DeleteSession(ctx context.Context, sessionID string) error {
	key := r.sessionKey(sessionID)
	if err := r.rdb.Del(ctx, key).Err(); err != nil {
		logx.Error().Err(err).Str("key", key).Msg("failed to delete session from redis")
		return errx.WrapRedis(err)
	}
	return nil
}

// SessionCount returns the number of persisted sessions.
func (r *RedisSessionRepository) SessionCount(ctx context.Context) (int, error) {
	var (
		cursor uint64
		total  int
	)
	for {
		keys, next, err := r.rdb.Scan(ctx, cursor, r.sessionKey("*"), 100).Result()
		if err != nil {
			logx.Error().Err(err).Msg("failed to scan session keys")
			return 0, errx.WrapRedis(err)
		}
		total += len(keys)
		if next == 0 {
			return total, nil
		}
		cursor = next
	}
}

var _ model.SessionRepository = (*RedisSessionRepository)(nil)
