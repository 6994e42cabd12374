package identity

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"counseling/backend/internal/domain"
	"counseling/backend/internal/store"
)

const defaultCacheTTL = 10 * time.Minute

// Lookup resolves user ids against the users table, optionally through a Redis cache.
type Lookup struct {
	repo  store.UserRepository
	cache redis.Cmdable
	ttl   time.Duration
	log   *slog.Logger
}

type Option func(*Lookup)

func WithCache(client redis.Cmdable, ttl time.Duration) Option {
	return func(l *Lookup) {
		l.cache = client
		if ttl > 0 {
			l.ttl = ttl
		}
	}
}

func NewLookup(repo store.UserRepository, log *slog.Logger, opts ...Option) *Lookup {
	if log == nil {
		log = slog.Default()
	}
	l := &Lookup{repo: repo, ttl: defaultCacheTTL, log: log.With(slog.String("component", "identity"))}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

func cacheKey(id string) string {
	return "user:" + id
}

func (l *Lookup) FindUser(ctx context.Context, id string) (domain.User, error) {
	if id == "" {
		return domain.User{}, store.ErrNotFound
	}

	if l.cache != nil {
		raw, err := l.cache.Get(ctx, cacheKey(id)).Bytes()
		switch {
		case err == nil:
			var u domain.User
			if jsonErr := json.Unmarshal(raw, &u); jsonErr == nil {
				return u, nil
			}
		case !errors.Is(err, redis.Nil):
			l.log.Debug("user cache read failed", slog.String("user_id", id), slog.Any("error", err))
		}
	}

	u, err := l.repo.GetUser(ctx, id)
	if err != nil {
		return domain.User{}, err
	}

	if l.cache != nil {
		if raw, err := json.Marshal(u); err == nil {
			if err := l.cache.Set(ctx, cacheKey(id), raw, l.ttl).Err(); err != nil {
				l.log.Debug("user cache write failed", slog.String("user_id", id), slog.Any("error", err))
			}
		}
	}
	return u, nil
}
