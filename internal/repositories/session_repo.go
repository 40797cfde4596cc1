package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/prudhvinik1/sessionauth/internal/models"
	"github.com/redis/go-redis/v9"
	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
)

const sessionPrefix = "session:"
const accountSessionKey = "account:%d:session"

// redisExpiryGrace keeps keys alive a little past the session lifetime so the
// SessionManager's own expiry check, not Redis, decides the boundary.
const redisExpiryGrace = time.Minute

// Optimistic transactions that lose a WATCH race are rerun this many times.
const (
	watchRetries     = 10
	watchBackoffBase = time.Millisecond
)

type RedisSessionRepository struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisSessionRepository stores sessions under session:{token} with an
// account:{id}:session pointer to the live token. A lifetime of zero keeps
// keys until they are deleted.
func NewRedisSessionRepository(client *redis.Client, lifetime time.Duration) *RedisSessionRepository {
	var ttl time.Duration
	if lifetime > 0 {
		ttl = lifetime + redisExpiryGrace
	}
	return &RedisSessionRepository{client: client, ttl: ttl}
}

var _ SessionRepository = (*RedisSessionRepository)(nil)

func (r *RedisSessionRepository) Save(ctx context.Context, session *models.Session) error {
	jsonData, err := json.Marshal(session)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}

	accountKey := fmt.Sprintf(accountSessionKey, session.AccountID)

	err = r.watch(ctx, func(tx *redis.Tx) error {
		previous, err := tx.Get(ctx, accountKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			if previous != "" && previous != session.Token {
				pipe.Del(ctx, sessionKey(previous))
			}
			pipe.Set(ctx, sessionKey(session.Token), jsonData, r.ttl)
			pipe.Set(ctx, accountKey, session.Token, r.ttl)
			return nil
		})
		return err
	}, accountKey)
	if err != nil {
		return oops.Code("SESSION_SAVE_FAILED").With("account_id", session.AccountID).Wrap(err)
	}
	return nil
}

func (r *RedisSessionRepository) GetByToken(ctx context.Context, token string) (*models.Session, error) {
	jsonData, err := r.client.Get(ctx, sessionKey(token)).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, oops.Code("SESSION_LOOKUP_FAILED").Wrap(err)
	}

	var session models.Session
	if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &session, nil
}

func (r *RedisSessionRepository) DeleteByAccountID(ctx context.Context, accountID int64) (bool, error) {
	accountKey := fmt.Sprintf(accountSessionKey, accountID)

	var deleted bool
	err := r.watch(ctx, func(tx *redis.Tx) error {
		deleted = false

		token, err := tx.Get(ctx, accountKey).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var del *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, sessionKey(token))
			pipe.Del(ctx, accountKey)
			return nil
		})
		if err != nil {
			return err
		}
		deleted = del.Val() > 0
		return nil
	}, accountKey)
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").With("account_id", accountID).Wrap(err)
	}
	return deleted, nil
}

// DeleteByToken removes the session stored under token and, when it is still
// the account's live session, the account pointer with it. Only the caller
// whose DEL removed the key sees true.
func (r *RedisSessionRepository) DeleteByToken(ctx context.Context, token string) (bool, error) {
	key := sessionKey(token)

	var deleted bool
	err := r.watch(ctx, func(tx *redis.Tx) error {
		deleted = false

		jsonData, err := tx.Get(ctx, key).Result()
		if errors.Is(err, redis.Nil) {
			return nil
		}
		if err != nil {
			return err
		}

		var session models.Session
		if err := json.Unmarshal([]byte(jsonData), &session); err != nil {
			return fmt.Errorf("failed to unmarshal session: %w", err)
		}

		accountKey := fmt.Sprintf(accountSessionKey, session.AccountID)
		if err := tx.Watch(ctx, accountKey).Err(); err != nil {
			return err
		}
		current, err := tx.Get(ctx, accountKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return err
		}

		var del *redis.IntCmd
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			del = pipe.Del(ctx, key)
			if current == token {
				pipe.Del(ctx, accountKey)
			}
			return nil
		})
		if err != nil {
			return err
		}
		deleted = del.Val() > 0
		return nil
	}, key)
	if err != nil {
		return false, oops.Code("SESSION_DELETE_FAILED").Wrap(err)
	}
	return deleted, nil
}

// watch runs fn under WATCH on keys and reruns it when another client touched
// a watched key before EXEC.
func (r *RedisSessionRepository) watch(ctx context.Context, fn func(*redis.Tx) error, keys ...string) error {
	backoff := retry.WithMaxRetries(watchRetries, retry.NewExponential(watchBackoffBase))
	return retry.Do(ctx, backoff, func(ctx context.Context) error {
		err := r.client.Watch(ctx, fn, keys...)
		if errors.Is(err, redis.TxFailedErr) {
			return retry.RetryableError(err)
		}
		return err
	})
}

func sessionKey(token string) string {
	return sessionPrefix + token
}
