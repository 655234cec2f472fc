package redis

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aussiebroadwan/tally/internal/auth/domain"
	"github.com/aussiebroadwan/tally/internal/auth/store"
	goredis "github.com/redis/go-redis/v9"
)

const (
	fieldUserID    = "user_id"
	fieldSessionID = "session_id"
	fieldMethods   = "methods"
	fieldAttempts  = "attempts"
	fieldExpiresAt = "expires_at" // unix ms
)

// recordFailureLua bumps the attempt counter and deletes the challenge once
// it reaches the limit.
// KEYS[1] = challenge key
// ARGV[1] = max attempts
//
// Returns the new attempt count, or -1 when the challenge does not exist.
var recordFailureLua = goredis.NewScript(`
if redis.call('EXISTS', KEYS[1]) == 0 then
  return -1
end
local attempts = redis.call('HINCRBY', KEYS[1], 'attempts', 1)
if attempts >= tonumber(ARGV[1]) then
  redis.call('DEL', KEYS[1])
end
return attempts
`)

type challengesRepo struct {
	client goredis.UniversalClient
	prefix string
	now    func() time.Time
}

func (r *challengesRepo) key(id string) string { return r.prefix + id }

func (r *challengesRepo) CreateChallenge(ctx context.Context, c domain.MFAChallenge) error {
	if !c.ExpiresAt.After(r.now()) {
		return fmt.Errorf("create challenge: already expired at %s", c.ExpiresAt.Format(time.RFC3339))
	}

	methods := make([]string, len(c.Methods))
	for i, m := range c.Methods {
		methods[i] = string(m)
	}

	key := r.key(c.ID)
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.HSet(ctx, key,
			fieldUserID, c.UserID,
			fieldSessionID, c.SessionID,
			fieldMethods, strings.Join(methods, ","),
			fieldAttempts, c.Attempts,
			fieldExpiresAt, c.ExpiresAt.UnixMilli(),
		)
		pipe.PExpireAt(ctx, key, c.ExpiresAt)
		return nil
	})
	if err != nil {
		return fmt.Errorf("create challenge: %w", err)
	}
	return nil
}

func (r *challengesRepo) GetChallenge(ctx context.Context, id string) (domain.MFAChallenge, error) {
	fields, err := r.client.HGetAll(ctx, r.key(id)).Result()
	if err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("get challenge: %w", err)
	}
	return r.decode(id, fields)
}

func (r *challengesRepo) RecordFailure(ctx context.Context, id string, maxAttempts int) (int, bool, error) {
	attempts, err := recordFailureLua.Run(ctx, r.client, []string{r.key(id)}, maxAttempts).Int()
	if err != nil {
		return 0, false, fmt.Errorf("record challenge failure: %w", err)
	}
	if attempts < 0 {
		return 0, false, store.ErrNotFound
	}
	return attempts, attempts >= maxAttempts, nil
}

func (r *challengesRepo) ConsumeChallenge(ctx context.Context, id string) (domain.MFAChallenge, error) {
	key := r.key(id)

	var get *goredis.MapStringStringCmd
	_, err := r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		get = pipe.HGetAll(ctx, key)
		pipe.Del(ctx, key)
		return nil
	})
	if err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("consume challenge: %w", err)
	}
	return r.decode(id, get.Val())
}

func (r *challengesRepo) decode(id string, fields map[string]string) (domain.MFAChallenge, error) {
	if len(fields) == 0 {
		return domain.MFAChallenge{}, store.ErrNotFound
	}

	attempts, err := strconv.Atoi(fields[fieldAttempts])
	if err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("decode challenge attempts: %w", err)
	}
	expiresMs, err := strconv.ParseInt(fields[fieldExpiresAt], 10, 64)
	if err != nil {
		return domain.MFAChallenge{}, fmt.Errorf("decode challenge expiry: %w", err)
	}

	c := domain.MFAChallenge{
		ID:        id,
		UserID:    fields[fieldUserID],
		SessionID: fields[fieldSessionID],
		Attempts:  attempts,
		ExpiresAt: time.UnixMilli(expiresMs).UTC(),
	}
	if !c.ExpiresAt.After(r.now()) {
		return domain.MFAChallenge{}, store.ErrNotFound
	}
	for _, m := range strings.Split(fields[fieldMethods], ",") {
		if m != "" {
			c.Methods = append(c.Methods, domain.MFAMethod(m))
		}
	}
	return c, nil
}
