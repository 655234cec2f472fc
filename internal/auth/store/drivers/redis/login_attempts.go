package redis

import (
	"context"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// recordFailedLoginLua increments the counter and sets its expiry in one
// step. The window starts at the first failure; a counter found without a
// TTL gets one as well.
var recordFailedLoginLua = goredis.NewScript(`
local count = redis.call('INCR', KEYS[1])
if count == 1 or redis.call('PTTL', KEYS[1]) < 0 then
  redis.call('PEXPIRE', KEYS[1], ARGV[1])
end
return count
`)

type loginAttemptsRepo struct {
	client goredis.UniversalClient
	prefix string
}

func (r *loginAttemptsRepo) RecordFailedLogin(ctx context.Context, key string, window time.Duration) (int64, error) {
	count, err := recordFailedLoginLua.Run(ctx, r.client, []string{r.prefix + key}, window.Milliseconds()).Int64()
	if err != nil {
		return 0, fmt.Errorf("record failed login: %w", err)
	}
	return count, nil
}

func (r *loginAttemptsRepo) ResetFailedLogins(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, r.prefix+key).Err(); err != nil {
		return fmt.Errorf("reset failed logins: %w", err)
	}
	return nil
}
