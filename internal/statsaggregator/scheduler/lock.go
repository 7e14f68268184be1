package scheduler

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"

	"github.com/G-Research/phonehome/internal/common/armadacontext"
)

// Release gives up a lock obtained from a CycleLock.
type Release func(ctx *armadacontext.Context) error

// CycleLock decides whether this replica may run a cycle.
type CycleLock interface {
	// TryAcquire returns acquired=false without error when another holder has the lock.
	// The lock expires after ttl if it is never released.
	TryAcquire(ctx *armadacontext.Context, ttl time.Duration) (release Release, acquired bool, err error)
}

// StandaloneCycleLock is for single replica deployments and is always acquired.
type StandaloneCycleLock struct{}

func (StandaloneCycleLock) TryAcquire(_ *armadacontext.Context, _ time.Duration) (Release, bool, error) {
	return func(*armadacontext.Context) error { return nil }, true, nil
}

// Deletes the key only if it still holds our token, so an expired lock taken over by another replica is left alone.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisCycleLock is shared by every replica pointing at the same redis and key.
type RedisCycleLock struct {
	db  redis.UniversalClient
	key string
}

func NewRedisCycleLock(db redis.UniversalClient, key string) *RedisCycleLock {
	return &RedisCycleLock{db: db, key: key}
}

func (l *RedisCycleLock) TryAcquire(ctx *armadacontext.Context, ttl time.Duration) (Release, bool, error) {
	token := uuid.NewString()
	acquired, err := l.db.SetNX(ctx, l.key, token, ttl).Result()
	if err != nil {
		return nil, false, errors.Wrapf(err, "error acquiring cycle lock %s", l.key)
	}
	if !acquired {
		return nil, false, nil
	}
	release := func(ctx *armadacontext.Context) error {
		if err := releaseScript.Run(ctx, l.db, []string{l.key}, token).Err(); err != nil {
			return errors.Wrapf(err, "error releasing cycle lock %s", l.key)
		}
		return nil
	}
	return release, true, nil
}
