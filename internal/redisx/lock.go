package redisx

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
	redis "github.com/redis/go-redis/v9"
)

const leaseKeyPrefix = "qrpay:lease:"

// Both scripts act only while the stored token still matches, so a worker
// whose lease expired cannot touch the lease of the replica that took over.
var (
	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("DEL", KEYS[1])
end
return 0
`)
	extendScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
  return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)
)

var (
	ErrLockerUnavailable = errors.New("redis locker not configured")
	ErrInvalidLease      = errors.New("lease name and ttl are required")
)

// Locker hands out named leases to background workers.
type Locker struct {
	client *redis.Client
}

func NewLocker(client *redis.Client) *Locker {
	if client == nil {
		return nil
	}
	return &Locker{client: client}
}

// Lease is a held lock on one worker name.
type Lease struct {
	client *redis.Client
	key    string
	token  string
}

// Acquire takes the lease for name. It returns a nil lease and no error
// when another holder owns it.
func (l *Locker) Acquire(ctx context.Context, name string, ttl time.Duration) (*Lease, error) {
	if l == nil || l.client == nil {
		return nil, ErrLockerUnavailable
	}
	name = strings.TrimSpace(name)
	if name == "" || ttl <= 0 {
		return nil, ErrInvalidLease
	}

	lease := &Lease{
		client: l.client,
		key:    LeaseKey(name),
		token:  ulid.Make().String(),
	}
	ok, err := l.client.SetNX(ctx, lease.key, lease.token, ttl).Result()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, nil
	}
	return lease, nil
}

func LeaseKey(name string) string {
	return leaseKeyPrefix + name
}

// Extend pushes the expiry out to ttl from now. False means the lease was
// lost and the holder must stop.
func (l *Lease) Extend(ctx context.Context, ttl time.Duration) (bool, error) {
	if l == nil {
		return false, nil
	}
	n, err := extendScript.Run(ctx, l.client, []string{l.key}, l.token, ttl.Milliseconds()).Int64()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

func (l *Lease) Release(ctx context.Context) error {
	if l == nil {
		return nil
	}
	return releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
}
