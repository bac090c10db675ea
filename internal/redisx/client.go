package redisx

import (
	"context"
	"errors"
	"time"

	"github.com/redis/go-redis/v9"
)

func New(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  2 * time.Second,
		WriteTimeout: 2 * time.Second,
	})
}

// inFlight marks a claimed idempotency key whose request has not finished.
const inFlight = "\x00pending"

var ErrInFlight = errors.New("request with this idempotency key is still in progress")

// Idempotency remembers responses per key so a retried request replays the
// first outcome instead of running again.
type Idempotency struct{ rdb *redis.Client }

func NewIdempotency(rdb *redis.Client) *Idempotency { return &Idempotency{rdb: rdb} }

// Begin claims key. fresh is true when the caller owns the key and must call
// Complete or Abort. Otherwise cached holds the stored response, or the error
// is ErrInFlight when the first request is still running.
func (i *Idempotency) Begin(ctx context.Context, key string) (cached []byte, fresh bool, err error) {
	ok, err := i.rdb.SetNX(ctx, key, inFlight, TTLInFlight).Result()
	if err != nil {
		return nil, false, err
	}
	if ok {
		return nil, true, nil
	}
	v, err := i.rdb.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		// expired between SetNX and Get; treat as fresh claim
		return i.Begin(ctx, key)
	}
	if err != nil {
		return nil, false, err
	}
	if string(v) == inFlight {
		return nil, false, ErrInFlight
	}
	return v, false, nil
}

func (i *Idempotency) Complete(ctx context.Context, key string, body []byte) error {
	return i.rdb.Set(ctx, key, body, TTLIdempotency).Err()
}

// Abort releases the claim so a failed request can be retried.
func (i *Idempotency) Abort(ctx context.Context, key string) error {
	return i.rdb.Del(ctx, key).Err()
}

// Dedup marks processed event ids per consuming service.
type Dedup struct {
	rdb     *redis.Client
	service string
}

func NewDedup(rdb *redis.Client, service string) *Dedup { return &Dedup{rdb: rdb, service: service} }

// FirstSeen reports whether this is the first delivery of eventID. SetNX
// makes check-and-mark a single step.
func (d *Dedup) FirstSeen(ctx context.Context, eventID string) (bool, error) {
	return d.rdb.SetNX(ctx, DedupKey(d.service, eventID), "1", TTLDedup).Result()
}

// Forget drops the mark so a failed delivery is processed again.
func (d *Dedup) Forget(ctx context.Context, eventID string) error {
	return d.rdb.Del(ctx, DedupKey(d.service, eventID)).Err()
}
