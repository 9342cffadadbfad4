// Package lock implements the distributed locks and cooldowns the buy
// and sell executors use to serialize access to a stock code. Locks are
// plain SETNX+TTL with no renewal and no fencing token: a lock holder
// that runs past the TTL simply loses the lock, which is an accepted
// risk for this system's order-serialization use case (see the
// component design notes on lock semantics).
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// ErrNotHeld means the lock could not be acquired because another
// holder currently has it.
var ErrNotHeld = errors.New("lock: not held")

// BuyLockTTL and SellLockTTL match the fixed-order pre-order checks:
// a buy lock is held for the whole sizing+guard+order pipeline, a sell
// lock only for the shorter sell pipeline.
const (
	BuyLockTTL  = 180 * time.Second
	SellLockTTL = 30 * time.Second

	SellCooldownTTL     = 24 * time.Hour
	StoplossCooldownTTL = 3 * 24 * time.Hour
)

// Locks wraps a Redis client for SETNX-based mutual exclusion and
// TTL-based cooldown windows.
type Locks struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Locks {
	return &Locks{rdb: rdb}
}

func buyLockKey(stockCode string) string   { return fmt.Sprintf("lock:buy:%s", stockCode) }
func sellLockKey(stockCode string) string  { return fmt.Sprintf("lock:sell:%s", stockCode) }
func sellCooldownKey(stockCode string) string     { return fmt.Sprintf("cooldown:sell:%s", stockCode) }
func stoplossCooldownKey(stockCode string) string { return fmt.Sprintf("cooldown:stoploss:%s", stockCode) }

func (l *Locks) acquire(ctx context.Context, key string, ttl time.Duration) (string, error) {
	token := uuid.NewString()
	ok, err := l.rdb.SetNX(ctx, key, token, ttl).Result()
	if err != nil {
		return "", fmt.Errorf("lock: setnx %s: %w", key, err)
	}
	if !ok {
		return "", ErrNotHeld
	}
	return token, nil
}

func (l *Locks) release(ctx context.Context, key string) error {
	if err := l.rdb.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("lock: release %s: %w", key, err)
	}
	return nil
}

// AcquireBuy takes the per-stock-code buy lock (180s TTL). Because
// there is no fencing token check, a caller that holds the lock past
// its TTL may have it deleted out from under it by a later holder;
// this system accepts that race in exchange for the simplicity of
// TTL-only locks.
func (l *Locks) AcquireBuy(ctx context.Context, stockCode string) (string, error) {
	return l.acquire(ctx, buyLockKey(stockCode), BuyLockTTL)
}

// ReleaseBuy releases the buy lock unconditionally.
func (l *Locks) ReleaseBuy(ctx context.Context, stockCode string) error {
	return l.release(ctx, buyLockKey(stockCode))
}

// AcquireSell takes the per-stock-code sell lock (30s TTL).
func (l *Locks) AcquireSell(ctx context.Context, stockCode string) (string, error) {
	return l.acquire(ctx, sellLockKey(stockCode), SellLockTTL)
}

// ReleaseSell releases the sell lock unconditionally.
func (l *Locks) ReleaseSell(ctx context.Context, stockCode string) error {
	return l.release(ctx, sellLockKey(stockCode))
}

// SetSellCooldown blocks new buys of stockCode for 24h, written by the
// sell executor after any full exit.
func (l *Locks) SetSellCooldown(ctx context.Context, stockCode string) error {
	return l.setCooldown(ctx, sellCooldownKey(stockCode), SellCooldownTTL)
}

// InSellCooldown reports whether stockCode is within its post-sell
// 24h cooldown window.
func (l *Locks) InSellCooldown(ctx context.Context, stockCode string) (bool, error) {
	return l.inCooldown(ctx, sellCooldownKey(stockCode))
}

// SetStoplossCooldown blocks new buys of stockCode for 3 days, written
// by the sell executor after a STOP_LOSS, ATR_STOP, DEATH_CROSS, or
// BREAKEVEN_STOP exit.
func (l *Locks) SetStoplossCooldown(ctx context.Context, stockCode string) error {
	return l.setCooldown(ctx, stoplossCooldownKey(stockCode), StoplossCooldownTTL)
}

// InStoplossCooldown reports whether stockCode is within its post-
// stop-loss 3 day cooldown window.
func (l *Locks) InStoplossCooldown(ctx context.Context, stockCode string) (bool, error) {
	return l.inCooldown(ctx, stoplossCooldownKey(stockCode))
}

func (l *Locks) setCooldown(ctx context.Context, key string, ttl time.Duration) error {
	if err := l.rdb.Set(ctx, key, time.Now().UTC().Format(time.RFC3339), ttl).Err(); err != nil {
		return fmt.Errorf("lock: set cooldown %s: %w", key, err)
	}
	return nil
}

func (l *Locks) inCooldown(ctx context.Context, key string) (bool, error) {
	n, err := l.rdb.Exists(ctx, key).Result()
	if err != nil {
		return false, fmt.Errorf("lock: check cooldown %s: %w", key, err)
	}
	return n > 0, nil
}
