// Package bus wraps Redis Streams as the message bus every component
// uses to talk to every other component. Producers XADD; consumers join
// a named consumer group, XREADGROUP, process, and XACK — ack happens
// before processing per the at-most-once contract, so a crash between
// ack and processing drops the message rather than risking a duplicate
// order. ScanPending recovers messages orphaned by a crashed consumer
// via XPENDING and XCLAIM.
package bus

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Stream names, matching the external interface contract.
const (
	StreamPrices  = "kis:prices"
	StreamBuy     = "signals:buy"
	StreamSell    = "signals:sell"
	StreamOrders  = "orders:executed"
)

// ErrNoMessages is returned by Read when the block deadline elapses
// with nothing delivered.
var ErrNoMessages = errors.New("bus: no messages")

// Message is one delivered stream entry, decoded into typed fields by
// the caller via Decode.
type Message struct {
	Stream string
	ID     string
	Fields map[string]interface{}
}

// Decode unmarshals the entry's "payload" field into v. Producers
// always publish a single "payload" field holding the JSON encoding of
// the domain record, matching Publish below.
func (m Message) Decode(v interface{}) error {
	raw, ok := m.Fields["payload"]
	if !ok {
		return fmt.Errorf("bus: message %s missing payload field", m.ID)
	}
	s, ok := raw.(string)
	if !ok {
		return fmt.Errorf("bus: message %s payload is not a string", m.ID)
	}
	return json.Unmarshal([]byte(s), v)
}

// Bus is the typed Redis Streams client shared by every process.
type Bus struct {
	rdb *redis.Client
}

// New wraps an existing Redis client.
func New(rdb *redis.Client) *Bus {
	return &Bus{rdb: rdb}
}

// MaxLen caps every stream at approximately this many entries; older
// entries are trimmed opportunistically by Redis (MAXLEN ~).
const MaxLen = 10_000

// Publish JSON-encodes v and XADDs it to stream, approximately capped
// at MaxLen entries.
func (b *Bus) Publish(ctx context.Context, stream string, v interface{}) (string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("bus: marshal payload: %w", err)
	}
	id, err := b.rdb.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		MaxLen: MaxLen,
		Approx: true,
		Values: map[string]interface{}{"payload": string(payload)},
	}).Result()
	if err != nil {
		return "", fmt.Errorf("bus: xadd %s: %w", stream, err)
	}
	return id, nil
}

// EnsureGroup creates the consumer group at the tail of the stream if
// it does not already exist. Safe to call on every process start.
func (b *Bus) EnsureGroup(ctx context.Context, stream, group string) error {
	err := b.rdb.XGroupCreateMkStream(ctx, stream, group, "$").Err()
	if err != nil && !isBusyGroupErr(err) {
		return fmt.Errorf("bus: create group %s/%s: %w", stream, group, err)
	}
	return nil
}

func isBusyGroupErr(err error) bool {
	return err != nil && (err.Error() == "BUSYGROUP Consumer Group name already exists")
}

// Read blocks up to block for new entries assigned to consumer within
// group, across the given streams. It returns ErrNoMessages rather
// than an error when the deadline elapses with nothing delivered.
func (b *Bus) Read(ctx context.Context, group, consumer string, block time.Duration, streams ...string) ([]Message, error) {
	args := make([]string, 0, len(streams)*2)
	for _, s := range streams {
		args = append(args, s)
	}
	for range streams {
		args = append(args, ">")
	}

	res, err := b.rdb.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  args,
		Count:    32,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNoMessages
	}
	if err != nil {
		return nil, fmt.Errorf("bus: xreadgroup: %w", err)
	}

	var out []Message
	for _, stream := range res {
		for _, entry := range stream.Messages {
			out = append(out, Message{Stream: stream.Stream, ID: entry.ID, Fields: entry.Values})
		}
	}
	if len(out) == 0 {
		return nil, ErrNoMessages
	}
	return out, nil
}

// Ack acknowledges a delivered message. Callers ack before processing:
// a crash after ack but before the side effect completes is a dropped
// message, not a duplicate order, matching the at-most-once contract.
func (b *Bus) Ack(ctx context.Context, stream, group, id string) error {
	if err := b.rdb.XAck(ctx, stream, group, id).Err(); err != nil {
		return fmt.Errorf("bus: xack %s/%s/%s: %w", stream, group, id, err)
	}
	return nil
}

// ScanPending finds entries idle for longer than minIdle in group on
// stream and reclaims them onto consumer via XCLAIM, returning them as
// if freshly delivered. Callers run this once at startup (and
// periodically) to recover from a crashed sibling consumer.
func (b *Bus) ScanPending(ctx context.Context, stream, group, consumer string, minIdle time.Duration) ([]Message, error) {
	pending, err := b.rdb.XPendingExt(ctx, &redis.XPendingExtArgs{
		Stream: stream,
		Group:  group,
		Idle:   minIdle,
		Start:  "-",
		End:    "+",
		Count:  100,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("bus: xpending %s/%s: %w", stream, group, err)
	}
	if len(pending) == 0 {
		return nil, nil
	}

	ids := make([]string, 0, len(pending))
	for _, p := range pending {
		ids = append(ids, p.ID)
	}

	claimed, err := b.rdb.XClaim(ctx, &redis.XClaimArgs{
		Stream:   stream,
		Group:    group,
		Consumer: consumer,
		MinIdle:  minIdle,
		Messages: ids,
	}).Result()
	if err != nil {
		return nil, fmt.Errorf("bus: xclaim %s/%s: %w", stream, group, err)
	}

	out := make([]Message, 0, len(claimed))
	for _, entry := range claimed {
		out = append(out, Message{Stream: stream, ID: entry.ID, Fields: entry.Values})
	}
	return out, nil
}
