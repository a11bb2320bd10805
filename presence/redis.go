// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package presence

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/bureau-foundation/bureau/lib/ref"
)

// Key and channel naming, grounded in the reference hub's redis_client.py
// (client:{id} hash, presence-events channel).
const (
	presenceKeyPrefix   = "presence:"
	inboxChannelPrefix  = "replica-inbox:"
	presenceEventsTopic = "presence-events"
)

// registerScript unconditionally overwrites the presence hash and
// resets its TTL. Unconditional because the Hub only registers after a
// successful handshake, which always supersedes whatever was there.
var registerScript = redis.NewScript(`
redis.call("HSET", KEYS[1], "status", ARGV[1], "replica_id", ARGV[2], "connected_at", ARGV[3], "last_heartbeat", ARGV[3])
redis.call("EXPIRE", KEYS[1], ARGV[4])
redis.call("PUBLISH", KEYS[2], ARGV[5])
return 1
`)

// touchScript refreshes last_heartbeat and the TTL only if replica_id
// still matches the caller, implementing the ownership CAS atomically
// so a stale owner's heartbeat can never resurrect an evicted record.
var touchScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "replica_id")
if current == false then
  return 0
end
if current ~= ARGV[1] then
  return -1
end
redis.call("HSET", KEYS[1], "last_heartbeat", ARGV[2])
redis.call("EXPIRE", KEYS[1], ARGV[3])
return 1
`)

// deregisterScript deletes the record only if replica_id still
// matches, so a crashing old owner racing a newly registered owner can
// never erase the new registration.
var deregisterScript = redis.NewScript(`
local current = redis.call("HGET", KEYS[1], "replica_id")
if current == false then
  return 0
end
if current ~= ARGV[1] then
  return 0
end
redis.call("DEL", KEYS[1])
redis.call("PUBLISH", KEYS[2], ARGV[2])
return 1
`)

// RedisDirectory is the production Directory backing store. One
// instance is shared by all goroutines on a replica; the underlying
// redis.Client already pools and pipelines connections.
type RedisDirectory struct {
	client *redis.Client
	ttl    time.Duration
}

// NewRedisDirectory wraps an established Redis client. ttl is the
// presence record lifetime refreshed on every Touch; the spec's
// default is 45s (three missed heartbeats at the default 15s
// interval).
func NewRedisDirectory(client *redis.Client, ttl time.Duration) *RedisDirectory {
	return &RedisDirectory{client: client, ttl: ttl}
}

func presenceKey(agentID ref.AgentID) string { return presenceKeyPrefix + agentID.String() }
func inboxChannel(replicaID ref.ReplicaID) string { return inboxChannelPrefix + replicaID.String() }

func (d *RedisDirectory) Register(ctx context.Context, agentID ref.AgentID, replicaID ref.ReplicaID, now time.Time) error {
	changeEvent, err := json.Marshal(Entry{
		AgentID: agentID, Status: StatusOnline, ReplicaID: replicaID,
		ConnectedAt: now, LastHeartbeat: now,
	})
	if err != nil {
		return fmt.Errorf("presence: marshal register event: %w", err)
	}
	err = registerScript.Run(ctx, d.client,
		[]string{presenceKey(agentID), presenceEventsTopic},
		string(StatusOnline), replicaID.String(), strconv.FormatInt(now.Unix(), 10),
		int(d.ttl.Seconds()), string(changeEvent),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (d *RedisDirectory) Touch(ctx context.Context, agentID ref.AgentID, replicaID ref.ReplicaID, now time.Time) error {
	result, err := touchScript.Run(ctx, d.client,
		[]string{presenceKey(agentID)},
		replicaID.String(), strconv.FormatInt(now.Unix(), 10), int(d.ttl.Seconds()),
	).Int64()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	switch result {
	case 1:
		return nil
	case -1:
		return ErrEvicted
	default:
		return ErrNotFound
	}
}

func (d *RedisDirectory) Deregister(ctx context.Context, agentID ref.AgentID, replicaID ref.ReplicaID) error {
	changeEvent, err := json.Marshal(Entry{AgentID: agentID, Status: StatusOffline, ReplicaID: replicaID})
	if err != nil {
		return fmt.Errorf("presence: marshal deregister event: %w", err)
	}
	err = deregisterScript.Run(ctx, d.client,
		[]string{presenceKey(agentID), presenceEventsTopic},
		replicaID.String(), string(changeEvent),
	).Err()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}

func (d *RedisDirectory) Lookup(ctx context.Context, agentID ref.AgentID) (Entry, error) {
	values, err := d.client.HGetAll(ctx, presenceKey(agentID)).Result()
	if err != nil {
		return Entry{}, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if len(values) == 0 {
		return Entry{}, ErrNotFound
	}
	return parseEntry(agentID, values)
}

func parseEntry(agentID ref.AgentID, values map[string]string) (Entry, error) {
	replicaID, err := ref.NewReplicaID(values["replica_id"])
	if err != nil {
		return Entry{}, fmt.Errorf("presence: parsing replica_id: %w", err)
	}
	connectedAt, err := strconv.ParseInt(values["connected_at"], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("presence: parsing connected_at: %w", err)
	}
	lastHeartbeat, err := strconv.ParseInt(values["last_heartbeat"], 10, 64)
	if err != nil {
		return Entry{}, fmt.Errorf("presence: parsing last_heartbeat: %w", err)
	}
	return Entry{
		AgentID:       agentID,
		Status:        Status(values["status"]),
		ReplicaID:     replicaID,
		ConnectedAt:   time.Unix(connectedAt, 0).UTC(),
		LastHeartbeat: time.Unix(lastHeartbeat, 0).UTC(),
	}, nil
}

func (d *RedisDirectory) Deliver(ctx context.Context, replicaID ref.ReplicaID, envelope Envelope) error {
	payload, err := json.Marshal(envelope)
	if err != nil {
		return fmt.Errorf("presence: marshal envelope: %w", err)
	}
	receivers, err := d.client.Publish(ctx, inboxChannel(replicaID), payload).Result()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	if receivers == 0 {
		return ErrNoSuchReplica
	}
	return nil
}

func (d *RedisDirectory) Subscribe(ctx context.Context, replicaID ref.ReplicaID) (Subscription, error) {
	pubsub := d.client.Subscribe(ctx, inboxChannel(replicaID), presenceEventsTopic)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	sub := &redisSubscription{
		pubsub:    pubsub,
		envelopes: make(chan Envelope, 64),
		changes:   make(chan Entry, 64),
		done:      make(chan struct{}),
	}
	go sub.pump(inboxChannel(replicaID))
	return sub, nil
}

func (d *RedisDirectory) Close() error { return d.client.Close() }

// redisSubscription demultiplexes the two channels a replica
// subscribes to (its own inbox, and the fleet-wide presence-events
// topic) into the two typed channels Subscription exposes.
type redisSubscription struct {
	pubsub    *redis.PubSub
	envelopes chan Envelope
	changes   chan Entry
	done      chan struct{}
}

func (s *redisSubscription) pump(inbox string) {
	defer close(s.envelopes)
	defer close(s.changes)
	for msg := range s.pubsub.Channel() {
		select {
		case <-s.done:
			return
		default:
		}
		if msg.Channel == inbox {
			var envelope Envelope
			if err := json.Unmarshal([]byte(msg.Payload), &envelope); err != nil {
				continue
			}
			select {
			case s.envelopes <- envelope:
			case <-s.done:
				return
			}
			continue
		}
		var entry Entry
		if err := json.Unmarshal([]byte(msg.Payload), &entry); err != nil {
			continue
		}
		select {
		case s.changes <- entry:
		case <-s.done:
			return
		}
	}
}

func (s *redisSubscription) Envelopes() <-chan Envelope { return s.envelopes }
func (s *redisSubscription) Changes() <-chan Entry      { return s.changes }

func (s *redisSubscription) Close() error {
	select {
	case <-s.done:
		return nil
	default:
		close(s.done)
	}
	return s.pubsub.Close()
}

// IsUnavailable reports whether err indicates the directory's backing
// store could not be reached, as opposed to a well-formed "not found"
// or "evicted" response.
func IsUnavailable(err error) bool { return errors.Is(err, ErrUnavailable) }
