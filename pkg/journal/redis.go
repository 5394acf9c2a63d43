package journal

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/redis/go-redis/v9"
)

// replayBatch is the LRANGE page size used by Replay.
const replayBatch = 500

// Redis stores entries in a Redis list and publishes each one on a channel.
// Keys are namespaced: pledge:{namespace}:journal and
// pledge:{namespace}:events.
type Redis struct {
	rdb       *redis.Client
	namespace string
	ownClient bool
}

// ListKey returns the list key for namespace.
func ListKey(namespace string) string {
	return fmt.Sprintf("pledge:%s:journal", namespace)
}

// EventsChannel returns the pub/sub channel for namespace.
func EventsChannel(namespace string) string {
	return fmt.Sprintf("pledge:%s:events", namespace)
}

// NewRedis creates a Redis journal on an existing client. The caller keeps
// ownership of rdb.
func NewRedis(rdb *redis.Client, namespace string) (*Redis, error) {
	if namespace == "" {
		return nil, fmt.Errorf("namespace cannot be empty")
	}
	return &Redis{rdb: rdb, namespace: namespace}, nil
}

// DialRedis connects to Redis and creates a journal that owns the client.
func DialRedis(ctx context.Context, opts *redis.Options, namespace string) (*Redis, error) {
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("failed to connect to redis: %w", err)
	}
	j, err := NewRedis(rdb, namespace)
	if err != nil {
		_ = rdb.Close()
		return nil, err
	}
	j.ownClient = true
	return j, nil
}

// appendScript pushes ARGV[1] only if the list holds exactly ARGV[2]-1
// entries, then publishes it. KEYS[1] is the list, KEYS[2] the channel.
var appendScript = redis.NewScript(`
local n = redis.call('LLEN', KEYS[1])
if n + 1 ~= tonumber(ARGV[2]) then
  return redis.error_reply('SEQMISMATCH next ' .. (n + 1))
end
redis.call('RPUSH', KEYS[1], ARGV[1])
redis.call('PUBLISH', KEYS[2], ARGV[1])
return n + 1
`)

// Append implements Journal. The length check, the push and the publish run
// atomically in one script, so a retry of a write whose reply was lost is
// refused with ErrSequence instead of duplicating the entry.
func (j *Redis) Append(ctx context.Context, e Entry) error {
	data, err := json.Marshal(e)
	if err != nil {
		return fmt.Errorf("failed to marshal entry: %w", err)
	}
	keys := []string{ListKey(j.namespace), EventsChannel(j.namespace)}
	err = appendScript.Run(ctx, j.rdb, keys, data, e.Seq).Err()
	if err != nil {
		if strings.HasPrefix(err.Error(), "SEQMISMATCH") {
			return fmt.Errorf("%w: entry %d (%s)", ErrSequence, e.Seq, err)
		}
		return fmt.Errorf("failed to append entry to redis: %w", err)
	}
	return nil
}

// Replay implements Journal.
func (j *Redis) Replay(ctx context.Context, fn func(Entry) error) error {
	key := ListKey(j.namespace)
	for start := int64(0); ; start += replayBatch {
		items, err := j.rdb.LRange(ctx, key, start, start+replayBatch-1).Result()
		if err != nil {
			return fmt.Errorf("failed to read journal from redis: %w", err)
		}
		for i, item := range items {
			var e Entry
			if err := json.Unmarshal([]byte(item), &e); err != nil {
				return fmt.Errorf("%w: index %d: %v", ErrCorrupt, start+int64(i), err)
			}
			if err := fn(e); err != nil {
				return err
			}
		}
		if len(items) < replayBatch {
			return nil
		}
	}
}

// Close implements Journal. The client is closed only if DialRedis created it.
func (j *Redis) Close() error {
	if j.ownClient {
		return j.rdb.Close()
	}
	return nil
}

// Subscription delivers entries published by any process appending to the
// same namespace. Caller must call Close when done.
type Subscription struct {
	events <-chan Entry
	errors <-chan error
	cancel func()
	once   sync.Once
	done   <-chan struct{}
}

// Events returns the entry channel. It is closed when the subscription ends.
func (s *Subscription) Events() <-chan Entry {
	return s.events
}

// Errors returns decode errors. The subscription continues after errors.
func (s *Subscription) Errors() <-chan error {
	return s.errors
}

// Close stops the subscription and waits for its goroutine to exit.
// Safe to call multiple times.
func (s *Subscription) Close() error {
	s.once.Do(s.cancel)
	<-s.done
	return nil
}

// Subscribe listens for entries appended after the subscription is ready.
// Delivery is at-most-once; use Replay for history.
func (j *Redis) Subscribe(ctx context.Context) (*Subscription, error) {
	pubsub := j.rdb.Subscribe(ctx, EventsChannel(j.namespace))
	// Wait for the subscription confirmation so no publish is missed after return.
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return nil, fmt.Errorf("failed to subscribe: %w", err)
	}

	eventsChan := make(chan Entry, 10)
	errorsChan := make(chan error, 10)
	done := make(chan struct{})
	subCtx, cancel := context.WithCancel(ctx)

	go func() {
		defer close(done)
		defer close(eventsChan)
		defer close(errorsChan)
		defer func() { _ = pubsub.Close() }()

		ch := pubsub.Channel()
		for {
			select {
			case <-subCtx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				var e Entry
				if err := json.Unmarshal([]byte(msg.Payload), &e); err != nil {
					select {
					case errorsChan <- fmt.Errorf("failed to unmarshal journal event: %w", err):
					case <-subCtx.Done():
						return
					}
					continue
				}
				select {
				case eventsChan <- e:
				case <-subCtx.Done():
					return
				}
			}
		}
	}()

	return &Subscription{
		events: eventsChan,
		errors: errorsChan,
		cancel: cancel,
		done:   done,
	}, nil
}
