package replay

import (
	"context"
	"strconv"

	"github.com/redis/go-redis/v9"

	"github.com/basinforge/streambridge/internal/bridgeerr"
	"github.com/basinforge/streambridge/internal/logging"
)

// RedisOption configures a RedisStore at construction.
type RedisOption func(*RedisStore)

// WithKeyPrefix sets the key prefix prepended to every marker key.
func WithKeyPrefix(prefix string) RedisOption {
	return func(s *RedisStore) { s.prefix = prefix }
}

// WithIgnoreNetworkErrors fixes the store's error policy at construction:
// when true, transport failures make Get return (0, false, nil) and Set a
// silent no-op (with a warning logged) instead of a ReplayStorageError.
func WithIgnoreNetworkErrors(ignore bool) RedisOption {
	return func(s *RedisStore) { s.ignoreNetworkErrors = ignore }
}

// RedisStore is a durable ReplayMarkerStore backed by Redis, shared across
// sources and, potentially, processes.
type RedisStore struct {
	client              *redis.Client
	prefix              string
	ignoreNetworkErrors bool
}

// NewRedisStore constructs a RedisStore over an existing client.
func NewRedisStore(client *redis.Client, opts ...RedisOption) *RedisStore {
	s := &RedisStore{client: client}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Get implements Store.
func (s *RedisStore) Get(ctx context.Context, source, channel string) (int64, bool, error) {
	key := KeyPrefix(s.prefix, source, channel)
	raw, err := s.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return 0, false, nil
	}
	if err != nil {
		return s.handleNetworkErrorGet(source, channel, err)
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, false, bridgeerr.NewReplayStorageError(source, channel, err)
	}
	return value, true, nil
}

// Set implements Store. The compare and the write run as one server-side
// script, so concurrent commits for the same key never regress the stored
// marker; the preceding Get only skips the write when the marker is ahead.
func (s *RedisStore) Set(ctx context.Context, source, channel string, replayID int64) error {
	key := KeyPrefix(s.prefix, source, channel)

	existing, ok, err := s.Get(ctx, source, channel)
	if err != nil {
		return err
	}
	if ok && replayID <= existing {
		return nil
	}

	const setIfGreater = `local cur = redis.call('GET', KEYS[1])
if cur and tonumber(cur) >= tonumber(ARGV[1]) then return 0 end
redis.call('SET', KEYS[1], ARGV[1])
return 1`
	if err := s.client.Eval(ctx, setIfGreater, []string{key}, strconv.FormatInt(replayID, 10)).Err(); err != nil {
		return s.handleNetworkErrorSet(source, channel, err)
	}
	return nil
}

func (s *RedisStore) handleNetworkErrorGet(source, channel string, err error) (int64, bool, error) {
	if s.ignoreNetworkErrors {
		log := logging.WithComponent("replay")
		log.Warn().Err(err).Str("source", source).Str("channel", channel).
			Msg("replay store unavailable, treating as no marker")
		return 0, false, nil
	}
	return 0, false, bridgeerr.NewReplayStorageError(source, channel, err)
}

func (s *RedisStore) handleNetworkErrorSet(source, channel string, err error) error {
	if s.ignoreNetworkErrors {
		log := logging.WithComponent("replay")
		log.Warn().Err(err).Str("source", source).Str("channel", channel).
			Msg("replay store unavailable, dropping marker write")
		return nil
	}
	return bridgeerr.NewReplayStorageError(source, channel, err)
}
