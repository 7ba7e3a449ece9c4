// Package store is the durable record store backing every entity. Records are
// JSON blobs under string keys in Redis. Mutations go through Update, an
// optimistic WATCH/retry loop, so read-modify-write sequences on one key are
// linearizable while unrelated keys proceed in parallel.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/redis/go-redis/v9"
)

// ErrSkipWrite may be returned by an Update mutation to commit nothing while
// still reporting success to the caller (no-op operations).
var ErrSkipWrite = errors.New("store: skip write")

const updateAttempts = 16

type Store struct {
	rdb *redis.Client
}

func New(rdb *redis.Client) *Store { return &Store{rdb: rdb} }

// Open connects to the Redis named by a redis:// or rediss:// URL and pings it.
func Open(redisURL string) (*Store, error) {
	if strings.TrimSpace(redisURL) == "" {
		return nil, fmt.Errorf("REDIS_URL required")
	}
	opts, err := parseRedisURL(redisURL)
	if err != nil {
		return nil, err
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return &Store{rdb: rdb}, nil
}

func (s *Store) Close() error {
	if s == nil || s.rdb == nil {
		return nil
	}
	return s.rdb.Close()
}

// Client exposes the underlying connection for index sets and mailbox keys
// that do not fit the JSON-record shape.
func (s *Store) Client() *redis.Client { return s.rdb }

// Get loads the record at key, or returns nil when the key is absent.
func Get[T any](ctx context.Context, s *Store, key string) (*T, error) {
	raw, err := s.rdb.Get(ctx, key).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// Put unconditionally overwrites the record at key.
func Put[T any](ctx context.Context, s *Store, key string, v *T) error {
	raw, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, key, raw, 0).Err()
}

// Update runs apply against the current record (zero value and found=false
// when absent) and persists the mutated record, retrying the whole
// read-modify-write when a concurrent writer touches the key first. An error
// from apply aborts without writing; ErrSkipWrite aborts the write but
// reports success. Either the full computed transition is persisted or
// nothing is.
func Update[T any](ctx context.Context, s *Store, key string, apply func(cur *T, found bool) error) (*T, error) {
	var out *T
	for i := 0; i < updateAttempts; i++ {
		err := s.rdb.Watch(ctx, func(tx *redis.Tx) error {
			var cur T
			found := false
			raw, err := tx.Get(ctx, key).Bytes()
			switch {
			case err == redis.Nil:
			case err != nil:
				return err
			default:
				if jerr := json.Unmarshal(raw, &cur); jerr != nil {
					return jerr
				}
				found = true
			}
			if aerr := apply(&cur, found); aerr != nil {
				out = &cur
				return aerr
			}
			newRaw, err := json.Marshal(&cur)
			if err != nil {
				return err
			}
			pipe := tx.TxPipeline()
			pipe.Set(ctx, key, newRaw, 0)
			if _, err := pipe.Exec(ctx); err != nil {
				return err
			}
			out = &cur
			return nil
		}, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if errors.Is(err, ErrSkipWrite) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("store: update %s: %w", key, redis.TxFailedErr)
}

func parseRedisURL(raw string) (*redis.Options, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return nil, err
	}
	if u.Scheme != "redis" && u.Scheme != "rediss" {
		return nil, fmt.Errorf("unsupported scheme: %s", u.Scheme)
	}
	db := 0
	if p := strings.TrimPrefix(u.Path, "/"); p != "" {
		if n, err := strconv.Atoi(p); err == nil {
			db = n
		}
	}
	pass, _ := u.User.Password()
	return &redis.Options{Addr: u.Host, Password: pass, DB: db}, nil
}
