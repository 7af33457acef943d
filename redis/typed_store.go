package redis

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"time"

	goredis "github.com/redis/go-redis/v9"
)

// ErrNotFound is returned by Update when the key does not exist.
var ErrNotFound = stderrors.New("redis: key not found")

// ErrTxConflict is returned by Update when the key kept changing under
// concurrent writers.
var ErrTxConflict = stderrors.New("redis: transaction conflict")

const maxTxAttempts = 10

// TypedStore keeps values of one type as JSON strings under a key prefix.
type TypedStore[C any] struct {
	client    *Client
	keyPrefix string
}

// NewTypedStore creates a TypedStore writing keys as "<keyPrefix>:<key>".
func NewTypedStore[C any](client *Client, keyPrefix string) *TypedStore[C] {
	return &TypedStore[C]{
		client:    client,
		keyPrefix: keyPrefix,
	}
}

func (s *TypedStore[C]) fullKey(key string) string {
	if s.keyPrefix == "" {
		return key
	}
	return s.keyPrefix + ":" + key
}

// Load returns the value under key, or (nil, nil) when it is absent.
func (s *TypedStore[C]) Load(ctx context.Context, key string) (*C, error) {
	raw, err := s.client.rdb.Get(ctx, s.fullKey(key)).Bytes()
	if stderrors.Is(err, goredis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load %q: %w", key, err)
	}
	var val C
	if err := json.Unmarshal(raw, &val); err != nil {
		return nil, fmt.Errorf("decode %q: %w", key, err)
	}
	return &val, nil
}

// Save writes val under key. A zero ttl never expires.
func (s *TypedStore[C]) Save(ctx context.Context, key string, val *C, ttl time.Duration) error {
	data, err := json.Marshal(val)
	if err != nil {
		return fmt.Errorf("encode %q: %w", key, err)
	}
	if err := s.client.rdb.Set(ctx, s.fullKey(key), data, ttl).Err(); err != nil {
		return fmt.Errorf("save %q: %w", key, err)
	}
	return nil
}

// Delete removes key. Deleting an absent key is not an error.
func (s *TypedStore[C]) Delete(ctx context.Context, key string) error {
	if err := s.client.rdb.Del(ctx, s.fullKey(key)).Err(); err != nil {
		return fmt.Errorf("delete %q: %w", key, err)
	}
	return nil
}

// Update loads the value under key, lets fn modify it and writes it back in
// a WATCH/MULTI transaction, retrying when another writer got in between.
// An error from fn aborts the update and is returned unchanged.
func (s *TypedStore[C]) Update(ctx context.Context, key string, ttl time.Duration, fn func(*C) error) (*C, error) {
	full := s.fullKey(key)
	var out *C

	txf := func(tx *goredis.Tx) error {
		raw, err := tx.Get(ctx, full).Result()
		if stderrors.Is(err, goredis.Nil) {
			return ErrNotFound
		}
		if err != nil {
			return err
		}
		var val C
		if err := json.Unmarshal([]byte(raw), &val); err != nil {
			return fmt.Errorf("decode %q: %w", key, err)
		}
		if err := fn(&val); err != nil {
			return err
		}
		data, err := json.Marshal(&val)
		if err != nil {
			return fmt.Errorf("encode %q: %w", key, err)
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.Set(ctx, full, data, ttl)
			return nil
		})
		if err == nil {
			out = &val
		}
		return err
	}

	for range maxTxAttempts {
		err := s.client.rdb.Watch(ctx, txf, full)
		if stderrors.Is(err, goredis.TxFailedErr) {
			continue
		}
		if err != nil {
			return nil, err
		}
		return out, nil
	}
	return nil, fmt.Errorf("update %q: %w", key, ErrTxConflict)
}
