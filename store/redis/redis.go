// Package redis implements codeact.Checkpointer on Redis. Each session is a
// sorted set of checkpoint IDs scored by creation time, and each checkpoint
// is a JSON string key.
package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	codeact "github.com/nevindra/codeact"
)

// Store implements codeact.Checkpointer backed by Redis.
type Store struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

// Option configures a Store.
type Option func(*Store)

// WithPrefix sets the key prefix (default "codeact:").
func WithPrefix(p string) Option { return func(s *Store) { s.prefix = p } }

// WithTTL expires a session's keys ttl after its last save. Zero keeps them.
func WithTTL(ttl time.Duration) Option { return func(s *Store) { s.ttl = ttl } }

var _ codeact.Checkpointer = (*Store)(nil)

// New creates a Store on client. The caller owns the client.
func New(client redis.UniversalClient, opts ...Option) *Store {
	s := &Store{client: client, prefix: "codeact:"}
	for _, o := range opts {
		o(s)
	}
	return s
}

func (s *Store) indexKey(session string) string { return s.prefix + "session:" + session }
func (s *Store) checkpointKey(session, id string) string {
	return s.prefix + "checkpoint:" + session + ":" + id
}

// Save writes cp and indexes it in one transaction.
func (s *Store) Save(ctx context.Context, cp codeact.Checkpoint) error {
	data, err := json.Marshal(cp)
	if err != nil {
		return fmt.Errorf("redis: encode checkpoint: %w", err)
	}
	idx := s.indexKey(cp.Session)
	key := s.checkpointKey(cp.Session, cp.ID)
	_, err = s.client.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, key, data, s.ttl)
		p.ZAdd(ctx, idx, redis.Z{Score: float64(cp.CreatedAt), Member: cp.ID})
		if s.ttl > 0 {
			p.Expire(ctx, idx, s.ttl)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: save checkpoint: %w", err)
	}
	return nil
}

// LoadLatest returns the highest-scored checkpoint of session. Ties on
// score resolve to the lexically greatest ID.
func (s *Store) LoadLatest(ctx context.Context, session string) (codeact.Checkpoint, error) {
	ids, err := s.client.ZRevRangeWithScores(ctx, s.indexKey(session), 0, 0).Result()
	if err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("redis: load index: %w", err)
	}
	if len(ids) == 0 {
		return codeact.Checkpoint{}, codeact.ErrNoCheckpoint
	}
	id, _ := ids[0].Member.(string)
	data, err := s.client.Get(ctx, s.checkpointKey(session, id)).Bytes()
	if errors.Is(err, redis.Nil) {
		return codeact.Checkpoint{}, codeact.ErrNoCheckpoint
	}
	if err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("redis: load checkpoint: %w", err)
	}
	var cp codeact.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return codeact.Checkpoint{}, fmt.Errorf("redis: decode checkpoint: %w", err)
	}
	return cp, nil
}

// Clear removes the session index and every checkpoint it references.
func (s *Store) Clear(ctx context.Context, session string) error {
	idx := s.indexKey(session)
	ids, err := s.client.ZRange(ctx, idx, 0, -1).Result()
	if err != nil {
		return fmt.Errorf("redis: load index: %w", err)
	}
	keys := make([]string, 0, len(ids)+1)
	keys = append(keys, idx)
	for _, id := range ids {
		keys = append(keys, s.checkpointKey(session, id))
	}
	if err := s.client.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("redis: clear: %w", err)
	}
	return nil
}
