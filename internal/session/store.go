package session

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/botflow/engine/pkg/api"
)

// Store persists conversation sessions as JSON values in Redis, keyed by
// tenant and user. Expiry is delegated to Redis through a rolling TTL on
// every save. Mutual exclusion per session is in-process: one engine owns
// a given tenant's traffic
type Store struct {
	client *redis.Client
	locks  *keyedLocks
	prefix string
	ttl    time.Duration
}

var ErrSessionCorrupt = errors.New("stored session unreadable")

// NewStore creates a session store with the given key prefix and TTL
func NewStore(client *redis.Client, prefix string, ttl time.Duration) *Store {
	return &Store{
		client: client,
		locks:  newKeyedLocks(),
		prefix: prefix,
		ttl:    ttl,
	}
}

// Get returns the stored session, or nil when none exists
func (s *Store) Get(
	ctx context.Context, key api.SessionKey,
) (*api.Session, error) {
	data, err := s.client.Get(ctx, s.sessionKey(key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var sess api.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrSessionCorrupt, key)
	}
	return &sess, nil
}

// GetOrCreate returns the stored session, creating an idle one when the
// user has no session yet. The chat address is refreshed on every call so
// delivery follows the transport's latest routing
func (s *Store) GetOrCreate(
	ctx context.Context, key api.SessionKey, chat string,
) (*api.Session, error) {
	sess, err := s.Get(ctx, key)
	if err != nil {
		return nil, err
	}
	if sess == nil {
		return api.NewSession(key, chat), nil
	}
	if chat != "" {
		sess.ChatAddress = chat
	}
	return sess, nil
}

// Save persists the session and restarts its TTL
func (s *Store) Save(ctx context.Context, sess *api.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, s.sessionKey(sess.Key), data, s.ttl).Err()
}

// Delete removes the stored session
func (s *Store) Delete(ctx context.Context, key api.SessionKey) error {
	return s.client.Del(ctx, s.sessionKey(key)).Err()
}

// WithLock runs fn while holding the session's mutex. Events for the same
// session serialize here; events for different sessions run concurrently
func (s *Store) WithLock(key api.SessionKey, fn func() error) error {
	id := key.String()
	e := s.locks.acquire(id)
	defer s.locks.release(id, e)
	return fn()
}

// MarkProcessed records an inbound event ID for duplicate suppression.
// Returns true when the event is new, false when it was already seen
func (s *Store) MarkProcessed(
	ctx context.Context, tenantID api.TenantID, eventID string,
	ttl time.Duration,
) (bool, error) {
	key := s.prefix + ":seen:" + string(tenantID) + ":" + eventID
	return s.client.SetNX(ctx, key, 1, ttl).Result()
}

// ResetAllForTenant returns every session of a tenant to idle and clears
// its variables. Used when the tenant's active flow is replaced
func (s *Store) ResetAllForTenant(
	ctx context.Context, tenantID api.TenantID,
) (int, error) {
	match := s.prefix + ":session:" + string(tenantID) + "/*"
	iter := s.client.Scan(ctx, 0, match, 100).Iterator()

	count := 0
	for iter.Next(ctx) {
		if err := s.resetStored(ctx, iter.Val()); err != nil {
			return count, err
		}
		count++
	}
	return count, iter.Err()
}

func (s *Store) resetStored(ctx context.Context, storedKey string) error {
	data, err := s.client.Get(ctx, storedKey).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	if err != nil {
		return err
	}

	var sess api.Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return s.client.Del(ctx, storedKey).Err()
	}

	sess.Reset()
	updated, err := json.Marshal(&sess)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, storedKey, updated, s.ttl).Err()
}

func (s *Store) sessionKey(key api.SessionKey) string {
	return s.prefix + ":session:" + key.String()
}
