package session

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

var (
	// ErrRedisUnavailable wraps every Redis transport failure.
	ErrRedisUnavailable = errors.New("redis unavailable")
	// ErrNotFound means the session is missing or past its expiry.
	ErrNotFound = errors.New("session not found")
	// ErrCorrupt means the stored blob could not be decoded.
	ErrCorrupt = errors.New("session corrupt")
)

// unindex drops the blob and its user-index entry in one step.
var unindex = redis.NewScript(`
redis.call("SREM", KEYS[2], ARGV[1])
return redis.call("DEL", KEYS[1])
`)

// Store keeps legacy sessions in Redis under two key shapes:
//
//	<prefix>:<sessionID>   encoded session, expiring with the session
//	<prefix>u:<userID>     set of the user's session IDs
type Store struct {
	redis  redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewStore uses prefix "ls" when prefix is empty.
func NewStore(client redis.UniversalClient, prefix string) *Store {
	if prefix == "" {
		prefix = "ls"
	}
	return &Store{redis: client, prefix: prefix, now: time.Now}
}

func (s *Store) blobKey(id string) string    { return s.prefix + ":" + id }
func (s *Store) indexKey(user string) string { return s.prefix + "u:" + user }

func unavailable(err error) error {
	return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
}

// Save writes sess with a TTL equal to its remaining lifetime.
func (s *Store) Save(ctx context.Context, sess *Session) error {
	if !ValidID(sess.ID) {
		return errInvalidID
	}
	ttl := time.Unix(sess.ExpiresAt, 0).Sub(s.now())
	if ttl <= 0 {
		return fmt.Errorf("session %s expired at %d", sess.ID, sess.ExpiresAt)
	}
	blob, err := Encode(sess)
	if err != nil {
		return err
	}

	if _, err := s.redis.TxPipelined(ctx, func(p redis.Pipeliner) error {
		p.Set(ctx, s.blobKey(sess.ID), blob, ttl)
		p.SAdd(ctx, s.indexKey(sess.UserID), sess.ID)
		return nil
	}); err != nil {
		return unavailable(err)
	}
	return nil
}

// Get loads the session stored under id. A session found past its expiry is
// deleted and reported as ErrNotFound.
func (s *Store) Get(ctx context.Context, id string) (*Session, error) {
	if !ValidID(id) {
		return nil, ErrNotFound
	}
	blob, err := s.redis.Get(ctx, s.blobKey(id)).Bytes()
	switch {
	case errors.Is(err, redis.Nil):
		return nil, ErrNotFound
	case err != nil:
		return nil, unavailable(err)
	}

	sess, err := Decode(blob)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrCorrupt, err)
	}
	sess.ID = id
	if !sess.Expired(s.now()) {
		return sess, nil
	}
	if err := s.Delete(ctx, sess); err != nil {
		return nil, err
	}
	return nil, ErrNotFound
}

// Delete removes sess. A session that is already gone is not an error.
func (s *Store) Delete(ctx context.Context, sess *Session) error {
	keys := []string{s.blobKey(sess.ID), s.indexKey(sess.UserID)}
	if err := unindex.Run(ctx, s.redis, keys, sess.ID).Err(); err != nil && !errors.Is(err, redis.Nil) {
		return unavailable(err)
	}
	return nil
}

// DeleteAllForUser removes every session in userID's index along with the index.
func (s *Store) DeleteAllForUser(ctx context.Context, userID string) error {
	index := s.indexKey(userID)
	ids, err := s.redis.SMembers(ctx, index).Result()
	if err != nil {
		return unavailable(err)
	}
	keys := make([]string, 0, len(ids)+1)
	for _, id := range ids {
		keys = append(keys, s.blobKey(id))
	}
	if err := s.redis.Del(ctx, append(keys, index)...).Err(); err != nil {
		return unavailable(err)
	}
	return nil
}

// ActiveSessionCount returns the size of userID's index. Entries for expired
// blobs linger until a Get or Delete touches them.
func (s *Store) ActiveSessionCount(ctx context.Context, userID string) (int, error) {
	n, err := s.redis.SCard(ctx, s.indexKey(userID)).Result()
	if err != nil {
		return 0, unavailable(err)
	}
	return int(n), nil
}

// Ping round-trips to Redis and reports how long it took.
func (s *Store) Ping(ctx context.Context) (time.Duration, error) {
	start := time.Now()
	err := s.redis.Ping(ctx).Err()
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, unavailable(err)
	}
	return elapsed, nil
}
