package telephony

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// StateTTL bounds how long an OAuth consent round trip may take.
const StateTTL = 10 * time.Minute

// StateStore binds an OAuth state value to the user who started the flow.
// Consume is single-use.
type StateStore interface {
	Save(ctx context.Context, state, userID string, ttl time.Duration) error
	Consume(ctx context.Context, state string) (userID string, err error)
}

func NewState() string {
	return uuid.NewString()
}

type RedisStateStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStateStore(rdb *redis.Client) *RedisStateStore {
	return &RedisStateStore{rdb: rdb, prefix: "telephony:oauth_state:"}
}

func (s *RedisStateStore) Save(ctx context.Context, state, userID string, ttl time.Duration) error {
	if state == "" || userID == "" {
		return invalidArgument("state and user id are required")
	}
	if err := s.rdb.Set(ctx, s.prefix+state, userID, ttl).Err(); err != nil {
		return fmt.Errorf("save oauth state: %w", err)
	}
	return nil
}

func (s *RedisStateStore) Consume(ctx context.Context, state string) (string, error) {
	if state == "" {
		return "", ErrInvalidState
	}
	userID, err := s.rdb.GetDel(ctx, s.prefix+state).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return "", ErrInvalidState
		}
		return "", fmt.Errorf("consume oauth state: %w", err)
	}
	return userID, nil
}

// MemoryStateStore is a StateStore for tests and local runs.
type MemoryStateStore struct {
	mu    sync.Mutex
	items map[string]memoryState
	clock func() time.Time
}

type memoryState struct {
	userID  string
	expires time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{items: map[string]memoryState{}, clock: time.Now}
}

func (s *MemoryStateStore) Save(ctx context.Context, state, userID string, ttl time.Duration) error {
	if state == "" || userID == "" {
		return invalidArgument("state and user id are required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[state] = memoryState{userID: userID, expires: s.clock().Add(ttl)}
	return nil
}

func (s *MemoryStateStore) Consume(ctx context.Context, state string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	it, ok := s.items[state]
	delete(s.items, state)
	if !ok || !s.clock().Before(it.expires) {
		return "", ErrInvalidState
	}
	return it.userID, nil
}
