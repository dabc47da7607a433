package auth

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Two-factor code policy: a 4-digit code is issued on every successful
// password login and must be presented within the TTL. Verifying consumes
// the code. Matches the behavior of the original intake portal.
const (
	// TwoFactorCodeLength is the number of digits in a 2FA code.
	TwoFactorCodeLength = 4

	// TwoFactorCodeTTL is how long an issued code remains valid.
	TwoFactorCodeTTL = 10 * time.Minute
)

// Predefined two-factor errors.
var (
	ErrCodeInvalid = errors.New("2fa code invalid")
	ErrCodeExpired = errors.New("2fa code expired or not issued")
)

// CodeStore holds issued 2FA codes until they are verified or expire.
type CodeStore interface {
	// Put stores the code for the username, replacing any prior code.
	Put(ctx context.Context, username, code string, ttl time.Duration) error

	// Consume checks the code for the username. A matching code is removed
	// so it cannot be replayed. Returns ErrCodeExpired when no code is
	// stored and ErrCodeInvalid on mismatch.
	Consume(ctx context.Context, username, code string) error
}

// GenerateTwoFactorCode returns a random numeric code.
func GenerateTwoFactorCode() (string, error) {
	code := ""
	for i := 0; i < TwoFactorCodeLength; i++ {
		n, err := rand.Int(rand.Reader, big.NewInt(10))
		if err != nil {
			return "", fmt.Errorf("generating 2fa code: %w", err)
		}
		code += n.String()
	}
	return code, nil
}

// RedisCodeStore stores 2FA codes in Redis with a TTL.
type RedisCodeStore struct {
	client *redis.Client
}

// NewRedisCodeStore creates a Redis-backed code store.
func NewRedisCodeStore(client *redis.Client) *RedisCodeStore {
	return &RedisCodeStore{client: client}
}

func twoFactorKey(username string) string {
	return "2fa:" + username
}

// Put stores the code for the username, replacing any prior code.
func (s *RedisCodeStore) Put(ctx context.Context, username, code string, ttl time.Duration) error {
	return s.client.Set(ctx, twoFactorKey(username), code, ttl).Err()
}

// Consume checks and removes the stored code for the username.
func (s *RedisCodeStore) Consume(ctx context.Context, username, code string) error {
	stored, err := s.client.Get(ctx, twoFactorKey(username)).Result()
	if errors.Is(err, redis.Nil) {
		return ErrCodeExpired
	}
	if err != nil {
		return fmt.Errorf("reading 2fa code: %w", err)
	}
	if stored != code {
		return ErrCodeInvalid
	}
	return s.client.Del(ctx, twoFactorKey(username)).Err()
}

// MemoryCodeStore is an in-memory CodeStore for tests and local development.
type MemoryCodeStore struct {
	mu    sync.Mutex
	codes map[string]memoryCode
}

type memoryCode struct {
	code      string
	expiresAt time.Time
}

// NewMemoryCodeStore creates an in-memory code store.
func NewMemoryCodeStore() *MemoryCodeStore {
	return &MemoryCodeStore{codes: make(map[string]memoryCode)}
}

// Put stores the code for the username, replacing any prior code.
func (s *MemoryCodeStore) Put(_ context.Context, username, code string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.codes[username] = memoryCode{code: code, expiresAt: time.Now().Add(ttl)}
	return nil
}

// Consume checks and removes the stored code for the username.
func (s *MemoryCodeStore) Consume(_ context.Context, username, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.codes[username]
	if !ok || time.Now().After(stored.expiresAt) {
		delete(s.codes, username)
		return ErrCodeExpired
	}
	if stored.code != code {
		return ErrCodeInvalid
	}
	delete(s.codes, username)
	return nil
}

// Ensure implementations satisfy CodeStore.
var (
	_ CodeStore = (*RedisCodeStore)(nil)
	_ CodeStore = (*MemoryCodeStore)(nil)
)
