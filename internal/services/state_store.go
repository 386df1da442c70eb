package services

import (
	"context"
	"sync"
	"time"

	"github.com/go-redis/redis/v8"
)

const stateKeyPrefix = "ctrader:oauth:state:"

// StateStore remembers single-use OAuth state nonces between the authorize redirect and the
// callback.
type StateStore interface {
	// Remember records a fresh nonce for ttl.
	Remember(ctx context.Context, nonce string, ttl time.Duration) error
	// Consume reports whether the nonce was outstanding and forgets it.
	Consume(ctx context.Context, nonce string) (bool, error)
}

// RedisStateStore keeps nonces in Redis so they survive restarts and are shared between
// replicas.
type RedisStateStore struct {
	client *redis.Client
}

func NewRedisStateStore(client *redis.Client) *RedisStateStore {
	return &RedisStateStore{client: client}
}

func (s *RedisStateStore) Remember(ctx context.Context, nonce string, ttl time.Duration) error {
	return s.client.SetNX(ctx, stateKeyPrefix+nonce, 1, ttl).Err()
}

func (s *RedisStateStore) Consume(ctx context.Context, nonce string) (bool, error) {
	deleted, err := s.client.Del(ctx, stateKeyPrefix+nonce).Result()
	if err != nil {
		return false, err
	}
	return deleted == 1, nil
}

// MemoryStateStore is the single-process StateStore used when Redis is not configured.
type MemoryStateStore struct {
	mu     sync.Mutex
	nonces map[string]time.Time
	now    func() time.Time
}

func NewMemoryStateStore() *MemoryStateStore {
	return &MemoryStateStore{nonces: make(map[string]time.Time), now: time.Now}
}

func (s *MemoryStateStore) Remember(ctx context.Context, nonce string, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := s.now()
	for n, exp := range s.nonces {
		if !now.Before(exp) {
			delete(s.nonces, n)
		}
	}
	s.nonces[nonce] = now.Add(ttl)
	return nil
}

func (s *MemoryStateStore) Consume(ctx context.Context, nonce string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	exp, ok := s.nonces[nonce]
	if !ok {
		return false, nil
	}
	delete(s.nonces, nonce)
	return s.now().Before(exp), nil
}

// PendingAuthorization is what a cTrader connect request leaves behind for its callback.
type PendingAuthorization struct {
	ClientSecret string
	AccountID    string
	Name         string
	expiresAt    time.Time
}

// PendingAuthorizations holds per-request client secrets in process memory only, keyed by
// state nonce. Secrets are never written to Redis or the database.
type PendingAuthorizations struct {
	mu      sync.Mutex
	pending map[string]PendingAuthorization
	now     func() time.Time
}

func NewPendingAuthorizations() *PendingAuthorizations {
	return &PendingAuthorizations{pending: make(map[string]PendingAuthorization), now: time.Now}
}

// Put stores p under nonce for ttl and drops expired entries.
func (p *PendingAuthorizations) Put(nonce string, auth PendingAuthorization, ttl time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	now := p.now()
	for n, a := range p.pending {
		if !now.Before(a.expiresAt) {
			delete(p.pending, n)
		}
	}
	auth.expiresAt = now.Add(ttl)
	p.pending[nonce] = auth
}

// Take removes and returns the authorization stored under nonce.
func (p *PendingAuthorizations) Take(nonce string) (PendingAuthorization, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	auth, ok := p.pending[nonce]
	if !ok {
		return PendingAuthorization{}, false
	}
	delete(p.pending, nonce)
	if !p.now().Before(auth.expiresAt) {
		return PendingAuthorization{}, false
	}
	return auth, true
}
