package idempotency

import (
	"context"
	"sync"
	"time"
)

// Status marks where a record is in its lifecycle. A pending record is a
// claim: the wrapped operation is executing and has not produced a response
// yet.
type Status string

const (
	StatusPending   Status = "pending"
	StatusCompleted Status = "completed"
)

// Record holds the stored outcome for one idempotency key. Once completed
// it is never overwritten; replays serve Response verbatim.
type Record struct {
	Key        string    `json:"key"`
	Status     Status    `json:"status"`
	StatusCode int       `json:"statusCode"`
	Response   []byte    `json:"response"`
	CreatedAt  time.Time `json:"createdAt"`
	ExpiresAt  time.Time `json:"expiresAt"`
}

// Store abstracts idempotency persistence so the same middleware runs
// against an in-memory map in tests and a durable store in production.
type Store interface {
	// Claim atomically inserts a pending record for the key if absent.
	// When the key is already present the existing record is returned and
	// claimed is false; the caller must not execute the wrapped operation.
	Claim(ctx context.Context, key string, ttl time.Duration) (existing *Record, claimed bool, err error)

	// Complete finalizes a claimed key with the operation's response.
	Complete(ctx context.Context, key string, statusCode int, response []byte) error

	// Release abandons a claim so a later retry can execute, used when the
	// wrapped operation failed before producing a storable outcome.
	Release(ctx context.Context, key string) error
}

// MemoryStore is the in-process store. Expired records are dropped lazily
// on the next claim for their key.
type MemoryStore struct {
	mu   sync.Mutex
	data map[string]*Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data: make(map[string]*Record),
	}
}

func (m *MemoryStore) Claim(_ context.Context, key string, ttl time.Duration) (*Record, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := time.Now()
	if rec, ok := m.data[key]; ok && now.Before(rec.ExpiresAt) {
		copied := *rec
		return &copied, false, nil
	}

	m.data[key] = &Record{
		Key:       key,
		Status:    StatusPending,
		CreatedAt: now,
		ExpiresAt: now.Add(ttl),
	}
	return nil, true, nil
}

func (m *MemoryStore) Complete(_ context.Context, key string, statusCode int, response []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rec, ok := m.data[key]
	if !ok {
		return nil
	}
	rec.Status = StatusCompleted
	rec.StatusCode = statusCode
	rec.Response = append([]byte(nil), response...)
	return nil
}

func (m *MemoryStore) Release(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}
