package idempotency

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// InMemory is a concurrency-safe in-memory register for unit tests and the
// development mode wiring.
type InMemory struct {
	mu     sync.Mutex
	claims map[string]time.Time
}

// NewInMemory creates an empty in-memory register.
func NewInMemory() *InMemory {
	return &InMemory{claims: make(map[string]time.Time)}
}

// Claim inserts the signature or fails with ErrAlreadyClaimed.
func (r *InMemory) Claim(_ context.Context, signature string) error {
	if signature == "" {
		return fmt.Errorf("settlement signature is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.claims[signature]; exists {
		return ErrAlreadyClaimed
	}
	r.claims[signature] = time.Now().UTC()
	return nil
}

// Release deletes the claim for the signature.
func (r *InMemory) Release(_ context.Context, signature string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.claims, signature)
	return nil
}

// IsClaimed reports whether a claim exists for the signature.
func (r *InMemory) IsClaimed(_ context.Context, signature string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, exists := r.claims[signature]
	return exists, nil
}
