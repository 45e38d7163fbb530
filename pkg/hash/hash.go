// Package hash wraps bcrypt behind a weighted semaphore so that concurrent
// logins cannot pin every CPU on key stretching.
package hash

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"golang.org/x/crypto/bcrypt"
	"golang.org/x/sync/semaphore"
)

// DefaultCost matches the work factor used for stored credentials.
const DefaultCost = 12

// dummyPassword is only ever hashed, never compared as a real credential.
const dummyPassword = "dummy-password-for-timing"

type Hasher struct {
	cost int
	sem  *semaphore.Weighted

	dummyOnce sync.Once
	dummyHash []byte
	dummyErr  error
}

func NewHasher(cost, maxConcurrent int) *Hasher {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = DefaultCost
	}
	if maxConcurrent <= 0 {
		maxConcurrent = runtime.NumCPU()
	}
	return &Hasher{
		cost: cost,
		sem:  semaphore.NewWeighted(int64(maxConcurrent)),
	}
}

func (h *Hasher) HashPassword(ctx context.Context, password string) (string, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return "", err
	}
	defer h.sem.Release(1)

	hashbytes, err := bcrypt.GenerateFromPassword([]byte(password), h.cost)
	if err != nil {
		return "", fmt.Errorf("bcrypt: %w", err)
	}
	return string(hashbytes), nil
}

// CheckPassword reports whether password matches hash. The error is non-nil
// only when the check could not run (context cancelled).
func (h *Hasher) CheckPassword(ctx context.Context, hash, password string) (bool, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return false, err
	}
	defer h.sem.Release(1)

	// a malformed stored hash or oversized input counts as a mismatch
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)) == nil, nil
}

// CheckDummy spends the same bcrypt work as CheckPassword against a hash that
// never matches. It is used when the account does not exist.
func (h *Hasher) CheckDummy(ctx context.Context, password string) error {
	h.dummyOnce.Do(func() {
		h.dummyHash, h.dummyErr = bcrypt.GenerateFromPassword([]byte(dummyPassword), h.cost)
	})
	if h.dummyErr != nil {
		return h.dummyErr
	}
	_, err := h.CheckPassword(ctx, string(h.dummyHash), password)
	return err
}
