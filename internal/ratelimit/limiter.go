// Package ratelimit implements fixed-window request limiting keyed by client
// identity and endpoint. Counters live in a Store so several instances of the
// service can share them.
package ratelimit

import (
	"context"
	"fmt"
	"time"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
	"github.com/Skotchmaster/foodpoint_auth/pkg/config"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
)

type Rule struct {
	Window      time.Duration
	MaxRequests int
	Message     string
}

const (
	EndpointLogin    = "login"
	EndpointRegister = "register"
	EndpointRefresh  = "refresh"
	EndpointDefault  = "default"
)

var (
	LoginRule = Rule{
		Window:      15 * time.Minute,
		MaxRequests: 5,
		Message:     "Too many login attempts. Please try again in 15 minutes.",
	}
	RegisterRule = Rule{
		Window:      time.Hour,
		MaxRequests: 3,
		Message:     "Too many registration attempts. Please try again in 1 hour.",
	}
	RefreshRule = Rule{
		Window:      time.Minute,
		MaxRequests: 10,
		Message:     "Too many token refresh attempts. Please try again in 1 minute.",
	}
	DefaultRule = Rule{
		Window:      15 * time.Minute,
		MaxRequests: 100,
		Message:     "Rate limit exceeded. Please try again later.",
	}
)

type Store interface {
	// FindActive returns the newest entry whose window started at or after
	// since, or nil when there is none.
	FindActive(ctx context.Context, identifier, endpoint string, since time.Time) (*models.RateLimitEntry, error)
	Create(ctx context.Context, e *models.RateLimitEntry) error
	// Increment bumps the counter only while it is below max and reports
	// whether it did.
	Increment(ctx context.Context, e *models.RateLimitEntry, at time.Time, max int) (bool, error)
	Purge(ctx context.Context, endpoint string, before time.Time) error
	Reset(ctx context.Context, identifier, endpoint string) error
}

// ExceededError carries the time left in the window alongside the
// resource_exhausted error shown to the client.
type ExceededError struct {
	RetryAfter time.Duration
	Err        *apperr.Error
}

func (e *ExceededError) Error() string { return e.Err.Error() }
func (e *ExceededError) Unwrap() error { return e.Err }

type Limiter struct {
	store Store
	now   func() time.Time
}

func New(store Store) *Limiter {
	return &Limiter{store: store, now: time.Now}
}

// NewFromConfig returns nil when limiting is switched off, which the
// middleware treats as pass-through. dbStore backs the "database" store.
func NewFromConfig(cfg config.Config, dbStore Store) *Limiter {
	if !cfg.RateLimitEnabled {
		return nil
	}
	if cfg.RateLimitStore == config.RateLimitStoreMemory || dbStore == nil {
		return New(NewMemoryStore())
	}
	return New(dbStore)
}

func (l *Limiter) WithClock(now func() time.Time) *Limiter {
	cp := *l
	cp.now = now
	return &cp
}

// Allow records one request for (identifier, endpoint) and rejects it once the
// rule's budget for the current window is spent. Store failures are logged and
// the request is let through.
func (l *Limiter) Allow(ctx context.Context, identifier, endpoint string, rule Rule) error {
	now := l.now().UTC().Truncate(time.Millisecond)
	log := logging.FromContext(ctx).With("component", "ratelimit", "endpoint", endpoint)

	defer func() {
		if err := l.store.Purge(ctx, endpoint, now.Add(-2*rule.Window)); err != nil {
			log.Warn("rate_limit_purge_failed", "error", err)
		}
	}()

	entry, err := l.store.FindActive(ctx, identifier, endpoint, now.Add(-rule.Window))
	if err != nil {
		log.Error("rate_limit_check_failed", "error", err)
		return nil
	}

	if entry == nil {
		err := l.store.Create(ctx, &models.RateLimitEntry{
			Identifier:   identifier,
			Endpoint:     endpoint,
			RequestCount: 1,
			WindowStart:  now,
			LastRequest:  now,
		})
		if err != nil {
			log.Error("rate_limit_check_failed", "error", err)
		}
		return nil
	}

	if entry.RequestCount < rule.MaxRequests {
		ok, err := l.store.Increment(ctx, entry, now, rule.MaxRequests)
		if err != nil {
			log.Error("rate_limit_check_failed", "error", err)
			return nil
		}
		if ok {
			return nil
		}
	}

	retry := entry.WindowStart.Add(rule.Window).Sub(now)
	if retry < time.Second {
		retry = time.Second
	}
	log.Warn("rate_limit_exceeded", "identifier", identifier, "retry_after_s", int(retry.Seconds()))
	return &ExceededError{
		RetryAfter: retry,
		Err:        apperr.New(apperr.ResourceExhausted, rule.Message),
	}
}

// Reset forgets every window recorded for (identifier, endpoint).
func (l *Limiter) Reset(ctx context.Context, identifier, endpoint string) error {
	if err := l.store.Reset(ctx, identifier, endpoint); err != nil {
		return fmt.Errorf("reset rate limit: %w", err)
	}
	return nil
}
