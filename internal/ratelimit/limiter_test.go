package ratelimit

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
	"github.com/Skotchmaster/foodpoint_auth/pkg/config"
	authmw "github.com/Skotchmaster/foodpoint_auth/pkg/middleware/auth"
	"github.com/Skotchmaster/foodpoint_auth/pkg/mongodb"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 12, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newGormStore(t *testing.T) *GormStore {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := NewGormStore(db)
	require.NoError(t, s.Migrate())
	return s
}

func newMongoStore(t *testing.T) *MongoStore {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI is required for mongo tests")
	}

	ctx := context.Background()
	client, err := mongodb.Open(ctx, uri, "ratelimit_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Database().Drop(context.Background())
		_ = client.Close(context.Background())
	})

	s := NewMongoStore(client.Database())
	require.NoError(t, s.EnsureIndexes(ctx))
	return s
}

func TestLimiter_FixedWindow(t *testing.T) {
	t.Parallel()

	stores := map[string]func(t *testing.T) Store{
		"memory": func(t *testing.T) Store { return NewMemoryStore() },
		"gorm":   func(t *testing.T) Store { return newGormStore(t) },
		"mongo":  func(t *testing.T) Store { return newMongoStore(t) },
	}

	for name, mk := range stores {
		mk := mk
		t.Run(name, func(t *testing.T) {
			t.Parallel()

			clock := newFakeClock()
			l := New(mk(t)).WithClock(clock.Now)
			ctx := context.Background()

			for i := 0; i < LoginRule.MaxRequests; i++ {
				require.NoError(t, l.Allow(ctx, "ip:10.0.0.1", EndpointLogin, LoginRule), "request %d", i+1)
				clock.Advance(time.Second)
			}

			err := l.Allow(ctx, "ip:10.0.0.1", EndpointLogin, LoginRule)
			require.Error(t, err)
			assert.Equal(t, apperr.ResourceExhausted, apperr.CodeOf(err))
			ae, ok := apperr.As(err)
			require.True(t, ok)
			assert.Equal(t, LoginRule.Message, ae.Message)

			var exceeded *ExceededError
			require.True(t, errors.As(err, &exceeded))
			assert.Equal(t, 15*time.Minute-5*time.Second, exceeded.RetryAfter)

			// other identities and endpoints have their own budget
			require.NoError(t, l.Allow(ctx, "ip:10.0.0.2", EndpointLogin, LoginRule))
			require.NoError(t, l.Allow(ctx, "ip:10.0.0.1", EndpointRefresh, RefreshRule))

			// a fresh window starts counting at one again
			clock.Advance(LoginRule.Window)
			for i := 0; i < LoginRule.MaxRequests; i++ {
				require.NoError(t, l.Allow(ctx, "ip:10.0.0.1", EndpointLogin, LoginRule), "request %d", i+1)
			}
			require.Error(t, l.Allow(ctx, "ip:10.0.0.1", EndpointLogin, LoginRule))
		})
	}
}

func TestLimiter_Reset(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	l := New(NewMemoryStore()).WithClock(clock.Now)
	ctx := context.Background()

	for i := 0; i < RegisterRule.MaxRequests; i++ {
		require.NoError(t, l.Allow(ctx, "ip:1.1.1.1", EndpointRegister, RegisterRule))
	}
	require.Error(t, l.Allow(ctx, "ip:1.1.1.1", EndpointRegister, RegisterRule))

	require.NoError(t, l.Reset(ctx, "ip:1.1.1.1", EndpointRegister))
	require.NoError(t, l.Allow(ctx, "ip:1.1.1.1", EndpointRegister, RegisterRule))
}

func TestLimiter_PurgesStaleEntries(t *testing.T) {
	t.Parallel()

	clock := newFakeClock()
	store := NewMemoryStore()
	l := New(store).WithClock(clock.Now)
	ctx := context.Background()

	require.NoError(t, l.Allow(ctx, "ip:a", EndpointRefresh, RefreshRule))
	require.NoError(t, l.Allow(ctx, "ip:b", EndpointLogin, LoginRule))
	assert.Equal(t, 2, store.Len())

	clock.Advance(2*RefreshRule.Window + time.Second)
	require.NoError(t, l.Allow(ctx, "ip:c", EndpointRefresh, RefreshRule))

	// ip:a aged out of the refresh window, the login entry is untouched
	assert.Equal(t, 2, store.Len())
	e, err := store.FindActive(ctx, "ip:a", EndpointRefresh, time.Time{})
	require.NoError(t, err)
	assert.Nil(t, e)
}

func TestRules(t *testing.T) {
	t.Parallel()

	tests := []struct {
		rule    Rule
		window  time.Duration
		max     int
		message string
	}{
		{LoginRule, 15 * time.Minute, 5, "Too many login attempts. Please try again in 15 minutes."},
		{RegisterRule, time.Hour, 3, "Too many registration attempts. Please try again in 1 hour."},
		{RefreshRule, time.Minute, 10, "Too many token refresh attempts. Please try again in 1 minute."},
		{DefaultRule, 15 * time.Minute, 100, "Rate limit exceeded. Please try again later."},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.window, tt.rule.Window, tt.message)
		assert.Equal(t, tt.max, tt.rule.MaxRequests, tt.message)
		assert.Equal(t, tt.message, tt.rule.Message)
	}
}

func TestNewFromConfig(t *testing.T) {
	t.Parallel()

	gs := newGormStore(t)

	assert.Nil(t, NewFromConfig(config.Config{RateLimitStore: config.RateLimitStoreDatabase}, gs))

	l := NewFromConfig(config.Config{RateLimitEnabled: true, RateLimitStore: config.RateLimitStoreDatabase}, gs)
	require.NotNil(t, l)
	assert.Same(t, gs, l.store)

	l = NewFromConfig(config.Config{RateLimitEnabled: true, RateLimitStore: config.RateLimitStoreMemory}, gs)
	require.NotNil(t, l)
	assert.IsType(t, &MemoryStore{}, l.store)
}

type failingStore struct{}

func (failingStore) FindActive(context.Context, string, string, time.Time) (*models.RateLimitEntry, error) {
	return nil, errors.New("store down")
}
func (failingStore) Create(context.Context, *models.RateLimitEntry) error { return errors.New("store down") }
func (failingStore) Increment(context.Context, *models.RateLimitEntry, time.Time, int) (bool, error) {
	return false, errors.New("store down")
}
func (failingStore) Purge(context.Context, string, time.Time) error  { return errors.New("store down") }
func (failingStore) Reset(context.Context, string, string) error     { return errors.New("store down") }

func TestLimiter_FailsOpen(t *testing.T) {
	t.Parallel()

	l := New(failingStore{})
	for i := 0; i < 10; i++ {
		require.NoError(t, l.Allow(context.Background(), "ip:x", EndpointLogin, LoginRule))
	}
}

func TestClientIdentifier(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		userID  string
		headers map[string]string
		remote  string
		want    string
	}{
		{name: "user wins", userID: "42", headers: map[string]string{"X-Forwarded-For": "1.2.3.4"}, want: "user:42"},
		{name: "first forwarded", headers: map[string]string{"X-Forwarded-For": " 1.2.3.4 , 5.6.7.8", "X-Real-IP": "9.9.9.9"}, want: "ip:1.2.3.4"},
		{name: "real ip", headers: map[string]string{"X-Real-IP": "9.9.9.9"}, remote: "10.0.0.1:1234", want: "ip:9.9.9.9"},
		{name: "remote addr", remote: "10.0.0.1:1234", want: "ip:10.0.0.1"},
		{name: "remote without port", remote: "10.0.0.1", want: "ip:10.0.0.1"},
		{name: "unknown", want: "ip:unknown"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			req := httptest.NewRequest(http.MethodPost, "/auth/login", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			assert.Equal(t, tt.want, ClientIdentifier(req, tt.userID))
		})
	}
}

func TestLimiter_Middleware(t *testing.T) {
	t.Parallel()

	l := New(NewMemoryStore())
	rule := Rule{Window: time.Minute, MaxRequests: 1, Message: "slow down"}
	e := echo.New()
	h := l.Middleware("test", rule)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })

	do := func(userID string) (*httptest.ResponseRecorder, error) {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = "10.1.1.1:5000"
		rec := httptest.NewRecorder()
		c := e.NewContext(req, rec)
		if userID != "" {
			c.Set(authmw.UserIDKey, userID)
		}
		return rec, h(c)
	}

	rec, err := do("")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec, err = do("")
	require.Error(t, err)
	assert.Equal(t, apperr.ResourceExhausted, apperr.CodeOf(err))
	assert.NotEmpty(t, rec.Header().Get("Retry-After"))

	// same address, but authenticated requests are counted per user
	_, err = do("u-1")
	require.NoError(t, err)

	var nilLimiter *Limiter
	pass := nilLimiter.Middleware("test", rule)(func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	require.NoError(t, pass(c))
}
