package repo

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/foodpoint_auth/pkg/mongodb"
)

func newMongoTestRepo(t *testing.T) *MongoRepo {
	t.Helper()

	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI is required for mongo tests")
	}

	ctx := context.Background()
	client, err := mongodb.Open(ctx, uri, "auth_test_"+uuid.NewString()[:8])
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Database().Drop(context.Background())
		_ = client.Close(context.Background())
	})

	r := NewMongoRepo(client.Database())
	require.NoError(t, r.EnsureIndexes(ctx))
	return r
}

func TestMongoRepo_UserLifecycle(t *testing.T) {
	r := newMongoTestRepo(t)
	ctx := context.Background()

	u := newTestUser("jane@example.com")
	require.NoError(t, r.CreateUser(ctx, u))
	require.Len(t, u.ID, 24)

	assert.ErrorIs(t, r.CreateUser(ctx, newTestUser("jane@example.com")), ErrEmailTaken)

	got, err := r.GetUserByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = r.GetUserByID(ctx, "not-an-object-id")
	assert.ErrorIs(t, err, ErrUserNotFound)

	n, err := r.IncrementLoginFailures(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	require.NoError(t, r.RecordLogin(ctx, u.ID, time.Now().UTC()))
	got, err = r.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, got.FailedLogins)
	assert.NotNil(t, got.LastLoginAt)

	require.NoError(t, r.DeleteUser(ctx, u.ID))
	assert.ErrorIs(t, r.DeleteUser(ctx, u.ID), ErrUserNotFound)
}

func TestMongoRepo_RotateRefreshToken_AtMostOnce(t *testing.T) {
	r := newMongoTestRepo(t)
	ctx := context.Background()

	u := newTestUser("rotate@example.com")
	require.NoError(t, r.CreateUser(ctx, u))

	now := time.Now().UTC()
	require.NoError(t, r.AddRefreshToken(ctx, u.ID, newToken("t1", now, time.Hour)))

	var (
		wg  sync.WaitGroup
		won atomic.Int32
	)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := newToken(uuid.NewString(), now, time.Hour)
			if err := r.RotateRefreshToken(ctx, u.ID, "t1", "hash-t1", next, now); err == nil {
				won.Add(1)
			}
		}(i)
	}
	wg.Wait()
	assert.EqualValues(t, 1, won.Load())

	tokens, err := r.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)

	require.NoError(t, r.UpdatePassword(ctx, u.ID, "new-hash"))
	tokens, err = r.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
