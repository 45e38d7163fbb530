package repo

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Skotchmaster/foodpoint_auth/internal/models"
)

func newTestRepo(t *testing.T) *GormRepo {
	t.Helper()

	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	require.NoError(t, err)

	sqlDB, err := db.DB()
	require.NoError(t, err)
	// every connection to :memory: is a fresh database
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	require.NoError(t, AutoMigrate(db))
	return NewGormRepo(db)
}

func newTestUser(email string) *models.User {
	return &models.User{
		Name:         "Jane",
		Email:        email,
		Phone:        "5551234567",
		PasswordHash: "hash",
		Role:         models.RoleCustomer,
		IsActive:     true,
	}
}

func newToken(id string, now time.Time, ttl time.Duration) models.RefreshToken {
	return models.RefreshToken{
		TokenID:   id,
		TokenHash: "hash-" + id,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
}

func TestGormRepo_CreateAndGetUser(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	u := newTestUser("jane@example.com")
	require.NoError(t, r.CreateUser(ctx, u))
	require.NotEmpty(t, u.ID)

	byID, err := r.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "jane@example.com", byID.Email)
	assert.True(t, byID.IsActive)

	byEmail, err := r.GetUserByEmail(ctx, "jane@example.com")
	require.NoError(t, err)
	assert.Equal(t, u.ID, byEmail.ID)

	_, err = r.GetUserByID(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
	_, err = r.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGormRepo_CreateUser_DuplicateEmail(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	require.NoError(t, r.CreateUser(ctx, newTestUser("dup@example.com")))
	err := r.CreateUser(ctx, newTestUser("dup@example.com"))
	assert.ErrorIs(t, err, ErrEmailTaken)
}

func TestGormRepo_LoginFailureCounters(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser("counter@example.com")
	require.NoError(t, r.CreateUser(ctx, u))

	for want := 1; want <= 3; want++ {
		got, err := r.IncrementLoginFailures(ctx, u.ID)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}

	until := time.Now().UTC().Add(15 * time.Minute)
	require.NoError(t, r.LockUser(ctx, u.ID, until))
	stored, err := r.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LockoutUntil)
	assert.WithinDuration(t, until, *stored.LockoutUntil, time.Millisecond)

	at := time.Now().UTC()
	require.NoError(t, r.RecordLogin(ctx, u.ID, at))
	stored, err = r.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.FailedLogins)
	assert.Nil(t, stored.LockoutUntil)
	require.NotNil(t, stored.LastLoginAt)

	_, err = r.IncrementLoginFailures(ctx, "missing")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestGormRepo_RotateRefreshToken_SingleUse(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser("rotate@example.com")
	require.NoError(t, r.CreateUser(ctx, u))

	now := time.Now().UTC()
	require.NoError(t, r.AddRefreshToken(ctx, u.ID, newToken("t1", now, time.Hour)))

	require.NoError(t, r.RotateRefreshToken(ctx, u.ID, "t1", "hash-t1", newToken("t2", now, time.Hour), now))

	err := r.RotateRefreshToken(ctx, u.ID, "t1", "hash-t1", newToken("t3", now, time.Hour), now)
	assert.ErrorIs(t, err, ErrRefreshTokenNotFound)

	tokens, err := r.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "t2", tokens[0].TokenID)
}

func TestGormRepo_RotateRefreshToken_Rejects(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser("reject@example.com")
	require.NoError(t, r.CreateUser(ctx, u))
	other := newTestUser("other@example.com")
	require.NoError(t, r.CreateUser(ctx, other))

	now := time.Now().UTC()
	require.NoError(t, r.AddRefreshToken(ctx, u.ID, newToken("t1", now, time.Hour)))

	tests := []struct {
		name    string
		userID  string
		tokenID string
		hash    string
		at      time.Time
	}{
		{name: "wrong hash", userID: u.ID, tokenID: "t1", hash: "forged", at: now},
		{name: "other user", userID: other.ID, tokenID: "t1", hash: "hash-t1", at: now},
		{name: "expired", userID: u.ID, tokenID: "t1", hash: "hash-t1", at: now.Add(2 * time.Hour)},
	}

	for _, tt := range tests {
		err := r.RotateRefreshToken(ctx, tt.userID, tt.tokenID, tt.hash, newToken("next-"+tt.name, now, time.Hour), tt.at)
		assert.ErrorIs(t, err, ErrRefreshTokenNotFound, tt.name)
	}
}

func TestGormRepo_RotateRefreshToken_ConcurrentAtMostOnce(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser("race@example.com")
	require.NoError(t, r.CreateUser(ctx, u))

	now := time.Now().UTC()
	require.NoError(t, r.AddRefreshToken(ctx, u.ID, newToken("t1", now, time.Hour)))

	const workers = 8
	var (
		wg  sync.WaitGroup
		mu  sync.Mutex
		won int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			next := newToken("next-"+string(rune('a'+i)), now, time.Hour)
			if err := r.RotateRefreshToken(ctx, u.ID, "t1", "hash-t1", next, now); err == nil {
				mu.Lock()
				won++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	assert.Equal(t, 1, won)
	tokens, err := r.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, tokens, 1)
}

func TestGormRepo_AddRefreshToken_PrunesExpired(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser("prune@example.com")
	require.NoError(t, r.CreateUser(ctx, u))

	past := time.Now().UTC().Add(-48 * time.Hour)
	require.NoError(t, r.AddRefreshToken(ctx, u.ID, newToken("old", past, time.Hour)))

	now := time.Now().UTC()
	require.NoError(t, r.AddRefreshToken(ctx, u.ID, newToken("new", now, time.Hour)))

	tokens, err := r.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	require.Len(t, tokens, 1)
	assert.Equal(t, "new", tokens[0].TokenID)
}

func TestGormRepo_RemoveClearAndPassword(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()
	u := newTestUser("sessions@example.com")
	require.NoError(t, r.CreateUser(ctx, u))

	now := time.Now().UTC()
	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, r.AddRefreshToken(ctx, u.ID, newToken(id, now, time.Hour)))
	}

	require.NoError(t, r.RemoveRefreshToken(ctx, u.ID, "hash-a"))
	require.NoError(t, r.RemoveRefreshToken(ctx, u.ID, "hash-a"))
	tokens, err := r.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.Len(t, tokens, 2)

	require.NoError(t, r.UpdatePassword(ctx, u.ID, "new-hash"))
	tokens, err = r.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	stored, err := r.GetUserByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "new-hash", stored.PasswordHash)

	require.NoError(t, r.AddRefreshToken(ctx, u.ID, newToken("d", now, time.Hour)))
	require.NoError(t, r.ClearRefreshTokens(ctx, u.ID))
	tokens, err = r.ListRefreshTokens(ctx, u.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)

	assert.ErrorIs(t, r.UpdatePassword(ctx, "missing", "x"), ErrUserNotFound)
}

func TestGormRepo_ListUpdateDelete(t *testing.T) {
	t.Parallel()

	r := newTestRepo(t)
	ctx := context.Background()

	first := newTestUser("first@example.com")
	require.NoError(t, r.CreateUser(ctx, first))
	second := newTestUser("second@example.com")
	require.NoError(t, r.CreateUser(ctx, second))

	users, total, err := r.ListUsers(ctx, 0, 1)
	require.NoError(t, err)
	assert.EqualValues(t, 2, total)
	assert.Len(t, users, 1)

	name := "Jane Doe"
	role := models.RoleHR
	updated, err := r.UpdateUser(ctx, first.ID, models.UserUpdate{Name: &name, Role: &role})
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", updated.Name)
	assert.Equal(t, models.RoleHR, updated.Role)

	taken := "second@example.com"
	_, err = r.UpdateUser(ctx, first.ID, models.UserUpdate{Email: &taken})
	assert.ErrorIs(t, err, ErrEmailTaken)

	_, err = r.UpdateUser(ctx, "missing", models.UserUpdate{Name: &name})
	assert.ErrorIs(t, err, ErrUserNotFound)

	require.NoError(t, r.AddRefreshToken(ctx, first.ID, newToken("x", time.Now().UTC(), time.Hour)))
	require.NoError(t, r.DeleteUser(ctx, first.ID))
	assert.ErrorIs(t, r.DeleteUser(ctx, first.ID), ErrUserNotFound)

	tokens, err := r.ListRefreshTokens(ctx, first.ID)
	require.NoError(t, err)
	assert.Empty(t, tokens)
}
