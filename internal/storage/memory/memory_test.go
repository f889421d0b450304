package memory

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/pribylovaa/identity-service/internal/models"
	"github.com/pribylovaa/identity-service/internal/storage"
)

func newUser(email string) *models.User {
	now := time.Now().UTC()
	return &models.User{
		ID:               uuid.New(),
		Email:            email,
		PasswordHash:     "hash",
		Role:             models.Role{ID: 1, Name: "ROLE_BUYER"},
		RefreshTokenHash: "rt-1",
		CreatedAt:        now,
		UpdatedAt:        now,
	}
}

func TestCreateUser_And_Lookups(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	u := newUser("Alice@Example.com")

	require.NoError(t, st.CreateUser(ctx, u))

	got, found, err := st.UserByEmail(ctx, "alice@example.com")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, u.ID, got.ID)

	got, found, err = st.UserByID(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "rt-1", got.RefreshTokenHash)

	// Возвращается копия: изменения снаружи не попадают в хранилище.
	got.RefreshTokenHash = "tampered"
	again, _, _ := st.UserByID(ctx, u.ID)
	require.Equal(t, "rt-1", again.RefreshTokenHash)

	_, found, err = st.UserByEmail(ctx, "bob@example.com")
	require.NoError(t, err)
	require.False(t, found)

	_, found, err = st.UserByID(ctx, uuid.New())
	require.NoError(t, err)
	require.False(t, found)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	require.NoError(t, st.CreateUser(ctx, newUser("a@example.com")))

	err := st.CreateUser(ctx, newUser("A@EXAMPLE.COM"))
	require.ErrorIs(t, err, storage.ErrAlreadyExists)
}

func TestRotateRefreshToken_CAS(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	u := newUser("a@example.com")
	require.NoError(t, st.CreateUser(ctx, u))

	ok, err := st.RotateRefreshToken(ctx, u.ID, "rt-1", "rt-2")
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.RotateRefreshToken(ctx, u.ID, "rt-1", "rt-3")
	require.NoError(t, err)
	require.False(t, ok)

	_, err = st.RotateRefreshToken(ctx, uuid.New(), "rt-2", "rt-3")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

// TestRotateRefreshToken_Concurrent — из N одновременных ротаций с одним старым хэшем побеждает ровно одна.
func TestRotateRefreshToken_Concurrent(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	u := newUser("a@example.com")
	require.NoError(t, st.CreateUser(ctx, u))

	const n = 32
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := st.RotateRefreshToken(ctx, u.ID, "rt-1", uuid.NewString())
			if err == nil && ok {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	require.Equal(t, int32(1), wins.Load())
}

func TestActivateUser_Idempotent(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	u := newUser("a@example.com")
	require.NoError(t, st.CreateUser(ctx, u))

	ok, err := st.ActivateUser(ctx, u.ID)
	require.NoError(t, err)
	require.True(t, ok)

	ok, err = st.ActivateUser(ctx, u.ID)
	require.NoError(t, err)
	require.False(t, ok)

	got, _, _ := st.UserByID(ctx, u.ID)
	require.True(t, got.Active)
}

func TestResetToken_Lifecycle(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	u := newUser("a@example.com")
	require.NoError(t, st.CreateUser(ctx, u))

	exp := time.Now().Add(10 * time.Minute)
	require.NoError(t, st.SetResetToken(ctx, u.ID, "reset-1", exp))

	got, found, err := st.UserByResetToken(ctx, "reset-1")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, u.ID, got.ID)
	require.NotNil(t, got.ResetTokenExpiry)

	ok, err := st.CompleteReset(ctx, u.ID, "other", "new-hash")
	require.NoError(t, err)
	require.False(t, ok)

	ok, err = st.CompleteReset(ctx, u.ID, "reset-1", "new-hash")
	require.NoError(t, err)
	require.True(t, ok)

	got, _, _ = st.UserByID(ctx, u.ID)
	require.Equal(t, "new-hash", got.PasswordHash)
	require.Empty(t, got.ResetTokenHash)
	require.Nil(t, got.ResetTokenExpiry)

	_, found, err = st.UserByResetToken(ctx, "reset-1")
	require.NoError(t, err)
	require.False(t, found)
}

func TestPurgeExpiredResetTokens(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	now := time.Now().UTC()

	stale, fresh := newUser("a@example.com"), newUser("b@example.com")
	require.NoError(t, st.CreateUser(ctx, stale))
	require.NoError(t, st.CreateUser(ctx, fresh))
	require.NoError(t, st.SetResetToken(ctx, stale.ID, "r-old", now.Add(-time.Minute)))
	require.NoError(t, st.SetResetToken(ctx, fresh.ID, "r-new", now.Add(time.Minute)))

	n, err := st.PurgeExpiredResetTokens(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	_, found, _ := st.UserByResetToken(ctx, "r-old")
	require.False(t, found)
	_, found, _ = st.UserByResetToken(ctx, "r-new")
	require.True(t, found)
}

// TestPurgeExpiredResetTokens_KeepsTokenAtExpiry — токен, истекающий ровно в now, ещё действует.
func TestPurgeExpiredResetTokens_KeepsTokenAtExpiry(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	now := time.Now().UTC()

	u := newUser("edge@example.com")
	require.NoError(t, st.CreateUser(ctx, u))
	require.NoError(t, st.SetResetToken(ctx, u.ID, "r-edge", now))

	n, err := st.PurgeExpiredResetTokens(ctx, now)
	require.NoError(t, err)
	require.Zero(t, n)

	_, found, _ := st.UserByResetToken(ctx, "r-edge")
	require.True(t, found)
}

func TestBlacklist(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	now := time.Now().UTC()

	require.NoError(t, st.RevokeToken(ctx, "a", now.Add(-time.Second)))
	require.NoError(t, st.RevokeToken(ctx, "b", now.Add(time.Hour)))
	require.NoError(t, st.RevokeToken(ctx, "b", now.Add(2*time.Hour)))

	revoked, err := st.IsRevoked(ctx, "b")
	require.NoError(t, err)
	require.True(t, revoked)

	revoked, err = st.IsRevoked(ctx, "c")
	require.NoError(t, err)
	require.False(t, revoked)

	n, err := st.PurgeExpired(ctx, now)
	require.NoError(t, err)
	require.Equal(t, int64(1), n)

	revoked, _ = st.IsRevoked(ctx, "a")
	require.False(t, revoked)
	revoked, _ = st.IsRevoked(ctx, "b")
	require.True(t, revoked)
}

func TestEndSession(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()
	u := newUser("a@example.com")
	require.NoError(t, st.CreateUser(ctx, u))

	require.NoError(t, st.EndSession(ctx, u.ID, "access-1", time.Now().Add(time.Minute)))

	got, _, _ := st.UserByID(ctx, u.ID)
	require.Empty(t, got.RefreshTokenHash)

	revoked, err := st.IsRevoked(ctx, "access-1")
	require.NoError(t, err)
	require.True(t, revoked)

	err = st.EndSession(ctx, uuid.New(), "access-2", time.Now())
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func TestRoleByName(t *testing.T) {
	t.Parallel()

	st := New()
	ctx := context.Background()

	r, found, err := st.RoleByName(ctx, "ROLE_INVESTOR")
	require.NoError(t, err)
	require.True(t, found)
	require.Equal(t, "ROLE_INVESTOR", r.Name)

	_, found, err = st.RoleByName(ctx, "ROLE_NOPE")
	require.NoError(t, err)
	require.False(t, found)
}

func TestCanceledContext(t *testing.T) {
	t.Parallel()

	st := New()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := st.UserByEmail(ctx, "a@example.com")
	require.ErrorIs(t, err, context.Canceled)
}
