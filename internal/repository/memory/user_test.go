package memory

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/evikzub/CVTransformer/internal/domain"
	apperrors "github.com/evikzub/CVTransformer/pkg/errors"
)

func TestCreate_FirstUserIsAdmin(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	first, err := repo.Create(ctx, domain.NewUser{RemoteID: 1, Username: "alice"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, first.Role)
	assert.NotEmpty(t, first.ID)

	second, err := repo.Create(ctx, domain.NewUser{RemoteID: 2, Username: "bob"})
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, second.Role)
}

func TestCreate_ConcurrentFirstLogins(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	const n = 50
	var wg sync.WaitGroup
	roles := make(chan string, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(remoteID int64) {
			defer wg.Done()
			u, err := repo.Create(ctx, domain.NewUser{RemoteID: remoteID, Username: "u"})
			if assert.NoError(t, err) {
				roles <- u.Role
			}
		}(int64(i + 1))
	}
	wg.Wait()
	close(roles)

	admins := 0
	for r := range roles {
		if r == domain.RoleAdmin {
			admins++
		}
	}
	assert.Equal(t, 1, admins)
}

func TestCreate_DuplicateRemoteID(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	_, err := repo.Create(ctx, domain.NewUser{RemoteID: 7, Username: "alice"})
	require.NoError(t, err)

	_, err = repo.Create(ctx, domain.NewUser{RemoteID: 7, Username: "alice"})
	assert.True(t, errors.Is(err, apperrors.ErrAlreadyExists))
}

func TestLookups(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	u, err := repo.Create(ctx, domain.NewUser{RemoteID: 7, Username: "alice", Profile: map[string]string{"Team": "HR"}})
	require.NoError(t, err)

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, "HR", got.Profile["Team"])

	got, err = repo.GetByRemoteID(ctx, 7)
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	got, err = repo.GetByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, u.ID, got.ID)

	_, err = repo.GetByID(ctx, "missing")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = repo.GetByRemoteID(ctx, 99)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	_, err = repo.GetByUsername(ctx, "ALICE")
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
}

func TestReturnedUsersAreCopies(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	u, err := repo.Create(ctx, domain.NewUser{RemoteID: 1, Username: "alice", Profile: map[string]string{"k": "v"}})
	require.NoError(t, err)
	u.Role = domain.RoleUser
	u.Profile["k"] = "changed"

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleAdmin, got.Role)
	assert.Equal(t, "v", got.Profile["k"])
}

func TestTouchLastLogin(t *testing.T) {
	repo := NewUserRepository()
	fixed := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	ctx := context.Background()

	u, err := repo.Create(ctx, domain.NewUser{RemoteID: 1, Username: "alice"})
	require.NoError(t, err)
	assert.Nil(t, u.LastLogin)

	require.NoError(t, repo.TouchLastLogin(ctx, u.ID))
	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.LastLogin)
	assert.Equal(t, fixed, *got.LastLogin)

	assert.True(t, errors.Is(repo.TouchLastLogin(ctx, "missing"), apperrors.ErrNotFound))
}

func TestIncrementConversionCount(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	u, err := repo.Create(ctx, domain.NewUser{RemoteID: 1, Username: "alice"})
	require.NoError(t, err)

	require.NoError(t, repo.IncrementConversionCount(ctx, u.ID))
	require.NoError(t, repo.IncrementConversionCount(ctx, u.ID))

	got, err := repo.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(2), got.ConversionCount)

	assert.True(t, errors.Is(repo.IncrementConversionCount(ctx, "missing"), apperrors.ErrNotFound))
}

func TestSetRole(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	admin, err := repo.Create(ctx, domain.NewUser{RemoteID: 1, Username: "alice"})
	require.NoError(t, err)

	err = repo.SetRole(ctx, admin.ID, "owner")
	assert.True(t, errors.Is(err, apperrors.ErrInvalidInput))

	// Demoting the only admin is allowed.
	require.NoError(t, repo.SetRole(ctx, admin.ID, domain.RoleUser))
	got, err := repo.GetByID(ctx, admin.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.RoleUser, got.Role)

	assert.True(t, errors.Is(repo.SetRole(ctx, "missing", domain.RoleAdmin), apperrors.ErrNotFound))
}

func TestListAll_NewestFirst(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	base := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)
	for i := 0; i < 3; i++ {
		at := base.Add(time.Duration(i) * time.Minute)
		repo.now = func() time.Time { return at }
		_, err := repo.Create(ctx, domain.NewUser{RemoteID: int64(i + 1), Username: "u"})
		require.NoError(t, err)
	}

	users, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, users, 3)
	assert.Equal(t, int64(3), users[0].RemoteID)
	assert.Equal(t, int64(1), users[2].RemoteID)
}

func TestListAll_SameCreatedAtOrderedByID(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	fixed := time.Date(2024, 5, 15, 9, 0, 0, 0, time.UTC)
	repo.now = func() time.Time { return fixed }
	for i := 0; i < 8; i++ {
		_, err := repo.Create(ctx, domain.NewUser{RemoteID: int64(i + 1), Username: "u"})
		require.NoError(t, err)
	}

	first, err := repo.ListAll(ctx)
	require.NoError(t, err)
	require.Len(t, first, 8)
	for i := 1; i < len(first); i++ {
		assert.Less(t, first[i-1].ID, first[i].ID)
	}

	for n := 0; n < 5; n++ {
		again, err := repo.ListAll(ctx)
		require.NoError(t, err)
		for i := range again {
			assert.Equal(t, first[i].ID, again[i].ID)
		}
	}
}

func TestDelete(t *testing.T) {
	repo := NewUserRepository()
	ctx := context.Background()

	u, err := repo.Create(ctx, domain.NewUser{RemoteID: 1, Username: "alice"})
	require.NoError(t, err)

	require.NoError(t, repo.Delete(ctx, u.ID))
	_, err = repo.GetByRemoteID(ctx, 1)
	assert.True(t, errors.Is(err, apperrors.ErrNotFound))
	assert.True(t, errors.Is(repo.Delete(ctx, u.ID), apperrors.ErrNotFound))

	// The remote id is free again after deletion.
	_, err = repo.Create(ctx, domain.NewUser{RemoteID: 1, Username: "alice"})
	assert.NoError(t, err)
}
