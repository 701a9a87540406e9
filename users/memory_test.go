package users_test

import (
	"context"
	"sync"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/clock"
	"github.com/user/memories-go/users"
)

func TestMemoryStoreCreateAndLookup(t *testing.T) {
	ctx := context.Background()
	stubClock := clock.NewStubClock()
	store := users.NewMemoryStore(stubClock)

	u := &users.User{Name: gofakeit.Name(), Email: gofakeit.Email(), Password: "hash"}
	require.NoError(t, store.Create(ctx, u))
	require.NotEmpty(t, u.ID)
	assert.Equal(t, stubClock.NowUtc(), u.CreatedAt)

	byEmail, err := store.GetByEmail(ctx, u.Email)
	require.NoError(t, err)
	assert.Equal(t, u, byEmail)

	byID, err := store.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Equal(t, u, byID)
}

func TestMemoryStoreMissingUser(t *testing.T) {
	store := users.NewMemoryStore(clock.NewRealClock())

	_, err := store.GetByEmail(context.Background(), "nobody@example.com")
	assert.True(t, apperror.IsNotFound(err))
	_, err = store.GetByID(context.Background(), "104857600000000000000")
	assert.True(t, apperror.IsNotFound(err))
}

func TestMemoryStoreEmailIsCaseSensitive(t *testing.T) {
	ctx := context.Background()
	store := users.NewMemoryStore(clock.NewRealClock())

	require.NoError(t, store.Create(ctx, &users.User{Name: "a", Email: "Ada@example.com", Password: "h"}))
	require.NoError(t, store.Create(ctx, &users.User{Name: "b", Email: "ada@example.com", Password: "h"}))
	assert.Equal(t, 2, store.Count())
}

func TestMemoryStoreConcurrentDuplicateEmail(t *testing.T) {
	ctx := context.Background()
	store := users.NewMemoryStore(clock.NewRealClock())
	email := gofakeit.Email()

	const writers = 16
	var wg sync.WaitGroup
	errs := make([]error, writers)
	for i := 0; i < writers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = store.Create(ctx, &users.User{Name: "dup", Email: email, Password: "h"})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, apperror.IsConflictError(err))
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 1, store.Count())
}

func TestPublicOmitsPassword(t *testing.T) {
	u := users.User{ID: "1", Name: "Ada Lovelace", Email: "ada@example.com", Password: "hash"}
	assert.Equal(t, users.PublicUser{ID: "1", Email: "ada@example.com", Name: "Ada Lovelace"}, u.Public())
}
