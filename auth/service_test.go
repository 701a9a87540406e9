package auth

import (
	"context"
	"strings"
	"testing"

	"github.com/brianvoe/gofakeit/v7"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/clock"
	"github.com/user/memories-go/config"
	"github.com/user/memories-go/users"
)

type mockUserStore struct {
	mock.Mock
}

func (m *mockUserStore) Create(ctx context.Context, user *users.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *mockUserStore) GetByEmail(ctx context.Context, email string) (*users.User, error) {
	args := m.Called(ctx, email)
	u, _ := args.Get(0).(*users.User)
	return u, args.Error(1)
}

func (m *mockUserStore) GetByID(ctx context.Context, id string) (*users.User, error) {
	args := m.Called(ctx, id)
	u, _ := args.Get(0).(*users.User)
	return u, args.Error(1)
}

func newTestService(t *testing.T, store users.Store) *AuthService {
	t.Helper()
	codec, err := NewTokenCodec(&config.AuthConfig{
		JWTSecret:       "service-secret",
		Issuer:          "memories",
		Classifier:      config.ClassifierLength,
		LengthThreshold: 500,
	}, clock.NewRealClock())
	require.NoError(t, err)

	svc := NewAuthService(store, codec)
	// MinCost keeps hashing fast under test.
	svc.hashCost = bcrypt.MinCost
	return svc
}

func signupRequest() SignupRequest {
	password := gofakeit.Password(true, true, true, false, false, 14)
	return SignupRequest{
		FirstName:       "Ada",
		LastName:        "Lovelace",
		Email:           gofakeit.Email(),
		Password:        password,
		ConfirmPassword: password,
	}
}

func TestSignupCreatesUserAndToken(t *testing.T) {
	ctx := context.Background()
	store := users.NewMemoryStore(clock.NewRealClock())
	svc := newTestService(t, store)
	req := signupRequest()

	resp, err := svc.Signup(ctx, req)
	require.NoError(t, err)
	assert.Equal(t, "Ada Lovelace", resp.Result.Name)
	assert.Equal(t, req.Email, resp.Result.Email)
	require.NotEmpty(t, resp.Result.ID)

	claims, err := svc.codec.Decode(resp.Token, VariantSelfIssued)
	require.NoError(t, err)
	assert.Equal(t, resp.Result.ID, claims.Subject)

	stored, err := store.GetByEmail(ctx, req.Email)
	require.NoError(t, err)
	assert.NotEqual(t, req.Password, stored.Password)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.Password), []byte(req.Password)))
}

func TestSignupProductionCost(t *testing.T) {
	svc := NewAuthService(users.NewMemoryStore(clock.NewRealClock()), nil)
	assert.Equal(t, 12, svc.hashCost)
}

func TestSignupValidation(t *testing.T) {
	store := users.NewMemoryStore(clock.NewRealClock())
	svc := newTestService(t, store)

	missing := signupRequest()
	missing.LastName = ""
	_, err := svc.Signup(context.Background(), missing)
	require.True(t, apperror.IsValidationError(err))
	assert.Equal(t, msgSignupFieldsRequired, err.(*apperror.AppError).Message)

	mismatch := signupRequest()
	mismatch.ConfirmPassword = mismatch.Password + "!"
	_, err = svc.Signup(context.Background(), mismatch)
	require.True(t, apperror.IsValidationError(err))
	assert.Equal(t, msgPasswordMismatch, err.(*apperror.AppError).Message)
	assert.Equal(t, 0, store.Count())
	_, err = store.GetByEmail(context.Background(), mismatch.Email)
	assert.True(t, apperror.IsNotFound(err))
}

func TestSignupRejectsOverlongPassword(t *testing.T) {
	store := users.NewMemoryStore(clock.NewRealClock())
	svc := newTestService(t, store)

	req := signupRequest()
	req.Password = strings.Repeat("p", 80)
	req.ConfirmPassword = req.Password
	_, err := svc.Signup(context.Background(), req)
	require.True(t, apperror.IsValidationError(err))
	assert.Equal(t, msgPasswordTooLong, err.(*apperror.AppError).Message)
	assert.Equal(t, 0, store.Count())

	// Exactly 72 bytes still hashes.
	req = signupRequest()
	req.Password = strings.Repeat("p", 72)
	req.ConfirmPassword = req.Password
	_, err = svc.Signup(context.Background(), req)
	require.NoError(t, err)
}

func TestSignupKeepsNameAsGiven(t *testing.T) {
	svc := newTestService(t, users.NewMemoryStore(clock.NewRealClock()))
	req := signupRequest()
	req.FirstName = "Ada "
	resp, err := svc.Signup(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "Ada  Lovelace", resp.Result.Name)
}

func TestSignupDuplicateEmail(t *testing.T) {
	svc := newTestService(t, users.NewMemoryStore(clock.NewRealClock()))
	req := signupRequest()

	_, err := svc.Signup(context.Background(), req)
	require.NoError(t, err)

	_, err = svc.Signup(context.Background(), req)
	require.True(t, apperror.IsConflictError(err))
	assert.Equal(t, users.MsgUserExists, err.(*apperror.AppError).Message)
}

func TestSignupLosesInsertRace(t *testing.T) {
	store := &mockUserStore{}
	req := signupRequest()
	// The pre-check sees no user, but a concurrent signup commits first.
	store.On("GetByEmail", mock.Anything, req.Email).
		Return(nil, apperror.NewNotFoundError(users.MsgUserNotFound, nil))
	store.On("Create", mock.Anything, mock.AnythingOfType("*users.User")).
		Return(apperror.NewConflictError(users.MsgUserExists, nil))

	svc := newTestService(t, store)
	_, err := svc.Signup(context.Background(), req)
	assert.True(t, apperror.IsConflictError(err))
	store.AssertExpectations(t)
}

func TestSignupStoreFailure(t *testing.T) {
	store := &mockUserStore{}
	req := signupRequest()
	store.On("GetByEmail", mock.Anything, req.Email).
		Return(nil, apperror.NewDatabaseError("failed to query user", assert.AnError))

	svc := newTestService(t, store)
	_, err := svc.Signup(context.Background(), req)
	assert.True(t, apperror.Is(err, apperror.DatabaseError))
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}

func TestSignin(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, users.NewMemoryStore(clock.NewRealClock()))
	req := signupRequest()
	created, err := svc.Signup(ctx, req)
	require.NoError(t, err)

	t.Run("success", func(t *testing.T) {
		resp, err := svc.Signin(ctx, SigninRequest{Email: req.Email, Password: req.Password})
		require.NoError(t, err)
		assert.Equal(t, created.Result, resp.Result)
		assert.NotEmpty(t, resp.Token)
	})

	t.Run("wrong password", func(t *testing.T) {
		_, err := svc.Signin(ctx, SigninRequest{Email: req.Email, Password: "nope"})
		require.True(t, apperror.Is(err, apperror.InvalidCredentialsError))
		assert.Equal(t, msgInvalidCredentials, err.(*apperror.AppError).Message)
	})

	t.Run("unknown email", func(t *testing.T) {
		_, err := svc.Signin(ctx, SigninRequest{Email: "ghost@example.com", Password: "x"})
		require.True(t, apperror.IsNotFound(err))
		assert.Equal(t, users.MsgUserNotFound, err.(*apperror.AppError).Message)
	})

	t.Run("missing fields", func(t *testing.T) {
		_, err := svc.Signin(ctx, SigninRequest{Email: req.Email})
		assert.True(t, apperror.IsValidationError(err))
	})
}

func TestMe(t *testing.T) {
	ctx := context.Background()
	svc := newTestService(t, users.NewMemoryStore(clock.NewRealClock()))
	created, err := svc.Signup(ctx, signupRequest())
	require.NoError(t, err)

	me, err := svc.Me(ctx, Identity{SubjectID: created.Result.ID, Variant: VariantSelfIssued})
	require.NoError(t, err)
	assert.Equal(t, created.Result, *me)

	_, err = svc.Me(ctx, Identity{SubjectID: "google-123", Variant: VariantExternal})
	assert.True(t, apperror.IsNotFound(err))
}
