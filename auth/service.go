package auth

import (
	"context"
	"errors"
	"fmt"

	// `validator` checks the `validate` struct tags on request DTOs.
	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"
	// Library for password hashing using bcrypt. bcrypt is a strong, adaptive hashing algorithm.
	"golang.org/x/crypto/bcrypt"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/users"
)

// passwordHashCost is the bcrypt work factor for stored passwords.
const passwordHashCost = 12

const (
	msgSignupFieldsRequired = "All fields are required for signup"
	msgSigninFieldsRequired = "Email and password are required"
	msgPasswordMismatch     = "Passwords don't match"
	msgInvalidCredentials   = "Invalid credentials."
	msgPasswordTooLong      = "Password must be at most 72 bytes"
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

// AuthService implements signup and signin on top of a users.Store.
type AuthService struct {
	users    users.Store
	codec    *TokenCodec
	validate *validator.Validate
	hashCost int
}

// NewAuthService creates a new AuthService.
// Dependencies are injected explicitly via constructor arguments.
func NewAuthService(store users.Store, codec *TokenCodec) *AuthService {
	return &AuthService{
		users:    store,
		codec:    codec,
		validate: validator.New(),
		hashCost: passwordHashCost,
	}
}

// Signup registers a new account and returns it with a fresh self-issued token.
func (s *AuthService) Signup(ctx context.Context, req SignupRequest) (*AuthResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.NewValidationError(msgSignupFieldsRequired, err)
	}
	if req.Password != req.ConfirmPassword {
		return nil, apperror.NewValidationError(msgPasswordMismatch, nil)
	}
	if len(req.Password) > maxPasswordBytes {
		return nil, apperror.NewValidationError(msgPasswordTooLong, nil)
	}

	existing, err := s.users.GetByEmail(ctx, req.Email)
	if err == nil && existing != nil {
		return nil, apperror.NewConflictError(users.MsgUserExists, nil)
	}
	if err != nil && !apperror.IsNotFound(err) {
		return nil, err
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return nil, apperror.NewValidationError(msgPasswordTooLong, err)
		}
		return nil, apperror.NewInternalError("failed to hash password", err)
	}

	user := &users.User{
		Name:     req.FirstName + " " + req.LastName,
		Email:    req.Email,
		Password: string(hashed),
	}
	// A concurrent signup for the same email can slip past the lookup above;
	// the store reports that case as a ConflictError.
	if err := s.users.Create(ctx, user); err != nil {
		return nil, err
	}

	logrus.WithField("user_id", user.ID).Info("user signed up")
	return s.respond(user)
}

// Signin checks a password against the stored hash and returns a fresh token.
func (s *AuthService) Signin(ctx context.Context, req SigninRequest) (*AuthResponse, error) {
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.NewValidationError(msgSigninFieldsRequired, err)
	}

	user, err := s.users.GetByEmail(ctx, req.Email)
	if err != nil {
		return nil, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.Password), []byte(req.Password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return nil, apperror.NewInvalidCredentialsError(msgInvalidCredentials, nil)
		}
		return nil, apperror.NewInternalError("failed to verify password", err)
	}

	logrus.WithField("user_id", user.ID).Debug("user signed in")
	return s.respond(user)
}

// Me returns the account behind a self-issued identity.
func (s *AuthService) Me(ctx context.Context, id Identity) (*users.PublicUser, error) {
	if id.Variant != VariantSelfIssued {
		return nil, apperror.NewNotFoundError("No local account for external identity", nil)
	}
	user, err := s.users.GetByID(ctx, id.SubjectID)
	if err != nil {
		return nil, err
	}
	public := user.Public()
	return &public, nil
}

func (s *AuthService) respond(user *users.User) (*AuthResponse, error) {
	token, _, err := s.codec.Issue(user.ID, user.Email, 0)
	if err != nil {
		return nil, apperror.NewInternalError("failed to issue token", fmt.Errorf("user %s: %w", user.ID, err))
	}
	return &AuthResponse{Result: user.Public(), Token: token}, nil
}
