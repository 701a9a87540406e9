package auth

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5/middleware"
	"github.com/sirupsen/logrus"

	"github.com/user/memories-go/apperror"
)

// Handlers wraps the AuthService to provide HTTP handlers.
type Handlers struct {
	service *AuthService
}

// NewHandlers creates a new Handlers instance.
func NewHandlers(service *AuthService) *Handlers {
	return &Handlers{service: service}
}

// HandleSignup godoc
// @Summary User Signup
// @Description Registers a new account and returns it together with a token.
// @Tags User
// @Accept json
// @Produce json
// @Param signupBody body auth.SignupRequest true "Signup details"
// @Success 201 {object} auth.AuthResponse "Account created"
// @Failure 400 {object} apperror.ErrorResponse "Missing fields or passwords don't match"
// @Failure 409 {object} apperror.ErrorResponse "User already exists"
// @Failure 500 {object} apperror.ErrorResponse "Internal Server Error"
// @Router /user/signup [post]
func (h *Handlers) HandleSignup() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req SignupRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, apperror.NewBadRequestError("invalid request body: "+err.Error(), err))
			return
		}

		resp, err := h.service.Signup(r.Context(), req)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusCreated, resp)
	}
}

// HandleSignin godoc
// @Summary User Signin
// @Description Checks credentials and returns the account together with a token.
// @Tags User
// @Accept json
// @Produce json
// @Param signinBody body auth.SigninRequest true "Signin credentials"
// @Success 200 {object} auth.AuthResponse "Signed in"
// @Failure 400 {object} apperror.ErrorResponse "Missing fields or invalid credentials"
// @Failure 404 {object} apperror.ErrorResponse "User doesn't exist"
// @Failure 500 {object} apperror.ErrorResponse "Internal Server Error"
// @Router /user/signin [post]
func (h *Handlers) HandleSignin() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		defer r.Body.Close()

		var req SigninRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, r, apperror.NewBadRequestError("invalid request body: "+err.Error(), err))
			return
		}

		resp, err := h.service.Signin(r.Context(), req)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, resp)
	}
}

// HandleMe godoc
// @Summary Current User
// @Description Returns the account behind the bearer token.
// @Tags User
// @Produce json
// @Success 200 {object} users.PublicUser
// @Failure 401 {object} apperror.ErrorResponse "Unauthorized"
// @Failure 404 {object} apperror.ErrorResponse "No local account"
// @Router /user/me [get]
// @Security BearerAuth
func (h *Handlers) HandleMe() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := IdentityFromContext(r.Context())
		if !ok {
			WriteError(w, r, apperror.NewAuthError("Unauthenticated", nil))
			return
		}
		user, err := h.service.Me(r.Context(), id)
		if err != nil {
			WriteError(w, r, err)
			return
		}
		WriteJSON(w, http.StatusOK, user)
	}
}

// WriteJSON serializes `data` to JSON and writes it with the given `status`.
func WriteJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		// Headers are already sent, so the failure can only be logged.
		logrus.WithError(err).Error("failed to encode response")
	}
}

// WriteError converts any error into the standard `{"message": ...}` body.
// Errors that are not AppErrors become InternalErrors; 5xx responses are logged.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	appErr, ok := apperror.FromError(err)
	if !ok {
		appErr = apperror.NewInternalError("an unexpected error occurred: "+err.Error(), err)
	}

	status := appErr.StatusCode()
	if status >= http.StatusInternalServerError {
		logrus.WithFields(logrus.Fields{
			"request_id": middleware.GetReqID(r.Context()),
			"method":     r.Method,
			"path":       r.URL.Path,
			"status":     status,
		}).WithError(appErr).Error("request failed")
	}
	WriteJSON(w, status, appErr.ToResponse())
}
