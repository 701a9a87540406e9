package auth

import (
	"errors"
	"fmt"
	"net/http"
	// `strings` for splitting the Authorization header.
	"strings"

	"github.com/sirupsen/logrus"

	"github.com/user/memories-go/apperror"
)

// Client-facing messages produced by the gate.
const (
	msgHeaderMissing   = "Authorization header is missing"
	msgHeaderFormat    = "Invalid token format. Expected 'Bearer <token>'"
	msgTokenMissing    = "Token is missing"
	msgTokenExpired    = "Token has expired"
	msgSubjectMissing  = "User ID not found in token"
	msgExternalRefused = "External tokens are not accepted"
	msgAuthUnexpected  = "Authentication failed due to an unexpected error"
)

// Gate turns an Authorization header into an Identity.
type Gate struct {
	codec         *TokenCodec
	allowExternal bool
}

// NewGate creates a gate backed by codec. When allowExternal is false,
// tokens classified as external are rejected before decoding.
func NewGate(codec *TokenCodec, allowExternal bool) *Gate {
	return &Gate{codec: codec, allowExternal: allowExternal}
}

// Authenticate resolves the value of an Authorization header.
// Every failure is returned as an *apperror.AppError ready to be written to the client.
func (g *Gate) Authenticate(header string) (Identity, error) {
	if header == "" {
		return Identity{}, apperror.NewAuthError(msgHeaderMissing, nil)
	}

	// The Authorization header should be in the format "Bearer {token}".
	parts := strings.Split(header, " ")
	if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
		return Identity{}, apperror.NewAuthError(msgHeaderFormat, nil)
	}
	token := parts[1]
	if token == "" {
		return Identity{}, apperror.NewAuthError(msgTokenMissing, nil)
	}

	variant, err := g.codec.Classify(token)
	if err != nil {
		return Identity{}, tokenFailure(err)
	}
	if variant == VariantExternal && !g.allowExternal {
		return Identity{}, apperror.NewAuthError(msgExternalRefused, nil)
	}

	claims, err := g.codec.Decode(token, variant)
	if err != nil {
		return Identity{}, tokenFailure(err)
	}
	return Identity{SubjectID: claims.Subject, Variant: claims.Variant}, nil
}

// tokenFailure maps codec errors onto client-facing auth errors.
func tokenFailure(err error) *apperror.AppError {
	switch {
	case errors.Is(err, ErrTokenExpired):
		return apperror.NewAuthError(msgTokenExpired, err)
	case errors.Is(err, ErrTokenNoSubject):
		return apperror.NewAuthError(msgSubjectMissing, err)
	case errors.Is(err, ErrTokenInvalid), errors.Is(err, ErrTokenMalformed):
		return apperror.NewAuthError(fmt.Sprintf("Invalid token: %v", err), err)
	default:
		return apperror.NewInternalError(msgAuthUnexpected, err)
	}
}

// Middleware rejects unauthenticated requests and stores the Identity on the context
// of the ones it lets through. It conforms to the `func(next http.Handler) http.Handler`
// shape chi expects from `r.Use` and `r.With`.
func (g *Gate) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id, err := g.Authenticate(r.Header.Get("Authorization"))
		if err != nil {
			logrus.WithError(err).WithField("path", r.URL.Path).Debug("request rejected by auth gate")
			WriteError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
	})
}
