package posts

import (
	"fmt"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/config"
)

// Action is a post mutation subject to authorization.
type Action string

const (
	ActionUpdate  Action = "update"
	ActionDelete  Action = "delete"
	ActionLike    Action = "like"
	ActionComment Action = "comment"
)

// Policy decides whether an authenticated caller may perform a mutation.
type Policy interface {
	// NeedsPost reports whether Authorize inspects the current post for action.
	// When false the service passes a nil post and skips the read.
	NeedsPost(action Action) bool
	Authorize(callerID string, post *Post, action Action) error
}

// AnyAuthenticatedUser lets every authenticated caller mutate every post.
// Ownership is not checked; this is the historical behavior of the API.
type AnyAuthenticatedUser struct{}

func (AnyAuthenticatedUser) NeedsPost(Action) bool { return false }

func (AnyAuthenticatedUser) Authorize(callerID string, _ *Post, _ Action) error {
	if callerID == "" {
		return apperror.NewAuthError("Unauthenticated", nil)
	}
	return nil
}

// CreatorOnly restricts update and delete to the post's creator.
// Likes and comments stay open to every authenticated caller.
type CreatorOnly struct{}

func (CreatorOnly) NeedsPost(action Action) bool {
	return action == ActionUpdate || action == ActionDelete
}

func (p CreatorOnly) Authorize(callerID string, post *Post, action Action) error {
	if callerID == "" {
		return apperror.NewAuthError("Unauthenticated", nil)
	}
	if !p.NeedsPost(action) {
		return nil
	}
	if post == nil || post.Creator != callerID {
		return apperror.NewForbiddenError(fmt.Sprintf("User not authorized to %s this post", action), nil)
	}
	return nil
}

// NewPolicy maps a POST_MUTATION_POLICY value to a Policy.
func NewPolicy(name string) (Policy, error) {
	switch name {
	case "", config.PolicyAnyAuthenticated:
		return AnyAuthenticatedUser{}, nil
	case config.PolicyCreatorOnly:
		return CreatorOnly{}, nil
	default:
		return nil, fmt.Errorf("unknown post mutation policy %q", name)
	}
}
