package posts

import (
	"context"

	"github.com/google/uuid"

	"github.com/user/memories-go/apperror"
)

// PageSize is the number of posts per page of List.
const PageSize = 8

const (
	msgPostNotFound  = "Post not found"
	msgInvalidPostID = "Invalid Post ID format"
)

// PostPatch lists the fields an update may change. Nil fields are left untouched;
// creator, createdAt, likes and comments cannot be changed through a patch.
type PostPatch struct {
	Title        *string
	Message      *string
	Name         *string
	Tags         *[]string
	SelectedFile *string
}

// IsEmpty reports whether the patch would change nothing.
func (p PostPatch) IsEmpty() bool {
	return p.Title == nil && p.Message == nil && p.Name == nil && p.Tags == nil && p.SelectedFile == nil
}

// SearchQuery matches posts whose title contains Title (case-insensitively)
// or whose tags intersect Tags. An empty field does not participate.
type SearchQuery struct {
	Title string
	Tags  []string
}

// IsEmpty reports whether the query has no condition at all.
func (q SearchQuery) IsEmpty() bool {
	return q.Title == "" && len(q.Tags) == 0
}

// Store is the persistence contract for posts.
//
// Every method that takes an id reports a malformed id as an InvalidIDError and an
// unknown one as a NotFoundError. ToggleLike and AppendComment must be atomic per post:
// concurrent toggles by different users all survive.
type Store interface {
	// List returns up to limit posts, newest first, skipping offset, plus the total count.
	List(ctx context.Context, offset, limit int) ([]Post, int, error)
	Get(ctx context.Context, id string) (*Post, error)
	// Search returns every matching post, newest first.
	Search(ctx context.Context, q SearchQuery) ([]Post, error)
	// Create assigns ID and CreatedAt and initializes likes and comments to empty.
	Create(ctx context.Context, post *Post) error
	Update(ctx context.Context, id string, patch PostPatch) (*Post, error)
	Delete(ctx context.Context, id string) error
	ToggleLike(ctx context.Context, id string, userID string) (*Post, error)
	AppendComment(ctx context.Context, id string, value string) (*Post, error)
}

// ParseID validates a post id.
func ParseID(id string) (uuid.UUID, error) {
	parsed, err := uuid.Parse(id)
	if err != nil {
		return uuid.Nil, apperror.NewInvalidIDError(msgInvalidPostID, err)
	}
	return parsed, nil
}

func notFound() error {
	return apperror.NewNotFoundError(msgPostNotFound, nil)
}
