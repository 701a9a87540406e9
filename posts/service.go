package posts

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/sirupsen/logrus"

	"github.com/user/memories-go/apperror"
)

const (
	msgNothingToUpdate = "No valid fields to update provided"
	msgEmptyComment    = "Comment value cannot be empty"
	msgNULCharacter    = "Text fields cannot contain NUL characters"
)

// Activity kinds handed to a Publisher.
const (
	ActivityCreated   = "post.created"
	ActivityUpdated   = "post.updated"
	ActivityDeleted   = "post.deleted"
	ActivityLiked     = "post.liked"
	ActivityCommented = "post.commented"
)

// Publisher is notified after a mutation has been stored. post is nil for deletions.
type Publisher interface {
	Publish(kind, postID string, post interface{})
}

type noopPublisher struct{}

func (noopPublisher) Publish(string, string, interface{}) {}

// PostService runs every post operation: id validation, authorization through the
// configured Policy, then a single store call whose result is returned as-is.
type PostService struct {
	store     Store
	policy    Policy
	publisher Publisher
	validate  *validator.Validate
}

// NewPostService creates a PostService. A nil policy means AnyAuthenticatedUser.
func NewPostService(store Store, policy Policy) *PostService {
	if policy == nil {
		policy = AnyAuthenticatedUser{}
	}
	v := validator.New()
	// Report JSON field names in validation messages.
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if name == "-" {
			return ""
		}
		return name
	})
	return &PostService{store: store, policy: policy, publisher: noopPublisher{}, validate: v}
}

// WithPublisher sets where post activity is announced and returns s.
func (s *PostService) WithPublisher(p Publisher) *PostService {
	if p == nil {
		p = noopPublisher{}
	}
	s.publisher = p
	return s
}

// announce publishes the redacted post so subscribers never receive inline image data.
func (s *PostService) announce(kind string, post *Post) *Post {
	redacted := post.Redacted()
	s.publisher.Publish(kind, post.ID, &redacted)
	return post
}

// List returns page `page` (1-based, clamped to 1) of PageSize posts.
func (s *PostService) List(ctx context.Context, page int) (*ListResponse, error) {
	if page < 1 {
		page = 1
	}
	items, total, err := s.store.List(ctx, (page-1)*PageSize, PageSize)
	if err != nil {
		return nil, err
	}
	return &ListResponse{
		Data:          items,
		CurrentPage:   page,
		NumberOfPages: (total + PageSize - 1) / PageSize,
	}, nil
}

func (s *PostService) Get(ctx context.Context, id string) (*Post, error) {
	if _, err := ParseID(id); err != nil {
		return nil, err
	}
	return s.store.Get(ctx, id)
}

// Search returns an empty result, without touching the store, when q has no condition.
func (s *PostService) Search(ctx context.Context, q SearchQuery) ([]Post, error) {
	if q.IsEmpty() {
		return []Post{}, nil
	}
	if hasNUL(append([]string{q.Title}, q.Tags...)...) {
		return nil, apperror.NewValidationError(msgNULCharacter, nil)
	}
	return s.store.Search(ctx, q)
}

// Create stores a new post owned by callerID. Any creator in req is ignored.
func (s *PostService) Create(ctx context.Context, callerID string, req CreatePostRequest) (*Post, error) {
	if callerID == "" {
		return nil, apperror.NewAuthError("Unauthenticated", nil)
	}
	if err := s.validate.Struct(req); err != nil {
		return nil, apperror.NewValidationError(validationMessage(err), err)
	}
	if hasNUL(append([]string{req.Title, req.Message, req.Name, req.SelectedFile}, req.Tags...)...) {
		return nil, apperror.NewValidationError(msgNULCharacter, nil)
	}

	post := &Post{
		Title:        req.Title,
		Message:      req.Message,
		Name:         req.Name,
		Creator:      callerID,
		Tags:         nonNil(req.Tags),
		SelectedFile: req.SelectedFile,
	}
	if err := s.store.Create(ctx, post); err != nil {
		return nil, err
	}
	logrus.WithFields(logrus.Fields{"post_id": post.ID, "creator": callerID}).Info("post created")
	return s.announce(ActivityCreated, post), nil
}

// Update applies patch and returns the post as stored afterwards.
func (s *PostService) Update(ctx context.Context, callerID, id string, patch PostPatch) (*Post, error) {
	if _, err := ParseID(id); err != nil {
		return nil, err
	}
	if patch.IsEmpty() {
		return nil, apperror.NewValidationError(msgNothingToUpdate, nil)
	}
	if patch.hasNUL() {
		return nil, apperror.NewValidationError(msgNULCharacter, nil)
	}
	if err := s.authorize(ctx, callerID, id, ActionUpdate); err != nil {
		return nil, err
	}
	post, err := s.store.Update(ctx, id, patch)
	if err != nil {
		return nil, err
	}
	return s.announce(ActivityUpdated, post), nil
}

func (s *PostService) Delete(ctx context.Context, callerID, id string) error {
	if _, err := ParseID(id); err != nil {
		return err
	}
	if err := s.authorize(ctx, callerID, id, ActionDelete); err != nil {
		return err
	}
	if err := s.store.Delete(ctx, id); err != nil {
		return err
	}
	logrus.WithFields(logrus.Fields{"post_id": id, "caller": callerID}).Info("post deleted")
	s.publisher.Publish(ActivityDeleted, id, nil)
	return nil
}

// ToggleLike adds callerID to the post's likes, or removes it when already present.
func (s *PostService) ToggleLike(ctx context.Context, callerID, id string) (*Post, error) {
	if _, err := ParseID(id); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, callerID, id, ActionLike); err != nil {
		return nil, err
	}
	post, err := s.store.ToggleLike(ctx, id, callerID)
	if err != nil {
		return nil, err
	}
	return s.announce(ActivityLiked, post), nil
}

// Comment appends value to the post's comments.
func (s *PostService) Comment(ctx context.Context, callerID, id, value string) (*Post, error) {
	if value == "" {
		return nil, apperror.NewValidationError(msgEmptyComment, nil)
	}
	if hasNUL(value) {
		return nil, apperror.NewValidationError(msgNULCharacter, nil)
	}
	if _, err := ParseID(id); err != nil {
		return nil, err
	}
	if err := s.authorize(ctx, callerID, id, ActionComment); err != nil {
		return nil, err
	}
	post, err := s.store.AppendComment(ctx, id, value)
	if err != nil {
		return nil, err
	}
	return s.announce(ActivityCommented, post), nil
}

func (s *PostService) authorize(ctx context.Context, callerID, id string, action Action) error {
	var post *Post
	if s.policy.NeedsPost(action) {
		p, err := s.store.Get(ctx, id)
		if err != nil {
			return err
		}
		post = p
	}
	return s.policy.Authorize(callerID, post, action)
}

// hasNUL reports whether any value contains a NUL byte, which PostgreSQL text columns reject.
func hasNUL(values ...string) bool {
	for _, v := range values {
		if strings.IndexByte(v, 0) >= 0 {
			return true
		}
	}
	return false
}

func (p PostPatch) hasNUL() bool {
	var values []string
	for _, v := range []*string{p.Title, p.Message, p.Name, p.SelectedFile} {
		if v != nil {
			values = append(values, *v)
		}
	}
	if p.Tags != nil {
		values = append(values, *p.Tags...)
	}
	return hasNUL(values...)
}

// validationMessage lists the failing fields of a validator error.
func validationMessage(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "Validation Error: " + err.Error()
	}
	fields := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		fields = append(fields, fe.Field())
	}
	return fmt.Sprintf("Validation Error: %s required", strings.Join(fields, ", "))
}
