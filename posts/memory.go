package posts

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/clock"
)

// MemoryStore keeps posts in process memory. Every mutation runs under the write lock,
// which gives the same per-post atomicity the Postgres store gets from row locks.
type MemoryStore struct {
	mu    sync.RWMutex
	posts map[string]*Post
	clock clock.Clock
}

func NewMemoryStore(c clock.Clock) *MemoryStore {
	return &MemoryStore{posts: make(map[string]*Post), clock: c}
}

var _ Store = (*MemoryStore)(nil)

// sorted returns the posts matching keep, newest first. Callers hold at least the read lock.
func (s *MemoryStore) sorted(keep func(*Post) bool) []*Post {
	out := make([]*Post, 0, len(s.posts))
	for _, p := range s.posts {
		if keep == nil || keep(p) {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		// UUIDv7 strings sort by creation time.
		return out[i].ID > out[j].ID
	})
	return out
}

func (s *MemoryStore) List(_ context.Context, offset, limit int) ([]Post, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.sorted(nil)
	total := len(all)
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []Post{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}

	page := make([]Post, 0, end-offset)
	for _, p := range all[offset:end] {
		page = append(page, *p.clone())
	}
	return page, total, nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*Post, error) {
	key, err := memoryKey(id)
	if err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.posts[key]
	if !ok {
		return nil, notFound()
	}
	return p.clone(), nil
}

func (s *MemoryStore) Search(_ context.Context, q SearchQuery) ([]Post, error) {
	if q.IsEmpty() {
		return []Post{}, nil
	}
	title := strings.ToLower(q.Title)
	wanted := make(map[string]struct{}, len(q.Tags))
	for _, t := range q.Tags {
		wanted[t] = struct{}{}
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	matches := s.sorted(func(p *Post) bool {
		if title != "" && strings.Contains(strings.ToLower(p.Title), title) {
			return true
		}
		for _, t := range p.Tags {
			if _, ok := wanted[t]; ok {
				return true
			}
		}
		return false
	})

	out := make([]Post, 0, len(matches))
	for _, p := range matches {
		out = append(out, *p.clone())
	}
	return out, nil
}

func (s *MemoryStore) Create(_ context.Context, post *Post) error {
	id, err := uuid.NewV7()
	if err != nil {
		return apperror.NewInternalError("failed to generate post id", err)
	}
	post.ID = id.String()
	post.CreatedAt = s.clock.NowUtc()
	post.Tags = nonNil(post.Tags)
	post.Likes = []string{}
	post.Comments = []string{}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.posts[post.ID] = post.clone()
	return nil
}

func (s *MemoryStore) Update(_ context.Context, id string, patch PostPatch) (*Post, error) {
	return s.mutate(id, func(p *Post) {
		if patch.Title != nil {
			p.Title = *patch.Title
		}
		if patch.Message != nil {
			p.Message = *patch.Message
		}
		if patch.Name != nil {
			p.Name = *patch.Name
		}
		if patch.Tags != nil {
			p.Tags = append([]string{}, (*patch.Tags)...)
		}
		if patch.SelectedFile != nil {
			p.SelectedFile = *patch.SelectedFile
		}
	})
}

func (s *MemoryStore) Delete(_ context.Context, id string) error {
	key, err := memoryKey(id)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.posts[key]; !ok {
		return notFound()
	}
	delete(s.posts, key)
	return nil
}

func (s *MemoryStore) ToggleLike(_ context.Context, id string, userID string) (*Post, error) {
	return s.mutate(id, func(p *Post) {
		for i, liker := range p.Likes {
			if liker == userID {
				p.Likes = append(p.Likes[:i], p.Likes[i+1:]...)
				return
			}
		}
		p.Likes = append(p.Likes, userID)
	})
}

func (s *MemoryStore) AppendComment(_ context.Context, id string, value string) (*Post, error) {
	return s.mutate(id, func(p *Post) {
		p.Comments = append(p.Comments, value)
	})
}

// Count returns the number of stored posts.
func (s *MemoryStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.posts)
}

// mutate applies fn to the stored post under the write lock and returns a copy of the result.
func (s *MemoryStore) mutate(id string, fn func(*Post)) (*Post, error) {
	key, err := memoryKey(id)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.posts[key]
	if !ok {
		return nil, notFound()
	}
	fn(p)
	return p.clone(), nil
}

// memoryKey normalizes id to the canonical form used as map key.
func memoryKey(id string) (string, error) {
	parsed, err := ParseID(id)
	if err != nil {
		return "", err
	}
	return parsed.String(), nil
}
