// Package posts implements the memories themselves: paginated listing, search,
// creation, partial updates, deletion, like toggling and comments.
// Storage is behind the Store interface; authorization decisions go through a Policy.
package posts

import (
	"strings"
	"time"
)

// Post is a shared memory as returned to clients.
// Slices are never nil so they always serialize as `[]`.
type Post struct {
	ID           string    `json:"id" example:"01920c4e-5b7a-7c3e-9f51-2a6d8e0f1b23"`
	Title        string    `json:"title" example:"Beach day"`
	Message      string    `json:"message" example:"Sun, sand and too much sunscreen."`
	Name         string    `json:"name" example:"Ada Lovelace"`
	Creator      string    `json:"creator" example:"01920c4e-0000-7000-8000-000000000001"`
	Tags         []string  `json:"tags"`
	SelectedFile string    `json:"selectedFile" example:"uploads/01920c4e/4f1c.png"`
	Likes        []string  `json:"likes"`
	Comments     []string  `json:"comments"`
	CreatedAt    time.Time `json:"createdAt"`
}

// inlineImagePrefix marks legacy base64 images stored directly in selectedFile.
const inlineImagePrefix = "data:image"

// Redacted returns a copy fit for responses. Inline base64 images are not sent back.
func (p Post) Redacted() Post {
	if strings.HasPrefix(p.SelectedFile, inlineImagePrefix) {
		p.SelectedFile = ""
	}
	p.Tags = nonNil(p.Tags)
	p.Likes = nonNil(p.Likes)
	p.Comments = nonNil(p.Comments)
	return p
}

func (p *Post) clone() *Post {
	c := *p
	c.Tags = append([]string{}, p.Tags...)
	c.Likes = append([]string{}, p.Likes...)
	c.Comments = append([]string{}, p.Comments...)
	return &c
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// CreatePostRequest is the body of POST /posts/.
// A `creator` sent by the client is accepted by the decoder and then ignored.
type CreatePostRequest struct {
	Title        string   `json:"title" validate:"required" example:"Beach day"`
	Message      string   `json:"message" validate:"required" example:"Sun, sand and too much sunscreen."`
	Name         string   `json:"name" validate:"required" example:"Ada Lovelace"`
	Creator      string   `json:"creator,omitempty" swaggerignore:"true"`
	Tags         []string `json:"tags" example:"beach,summer"`
	SelectedFile string   `json:"selectedFile" example:"uploads/01920c4e/4f1c.png"`
}

// UpdatePostRequest is the body of PATCH /posts/{id}. Absent fields are left untouched.
type UpdatePostRequest struct {
	Title        *string   `json:"title,omitempty"`
	Message      *string   `json:"message,omitempty"`
	Name         *string   `json:"name,omitempty"`
	Tags         *[]string `json:"tags,omitempty"`
	SelectedFile *string   `json:"selectedFile,omitempty"`
}

// Patch converts the request into the store-level patch.
func (r UpdatePostRequest) Patch() PostPatch {
	return PostPatch(r)
}

// CommentRequest is the body of POST /posts/{id}/commentPost.
type CommentRequest struct {
	Value string `json:"value" example:"Looks amazing!"`
}

// ListResponse is one page of posts.
type ListResponse struct {
	Data          []Post `json:"data"`
	CurrentPage   int    `json:"currentPage" example:"1"`
	NumberOfPages int    `json:"numberOfPages" example:"3"`
}

// SearchResponse wraps search results.
type SearchResponse struct {
	Data []Post `json:"data"`
}

// MessageResponse carries a plain confirmation message.
type MessageResponse struct {
	Message string `json:"message" example:"Post Deleted successfully"`
}
