package posts

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/user/memories-go/apperror"
	"github.com/user/memories-go/auth"
)

// PostHandler exposes PostService over HTTP.
type PostHandler struct {
	service *PostService
}

func NewPostHandler(service *PostService) *PostHandler {
	return &PostHandler{service: service}
}

// RegisterRoutes registers the post routes on a router mounted at /posts.
// authn wraps every route that needs a caller identity.
func (h *PostHandler) RegisterRoutes(r chi.Router, authn func(http.Handler) http.Handler) {
	r.Get("/", h.listPosts)
	r.Get("/search", h.searchPosts)
	r.Get("/{id}", h.getPost)

	r.Group(func(r chi.Router) {
		r.Use(authn)
		r.Post("/", h.createPost)
		r.Patch("/{id}", h.updatePost)
		r.Delete("/{id}", h.deletePost)
		r.Patch("/{id}/likePost", h.likePost)
		r.Post("/{id}/commentPost", h.commentPost)
	})
}

// listPosts godoc
// @Summary List posts
// @Description Returns one page of posts, newest first, 8 per page.
// @Tags Posts
// @Produce json
// @Param page query int false "Page number (defaults to 1)"
// @Success 200 {object} posts.ListResponse
// @Failure 500 {object} apperror.ErrorResponse
// @Router /posts/ [get]
func (h *PostHandler) listPosts(w http.ResponseWriter, r *http.Request) {
	resp, err := h.service.List(r.Context(), parsePage(r.URL.Query().Get("page")))
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	resp.Data = redactAll(resp.Data)
	auth.WriteJSON(w, http.StatusOK, resp)
}

// searchPosts godoc
// @Summary Search posts
// @Description Matches title substrings (case-insensitive) or any of the given tags.
// @Tags Posts
// @Produce json
// @Param searchQuery query string false "Title substring"
// @Param tags query string false "Comma separated tags"
// @Success 200 {object} posts.SearchResponse
// @Failure 500 {object} apperror.ErrorResponse
// @Router /posts/search [get]
func (h *PostHandler) searchPosts(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	found, err := h.service.Search(r.Context(), SearchQuery{
		Title: q.Get("searchQuery"),
		Tags:  parseTags(q.Get("tags")),
	})
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, SearchResponse{Data: redactAll(found)})
}

// getPost godoc
// @Summary Get a post
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} posts.Post
// @Failure 400 {object} apperror.ErrorResponse "Invalid Post ID format"
// @Failure 404 {object} apperror.ErrorResponse "Post not found"
// @Router /posts/{id} [get]
func (h *PostHandler) getPost(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	h.writePost(w, r, http.StatusOK, post, err)
}

// createPost godoc
// @Summary Create a post
// @Description The creator is always the authenticated caller.
// @Tags Posts
// @Accept json
// @Produce json
// @Param post body posts.CreatePostRequest true "Post fields"
// @Success 201 {object} posts.Post
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Router /posts/ [post]
// @Security BearerAuth
func (h *PostHandler) createPost(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req CreatePostRequest
	if err := decodeBody(r, &req, "No input data provided"); err != nil {
		auth.WriteError(w, r, err)
		return
	}
	post, err := h.service.Create(r.Context(), callerID(r), req)
	h.writePost(w, r, http.StatusCreated, post, err)
}

// updatePost godoc
// @Summary Update a post
// @Description Applies only the fields present in the body.
// @Tags Posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param patch body posts.UpdatePostRequest true "Fields to change"
// @Success 200 {object} posts.Post
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /posts/{id} [patch]
// @Security BearerAuth
func (h *PostHandler) updatePost(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req UpdatePostRequest
	if err := decodeBody(r, &req, "No update data provided"); err != nil {
		auth.WriteError(w, r, err)
		return
	}
	post, err := h.service.Update(r.Context(), callerID(r), chi.URLParam(r, "id"), req.Patch())
	h.writePost(w, r, http.StatusOK, post, err)
}

// deletePost godoc
// @Summary Delete a post
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} posts.MessageResponse
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 403 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /posts/{id} [delete]
// @Security BearerAuth
func (h *PostHandler) deletePost(w http.ResponseWriter, r *http.Request) {
	if err := h.service.Delete(r.Context(), callerID(r), chi.URLParam(r, "id")); err != nil {
		auth.WriteError(w, r, err)
		return
	}
	auth.WriteJSON(w, http.StatusOK, MessageResponse{Message: "Post Deleted successfully"})
}

// likePost godoc
// @Summary Toggle like
// @Description Likes the post, or removes the caller's like when already present.
// @Tags Posts
// @Produce json
// @Param id path string true "Post ID"
// @Success 200 {object} posts.Post
// @Failure 400 {object} apperror.ErrorResponse
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /posts/{id}/likePost [patch]
// @Security BearerAuth
func (h *PostHandler) likePost(w http.ResponseWriter, r *http.Request) {
	post, err := h.service.ToggleLike(r.Context(), callerID(r), chi.URLParam(r, "id"))
	h.writePost(w, r, http.StatusOK, post, err)
}

// commentPost godoc
// @Summary Comment on a post
// @Tags Posts
// @Accept json
// @Produce json
// @Param id path string true "Post ID"
// @Param comment body posts.CommentRequest true "Comment"
// @Success 200 {object} posts.Post
// @Failure 400 {object} apperror.ErrorResponse "Comment value cannot be empty"
// @Failure 401 {object} apperror.ErrorResponse
// @Failure 404 {object} apperror.ErrorResponse
// @Router /posts/{id}/commentPost [post]
// @Security BearerAuth
func (h *PostHandler) commentPost(w http.ResponseWriter, r *http.Request) {
	defer r.Body.Close()

	var req CommentRequest
	// An empty body is reported as an empty comment by the service.
	if err := decodeBody(r, &req, ""); err != nil && !errors.Is(err, errEmptyBody) {
		auth.WriteError(w, r, err)
		return
	}
	post, err := h.service.Comment(r.Context(), callerID(r), chi.URLParam(r, "id"), req.Value)
	h.writePost(w, r, http.StatusOK, post, err)
}

func (h *PostHandler) writePost(w http.ResponseWriter, r *http.Request, status int, post *Post, err error) {
	if err != nil {
		auth.WriteError(w, r, err)
		return
	}
	auth.WriteJSON(w, status, post.Redacted())
}

func callerID(r *http.Request) string {
	id, _ := auth.IdentityFromContext(r.Context())
	return id.SubjectID
}

var errEmptyBody = errors.New("empty request body")

// decodeBody reads a JSON body into dst. A missing body becomes a BadRequestError
// with emptyMessage wrapping errEmptyBody.
func decodeBody(r *http.Request, dst interface{}, emptyMessage string) error {
	if r.Body == nil {
		return apperror.NewBadRequestError(emptyMessage, errEmptyBody)
	}
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return apperror.NewBadRequestError(emptyMessage, errEmptyBody)
		}
		return apperror.NewBadRequestError("invalid request body: "+err.Error(), err)
	}
	return nil
}

// parsePage reads the page query parameter. Missing, non-numeric or non-positive values mean page 1.
func parsePage(raw string) int {
	page, err := strconv.Atoi(raw)
	if err != nil || page < 1 {
		return 1
	}
	return page
}

// parseTags splits a comma separated list, trimming blanks and dropping empty entries.
func parseTags(raw string) []string {
	var tags []string
	for _, t := range strings.Split(raw, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tags = append(tags, t)
		}
	}
	return tags
}

func redactAll(in []Post) []Post {
	out := make([]Post, len(in))
	for i, p := range in {
		out[i] = p.Redacted()
	}
	return out
}
