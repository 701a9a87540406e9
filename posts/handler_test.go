package posts_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/memories-go/auth"
	"github.com/user/memories-go/clock"
	"github.com/user/memories-go/config"
	"github.com/user/memories-go/posts"
)

type api struct {
	router http.Handler
	codec  *auth.TokenCodec
	store  *posts.MemoryStore
}

func newAPI(t *testing.T) *api {
	t.Helper()
	c := clock.NewRealClock()
	codec, err := auth.NewTokenCodec(&config.AuthConfig{
		JWTSecret:       "handler-secret",
		TokenTTL:        time.Hour,
		Issuer:          "memories",
		Classifier:      config.ClassifierLength,
		LengthThreshold: 500,
	}, c)
	require.NoError(t, err)

	store := posts.NewMemoryStore(c)
	h := posts.NewPostHandler(posts.NewPostService(store, posts.AnyAuthenticatedUser{}))
	r := chi.NewRouter()
	r.Route("/posts", func(r chi.Router) {
		h.RegisterRoutes(r, auth.NewGate(codec, true).Middleware)
	})
	return &api{router: r, codec: codec, store: store}
}

func (a *api) token(t *testing.T, subject string) string {
	t.Helper()
	token, _, err := a.codec.Issue(subject, "", 0)
	require.NoError(t, err)
	return token
}

func (a *api) do(method, path, body, token string) *httptest.ResponseRecorder {
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	a.router.ServeHTTP(rec, req)
	return rec
}

func decodePost(t *testing.T, rec *httptest.ResponseRecorder) posts.Post {
	t.Helper()
	var p posts.Post
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &p))
	return p
}

func TestPostLifecycleOverHTTP(t *testing.T) {
	a := newAPI(t)
	owner := a.token(t, "owner-1")
	fan := a.token(t, "fan-1")

	rec := a.do(http.MethodPost, "/posts/", `{"title":"Beach","message":"sun","name":"Ada","creator":"forged","tags":["summer"]}`, owner)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	created := decodePost(t, rec)
	assert.Equal(t, "owner-1", created.Creator)
	assert.Equal(t, []string{"summer"}, created.Tags)

	// JSON field names and empty arrays.
	var raw map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &raw))
	for _, key := range []string{"id", "title", "message", "name", "creator", "tags", "selectedFile", "likes", "comments", "createdAt"} {
		assert.Contains(t, raw, key)
	}
	assert.Equal(t, []interface{}{}, raw["likes"])

	rec = a.do(http.MethodGet, "/posts/"+created.ID, "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, created.ID, decodePost(t, rec).ID)

	rec = a.do(http.MethodPatch, "/posts/"+created.ID, `{"title":"Beach day"}`, fan)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "Beach day", decodePost(t, rec).Title)

	rec = a.do(http.MethodPatch, "/posts/"+created.ID+"/likePost", "", fan)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"fan-1"}, decodePost(t, rec).Likes)

	rec = a.do(http.MethodPost, "/posts/"+created.ID+"/commentPost", `{"value":"Ada: lovely"}`, fan)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, []string{"Ada: lovely"}, decodePost(t, rec).Comments)

	rec = a.do(http.MethodDelete, "/posts/"+created.ID, "", fan)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"Post Deleted successfully"}`, rec.Body.String())

	rec = a.do(http.MethodGet, "/posts/"+created.ID, "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Post not found"}`, rec.Body.String())
}

func TestMutationsRequireAuth(t *testing.T) {
	a := newAPI(t)
	id := "01920c4e-5b7a-7c3e-9f51-2a6d8e0f1b23"

	cases := []struct{ method, path string }{
		{http.MethodPost, "/posts/"},
		{http.MethodPatch, "/posts/" + id},
		{http.MethodDelete, "/posts/" + id},
		{http.MethodPatch, "/posts/" + id + "/likePost"},
		{http.MethodPost, "/posts/" + id + "/commentPost"},
	}
	for _, tc := range cases {
		rec := a.do(tc.method, tc.path, "", "")
		assert.Equal(t, http.StatusUnauthorized, rec.Code, "%s %s", tc.method, tc.path)
	}
}

func TestHTTPErrors(t *testing.T) {
	a := newAPI(t)
	token := a.token(t, "user-1")

	rec := a.do(http.MethodGet, "/posts/not-an-id", "", "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Invalid Post ID format"}`, rec.Body.String())

	rec = a.do(http.MethodPost, "/posts/", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"No input data provided"}`, rec.Body.String())

	rec = a.do(http.MethodPost, "/posts/", `{"title":"only"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	created := a.do(http.MethodPost, "/posts/", `{"title":"t","message":"m","name":"n"}`, token)
	require.Equal(t, http.StatusCreated, created.Code)
	id := decodePost(t, created).ID

	rec = a.do(http.MethodPatch, "/posts/"+id, `{"creator":"me"}`, token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"No valid fields to update provided"}`, rec.Body.String())

	rec = a.do(http.MethodPost, "/posts/"+id+"/commentPost", "", token)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"message":"Comment value cannot be empty"}`, rec.Body.String())
}

func TestListAndSearchOverHTTP(t *testing.T) {
	a := newAPI(t)
	token := a.token(t, "user-1")
	for _, body := range []string{
		`{"title":"Beach","message":"m","name":"n","tags":["summer"]}`,
		`{"title":"Snow","message":"m","name":"n","tags":["winter"]}`,
		`{"title":"Inline","message":"m","name":"n","selectedFile":"data:image/png;base64,AAAA"}`,
	} {
		require.Equal(t, http.StatusCreated, a.do(http.MethodPost, "/posts/", body, token).Code)
	}

	rec := a.do(http.MethodGet, "/posts/?page=abc", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var list posts.ListResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Equal(t, 1, list.CurrentPage)
	assert.Equal(t, 1, list.NumberOfPages)
	require.Len(t, list.Data, 3)
	for _, p := range list.Data {
		assert.False(t, strings.HasPrefix(p.SelectedFile, "data:image"))
	}

	rec = a.do(http.MethodGet, "/posts/search?searchQuery=beach&tags=%20winter%20,,", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var found posts.SearchResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &found))
	assert.Len(t, found.Data, 2)

	rec = a.do(http.MethodGet, "/posts/search", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"data":[]}`, rec.Body.String())
}
