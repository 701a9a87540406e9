package main

import (
	"bufio"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/user/memories-go/config"
)

func memoryConfig(policy string) *config.AppConfig {
	return &config.AppConfig{
		Store: &config.StoreConfig{Backend: config.StoreBackendMemory},
		Auth: &config.AuthConfig{
			JWTSecret:           "router-secret",
			TokenTTL:            time.Hour,
			Issuer:              "memories",
			Classifier:          config.ClassifierLength,
			LengthThreshold:     500,
			AllowExternalTokens: true,
		},
		Posts:     &config.PostsConfig{MutationPolicy: policy},
		Upload:    &config.UploadConfig{URLTTL: time.Hour},
		RateLimit: &config.RateLimitConfig{MaxRequests: 20, Window: time.Minute},
		Events:    &config.EventsConfig{Heartbeat: time.Hour, Buffer: 4},
		Server:    &config.ServerConfig{Port: "0"},
		Log:       &config.LogConfig{Level: "error", Format: "text"},
	}
}

func newTestRouter(t *testing.T, policy string) http.Handler {
	t.Helper()
	a, err := newApp(context.Background(), memoryConfig(policy))
	require.NoError(t, err)
	t.Cleanup(a.close)

	h, err := a.router()
	require.NoError(t, err)
	return h
}

func call(h http.Handler, method, path, body, token string) *httptest.ResponseRecorder {
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
	h.ServeHTTP(rec, req)
	return rec
}

func signup(t *testing.T, h http.Handler, email string) string {
	t.Helper()
	body := `{"firstName":"Ada","lastName":"Lovelace","email":"` + email + `","password":"pw","confirmPassword":"pw"}`
	rec := call(h, http.MethodPost, "/user/signup", body, "")
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())

	var resp struct {
		Token string `json:"token"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func TestRouterEndToEnd(t *testing.T) {
	h := newTestRouter(t, config.PolicyAnyAuthenticated)
	token := signup(t, h, "ada@example.com")

	rec := call(h, http.MethodGet, "/user/me", "", token)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "ada@example.com")

	rec = call(h, http.MethodPost, "/posts", `{"title":"Trip","message":"Alps","name":"Ada","tags":["travel"]}`, token)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = call(h, http.MethodGet, "/posts?page=1", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"numberOfPages":1`)

	rec = call(h, http.MethodGet, "/posts/search?tags=travel", "", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), created.ID)

	rec = call(h, http.MethodPatch, "/posts/"+created.ID+"/likePost", "", token)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = call(h, http.MethodDelete, "/posts/"+created.ID, "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterCreatorOnlyPolicy(t *testing.T) {
	h := newTestRouter(t, config.PolicyCreatorOnly)
	owner := signup(t, h, "owner@example.com")
	other := signup(t, h, "other@example.com")

	rec := call(h, http.MethodPost, "/posts", `{"title":"Mine","message":"m","name":"Owner"}`, owner)
	require.Equal(t, http.StatusCreated, rec.Code)
	var created struct {
		ID string `json:"id"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &created))

	rec = call(h, http.MethodDelete, "/posts/"+created.ID, "", other)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = call(h, http.MethodDelete, "/posts/"+created.ID, "", owner)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRouterUploadsUnconfigured(t *testing.T) {
	h := newTestRouter(t, config.PolicyAnyAuthenticated)
	token := signup(t, h, "uploader@example.com")

	rec := call(h, http.MethodGet, "/posts/signed-url/upload?filename=a.png&filetype=image/png", "", token)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"Server configuration error for S3 uploads."}`, rec.Body.String())

	rec = call(h, http.MethodGet, "/posts/signed-url/upload?filename=a.png&filetype=image/png", "", "")
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRouterMisc(t *testing.T) {
	h := newTestRouter(t, config.PolicyAnyAuthenticated)

	rec := call(h, http.MethodGet, "/", "", "")
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = call(h, http.MethodGet, "/nowhere", "", "")
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"message":"Route not found"}`, rec.Body.String())
}

func TestRouterRejectsUnknownPolicy(t *testing.T) {
	a, err := newApp(context.Background(), memoryConfig("admins"))
	require.NoError(t, err)
	defer a.close()

	_, err = a.router()
	assert.Error(t, err)
}

func TestRecovererWritesInternalError(t *testing.T) {
	h := recoverer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.JSONEq(t, `{"message":"internal server error"}`, rec.Body.String())
}

func TestRouterStreamsPostActivity(t *testing.T) {
	h := newTestRouter(t, config.PolicyAnyAuthenticated)
	token := signup(t, h, "streamer@example.com")
	srv := httptest.NewServer(h)
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL+"/posts/events", nil)
	require.NoError(t, err)
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, "text/event-stream", resp.Header.Get("Content-Type"))

	reader := bufio.NewReader(resp.Body)
	for i := 0; i < 2; i++ { // ": connected" and its blank line
		_, err := reader.ReadString('\n')
		require.NoError(t, err)
	}

	rec := call(h, http.MethodPost, "/posts", `{"title":"Live","message":"m","name":"S"}`, token)
	require.Equal(t, http.StatusCreated, rec.Code)

	_, err = reader.ReadString('\n') // id
	require.NoError(t, err)
	line, err := reader.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "event: post.created\n", line)
	line, err = reader.ReadString('\n')
	require.NoError(t, err)
	assert.Contains(t, line, `"title":"Live"`)
}
