package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"image_gen/internal/api/handler"
	"image_gen/internal/api/middleware"
	"image_gen/internal/app/service"
	"image_gen/internal/common/security"
	"image_gen/internal/domain/model"
	"image_gen/internal/domain/repository"
	"image_gen/internal/platform/blob"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const adminSecret = "bootstrap-secret"

var pngBytes = []byte{0x89, 'P', 'N', 'G', '\r', '\n', 0x1a, '\n', 1, 2, 3}

type fakeGenerator struct {
	mu    sync.Mutex
	calls []model.GenerationRequest
}

func (g *fakeGenerator) Generate(_ context.Context, req model.GenerationRequest) (*model.GeneratedImage, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.calls = append(g.calls, req)
	return &model.GeneratedImage{Data: pngBytes, ContentType: "image/png"}, nil
}

type testServer struct {
	handler http.Handler
	gen     *fakeGenerator
	blobs   *blob.MemoryStore
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	log := zerolog.Nop()
	users := repository.NewMemoryUserRepository()
	images := repository.NewMemoryImageRepository(users)
	blobs := blob.NewMemoryStore()
	tokens := security.NewTokenIssuer([]byte("router-secret"))
	gen := &fakeGenerator{}

	authSvc := service.NewAuthService(users, tokens, service.AuthConfig{
		SignupTokenTTL: 7 * 24 * time.Hour,
		LoginTokenTTL:  time.Hour,
		AdminSecret:    adminSecret,
	}, log)
	genSvc := service.NewGenerationService(gen, images, blobs, 5*time.Second, log)
	imgSvc := service.NewImageService(images, blobs)

	r := NewRouter(RouterConfig{
		Auth:        handler.NewAuthHandler(authSvc, log),
		Image:       handler.NewImageHandler(genSvc, imgSvc, nil, log),
		Admin:       handler.NewAdminHandler(imgSvc, log),
		Health:      handler.NewHealthHandler(nil, nil),
		Tokens:      tokens,
		Users:       users,
		Log:         log,
		Secure:      middleware.NewSecure(middleware.SecureOptions(true)),
		CORSOrigins: []string{"*"},
		Metrics:     true,
	})
	return &testServer{handler: r, gen: gen, blobs: blobs}
}

func (s *testServer) do(t *testing.T, method, path, token string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	switch b := body.(type) {
	case nil:
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}
	req := httptest.NewRequest(method, path, &buf)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	return rec
}

func (s *testServer) signup(t *testing.T, email string) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/signup", "", map[string]string{"email": email, "password": "password123"})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp service.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.Token)
	return resp.Token
}

func (s *testServer) generate(t *testing.T, token, prompt string, opts map[string]any) string {
	t.Helper()
	rec := s.do(t, http.MethodPost, "/generate-image", token, map[string]any{"prompt": prompt, "options": opts})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	id := rec.Header().Get("X-Image-Id")
	require.NotEmpty(t, id)
	return id
}

func TestRouter_GenerateAndFetch(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "fox@example.com")

	rec := s.do(t, http.MethodPost, "/generate-image", token, map[string]any{
		"prompt":  "a red fox",
		"options": map[string]any{"aspect_ratio": "16:9", "format": "png", "quality": "90"},
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "image/png", rec.Header().Get("Content-Type"))
	assert.Equal(t, pngBytes, rec.Body.Bytes())
	id := rec.Header().Get("X-Image-Id")
	require.NotEmpty(t, id)

	require.Len(t, s.gen.calls, 1)
	assert.Equal(t, model.GenerationOptions{AspectRatio: "16:9", Format: "png", Quality: 90}, s.gen.calls[0].Options)
	assert.Equal(t, 1, s.blobs.Len())

	rec = s.do(t, http.MethodGet, "/images/"+id, token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, pngBytes, rec.Body.Bytes())
	assert.Equal(t, "a red fox", rec.Header().Get("X-Image-Prompt"))
	created, err := time.Parse(time.RFC3339, rec.Header().Get("X-Image-Created"))
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now(), created, time.Minute)
	assert.True(t, strings.HasPrefix(rec.Header().Get("Content-Disposition"), `inline; filename="a-red-fox-`))
	etag := rec.Header().Get("ETag")
	require.NotEmpty(t, etag)

	req := httptest.NewRequest(http.MethodGet, "/images/"+id, nil)
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("If-None-Match", etag)
	notModified := httptest.NewRecorder()
	s.handler.ServeHTTP(notModified, req)
	assert.Equal(t, http.StatusNotModified, notModified.Code)

	rec = s.do(t, http.MethodGet, "/images", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list service.ImageList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Images, 1)
	assert.Equal(t, id, list.Images[0].ID)
	assert.Equal(t, "image/png", list.Images[0].Format)
	assert.Equal(t, 90, list.Images[0].Quality)
	assert.Nil(t, list.Images[0].OwnerEmail)
	assert.Equal(t, service.Pagination{Total: 1, Limit: 10, Skip: 0, HasMore: false}, list.Pagination)

	rec = s.do(t, http.MethodGet, "/images/stats", token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var stats model.ImageStats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &stats))
	assert.Equal(t, 1, stats.Count)
	require.NotNil(t, stats.AvgQuality)
	assert.InDelta(t, 90, *stats.AvgQuality, 0.001)
	assert.Equal(t, map[string]int{"image/png": 1}, stats.Formats)
}

func TestRouter_OwnerIsolation(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice@example.com")
	bob := s.signup(t, "bob@example.com")

	id := s.generate(t, alice, "alice's lighthouse", nil)

	rec := s.do(t, http.MethodGet, "/images/"+id, bob, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.JSONEq(t, `{"error":"Image not found"}`, rec.Body.String())

	rec = s.do(t, http.MethodGet, "/images/not-a-uuid", bob, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodGet, "/images", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list service.ImageList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Empty(t, list.Images)
	assert.Equal(t, 0, list.Pagination.Total)

	rec = s.do(t, http.MethodGet, "/images/stats", bob, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":0}`, rec.Body.String())
}

func TestRouter_AdminListing(t *testing.T) {
	s := newTestServer(t)
	alice := s.signup(t, "alice@example.com")
	bob := s.signup(t, "bob@example.com")
	s.generate(t, alice, "first", nil)
	s.generate(t, bob, "second", nil)

	rec := s.do(t, http.MethodGet, "/admin/images", alice, nil)
	assert.Equal(t, http.StatusForbidden, rec.Code)
	assert.JSONEq(t, `{"error":"Admin access required"}`, rec.Body.String())

	rec = s.do(t, http.MethodPost, "/create-admin", "", map[string]string{
		"email": "root@example.com", "password": "password123", "adminSecret": "wrong",
	})
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = s.do(t, http.MethodPost, "/create-admin", "", map[string]string{
		"email": "root@example.com", "password": "password123", "adminSecret": adminSecret,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	var resp service.AuthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	admin := resp.Token

	rec = s.do(t, http.MethodGet, "/admin/images?sortOrder=asc", admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	var list service.ImageList
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Images, 2)
	assert.Equal(t, "first", list.Images[0].Prompt)
	require.NotNil(t, list.Images[0].OwnerEmail)
	assert.Equal(t, "alice@example.com", *list.Images[0].OwnerEmail)
	require.NotNil(t, list.Images[1].OwnerEmail)
	assert.Equal(t, "bob@example.com", *list.Images[1].OwnerEmail)

	bobID := list.Images[1].OwnerID
	rec = s.do(t, http.MethodGet, "/admin/images?userId="+bobID, admin, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list.Images, 1)
	assert.Equal(t, "second", list.Images[0].Prompt)

	rec = s.do(t, http.MethodGet, "/admin/images?userId=nope", admin, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRouter_AuthFailures(t *testing.T) {
	s := newTestServer(t)

	for _, path := range []string{"/images", "/images/stats", "/admin/images"} {
		rec := s.do(t, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusUnauthorized, rec.Code, path)
	}
	rec := s.do(t, http.MethodPost, "/generate-image", "garbage", map[string]string{"prompt": "x"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, s.gen.calls)

	rec = s.do(t, http.MethodPost, "/signup", "", "{not json")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid request payload"}`, rec.Body.String())

	s.signup(t, "dup@example.com")
	rec = s.do(t, http.MethodPost, "/signup", "", map[string]string{"email": "dup@example.com", "password": "password123"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(t, http.MethodPost, "/login", "", map[string]string{"email": "dup@example.com", "password": "wrong-password"})
	wrongPw := rec.Body.String()
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	rec = s.do(t, http.MethodPost, "/login", "", map[string]string{"email": "ghost@example.com", "password": "wrong-password"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, wrongPw, rec.Body.String())
}

func TestRouter_InvalidPrompt(t *testing.T) {
	s := newTestServer(t)
	token := s.signup(t, "blank@example.com")

	rec := s.do(t, http.MethodPost, "/generate-image", token, map[string]string{"prompt": "   "})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"Invalid prompt"}`, rec.Body.String())
	assert.Empty(t, s.gen.calls)
	assert.Equal(t, 0, s.blobs.Len())
}

func TestRouter_PublicEndpoints(t *testing.T) {
	s := newTestServer(t)

	rec := s.do(t, http.MethodGet, "/health", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "nosniff", rec.Header().Get("X-Content-Type-Options"))

	s.do(t, http.MethodGet, "/health", "", nil)
	rec = s.do(t, http.MethodGet, "/metrics", "", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "image_gen_http_request_duration_seconds")
}
