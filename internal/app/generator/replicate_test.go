package generator

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"image_gen/internal/domain/model"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReplicate struct {
	*httptest.Server
	polls    atomic.Int32
	pending  int32
	status   string
	lastBody map[string]map[string]interface{}
	lastAuth string
	prefer   string
	imgType  string
}

func newFakeReplicate(t *testing.T) *fakeReplicate {
	f := &fakeReplicate{status: statusSucceeded, imgType: "image/webp"}
	mux := http.NewServeMux()
	mux.HandleFunc("POST /models/black-forest-labs/flux-schnell/predictions", func(w http.ResponseWriter, r *http.Request) {
		f.lastAuth = r.Header.Get("Authorization")
		f.prefer = r.Header.Get("Prefer")
		require.NoError(t, json.NewDecoder(r.Body).Decode(&f.lastBody))
		status := f.status
		if f.pending > 0 {
			status = statusProcessing
		}
		f.writePrediction(w, status)
	})
	mux.HandleFunc("GET /predictions/p1", func(w http.ResponseWriter, r *http.Request) {
		n := f.polls.Add(1)
		status := f.status
		if n < f.pending {
			status = statusProcessing
		}
		f.writePrediction(w, status)
	})
	mux.HandleFunc("GET /files/out.webp", func(w http.ResponseWriter, r *http.Request) {
		if f.imgType != "" {
			w.Header().Set("Content-Type", f.imgType)
		} else {
			w.Header()["Content-Type"] = nil
		}
		_, _ = w.Write([]byte("IMAGEDATA"))
	})
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeReplicate) writePrediction(w http.ResponseWriter, status string) {
	resp := map[string]interface{}{
		"id":     "p1",
		"status": status,
		"urls":   map[string]string{"get": f.URL + "/predictions/p1"},
	}
	switch status {
	case statusSucceeded:
		resp["output"] = []string{f.URL + "/files/out.webp"}
	case statusFailed:
		resp["error"] = "NSFW content detected"
	}
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(resp)
}

func newClient(f *fakeReplicate) *ReplicateClient {
	return NewReplicateClient(ReplicateConfig{
		APIToken:     "r8_test",
		BaseURL:      f.URL + "/",
		PollInterval: time.Millisecond,
	}, zerolog.Nop())
}

func TestReplicateClient_SyncSuccess(t *testing.T) {
	f := newFakeReplicate(t)
	img, err := newClient(f).Generate(context.Background(), model.GenerationRequest{
		Prompt:  "a red fox in snow",
		Options: model.GenerationOptions{AspectRatio: "16:9", Format: "png", Quality: 90},
	})
	require.NoError(t, err)
	assert.Equal(t, []byte("IMAGEDATA"), img.Data)
	assert.Equal(t, "image/webp", img.ContentType)

	assert.Equal(t, "Bearer r8_test", f.lastAuth)
	assert.Equal(t, "wait", f.prefer)
	input := f.lastBody["input"]
	assert.Equal(t, "a red fox in snow", input["prompt"])
	assert.Equal(t, "16:9", input["aspect_ratio"])
	assert.Equal(t, "png", input["output_format"])
	assert.Equal(t, float64(90), input["output_quality"])
	assert.Equal(t, float64(2), input["safety_tolerance"])
	assert.Equal(t, true, input["prompt_upsampling"])
	assert.Equal(t, int32(0), f.polls.Load())
}

func TestReplicateClient_PollsUntilDone(t *testing.T) {
	f := newFakeReplicate(t)
	f.pending = 3

	img, err := newClient(f).Generate(context.Background(), model.GenerationRequest{Prompt: "x"})
	require.NoError(t, err)
	assert.Equal(t, []byte("IMAGEDATA"), img.Data)
	assert.Equal(t, int32(3), f.polls.Load())
}

func TestReplicateClient_ContentTypeFallback(t *testing.T) {
	f := newFakeReplicate(t)
	f.imgType = "application/octet-stream"

	img, err := newClient(f).Generate(context.Background(), model.GenerationRequest{
		Prompt: "x", Options: model.GenerationOptions{Format: "jpg"},
	})
	require.NoError(t, err)
	assert.Equal(t, "image/jpg", img.ContentType)
}

func TestReplicateClient_Failed(t *testing.T) {
	f := newFakeReplicate(t)
	f.status = statusFailed

	_, err := newClient(f).Generate(context.Background(), model.GenerationRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "NSFW")
}

func TestReplicateClient_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"detail":"Unauthenticated"}`, http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewReplicateClient(ReplicateConfig{BaseURL: srv.URL}, zerolog.Nop())
	_, err := c.Generate(context.Background(), model.GenerationRequest{Prompt: "x"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 401")
}

func TestReplicateClient_RespectsDeadline(t *testing.T) {
	f := newFakeReplicate(t)
	f.pending = 1 << 30

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	_, err := newClient(f).Generate(ctx, model.GenerationRequest{Prompt: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, context.DeadlineExceeded), err)
}

func TestFirstOutput(t *testing.T) {
	u, err := firstOutput(json.RawMessage(`["https://a/1.webp","https://a/2.webp"]`))
	require.NoError(t, err)
	assert.Equal(t, "https://a/1.webp", u)

	u, err = firstOutput(json.RawMessage(`"https://a/only.png"`))
	require.NoError(t, err)
	assert.Equal(t, "https://a/only.png", u)

	_, err = firstOutput(json.RawMessage(`[]`))
	assert.Error(t, err)
	_, err = firstOutput(json.RawMessage(`null`))
	assert.Error(t, err)
}
