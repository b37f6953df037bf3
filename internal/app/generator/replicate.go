// Package generator talks to the hosted image synthesis provider.
package generator

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"image_gen/internal/domain/model"

	"github.com/rs/zerolog"
)

const (
	DefaultBaseURL = "https://api.replicate.com/v1"
	DefaultModel   = "black-forest-labs/flux-schnell"

	maxImageBytes = 32 << 20
)

// Provider-side prediction states.
const (
	statusStarting   = "starting"
	statusProcessing = "processing"
	statusSucceeded  = "succeeded"
	statusFailed     = "failed"
	statusCanceled   = "canceled"
)

type ReplicateConfig struct {
	APIToken     string
	BaseURL      string
	Model        string
	PollInterval time.Duration
}

// ReplicateClient runs one prediction per call and downloads its first output.
type ReplicateClient struct {
	cfg        ReplicateConfig
	httpClient *http.Client
	log        zerolog.Logger
}

func NewReplicateClient(cfg ReplicateConfig, log zerolog.Logger) *ReplicateClient {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = time.Second
	}
	return &ReplicateClient{
		cfg: cfg,
		// Deadlines come from the caller's context.
		httpClient: &http.Client{},
		log:        log.With().Str("component", "replicate").Logger(),
	}
}

type predictionInput struct {
	Prompt           string `json:"prompt"`
	AspectRatio      string `json:"aspect_ratio"`
	OutputFormat     string `json:"output_format"`
	OutputQuality    int    `json:"output_quality"`
	SafetyTolerance  int    `json:"safety_tolerance"`
	PromptUpsampling bool   `json:"prompt_upsampling"`
}

type prediction struct {
	ID     string          `json:"id"`
	Status string          `json:"status"`
	Output json.RawMessage `json:"output"`
	Error  interface{}     `json:"error"`
	URLs   struct {
		Get string `json:"get"`
	} `json:"urls"`
}

func (c *ReplicateClient) Generate(ctx context.Context, req model.GenerationRequest) (*model.GeneratedImage, error) {
	opts := req.Options.Resolve()
	body, err := json.Marshal(map[string]interface{}{
		"input": predictionInput{
			Prompt:           req.Prompt,
			AspectRatio:      opts.AspectRatio,
			OutputFormat:     opts.Format,
			OutputQuality:    opts.Quality,
			SafetyTolerance:  2,
			PromptUpsampling: true,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("encode prediction: %w", err)
	}

	endpoint := fmt.Sprintf("%s/models/%s/predictions", c.cfg.BaseURL, c.cfg.Model)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Prefer", "wait")

	start := time.Now()
	pred, err := c.doPrediction(httpReq)
	if err != nil {
		return nil, err
	}

	for pred.Status == statusStarting || pred.Status == statusProcessing {
		if pred.URLs.Get == "" {
			return nil, fmt.Errorf("prediction %s is %s without a poll url", pred.ID, pred.Status)
		}
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(c.cfg.PollInterval):
		}
		pollReq, err := http.NewRequestWithContext(ctx, http.MethodGet, pred.URLs.Get, nil)
		if err != nil {
			return nil, fmt.Errorf("create poll request: %w", err)
		}
		if pred, err = c.doPrediction(pollReq); err != nil {
			return nil, err
		}
	}

	switch pred.Status {
	case statusSucceeded:
	case statusFailed, statusCanceled:
		return nil, fmt.Errorf("prediction %s %s: %v", pred.ID, pred.Status, pred.Error)
	default:
		return nil, fmt.Errorf("prediction %s: unexpected status %q", pred.ID, pred.Status)
	}

	outputURL, err := firstOutput(pred.Output)
	if err != nil {
		return nil, fmt.Errorf("prediction %s: %w", pred.ID, err)
	}
	c.log.Debug().Str("prediction_id", pred.ID).Dur("elapsed", time.Since(start)).Msg("prediction succeeded")

	img, err := c.download(ctx, outputURL)
	if err != nil {
		return nil, err
	}
	if img.ContentType == "" {
		img.ContentType = "image/" + opts.Format
	}
	return img, nil
}

func (c *ReplicateClient) doPrediction(req *http.Request) (*prediction, error) {
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("replicate request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return nil, fmt.Errorf("replicate %s: status %d: %s", req.URL.Path, resp.StatusCode, strings.TrimSpace(string(msg)))
	}

	var pred prediction
	if err := json.NewDecoder(resp.Body).Decode(&pred); err != nil {
		return nil, fmt.Errorf("decode prediction: %w", err)
	}
	return &pred, nil
}

func (c *ReplicateClient) download(ctx context.Context, url string) (*model.GeneratedImage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("create download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download output: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download output: status %d", resp.StatusCode)
	}
	data, err := io.ReadAll(io.LimitReader(resp.Body, maxImageBytes+1))
	if err != nil {
		return nil, fmt.Errorf("read output: %w", err)
	}
	if len(data) > maxImageBytes {
		return nil, fmt.Errorf("output exceeds %d bytes", maxImageBytes)
	}

	contentType := resp.Header.Get("Content-Type")
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !strings.HasPrefix(contentType, "image/") {
		contentType = ""
	}
	return &model.GeneratedImage{Data: data, ContentType: contentType}, nil
}

// firstOutput accepts both a list of urls and a single url.
func firstOutput(raw json.RawMessage) (string, error) {
	var list []string
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 || list[0] == "" {
			return "", errors.New("prediction produced no output")
		}
		return list[0], nil
	}
	var single string
	if err := json.Unmarshal(raw, &single); err == nil && single != "" {
		return single, nil
	}
	return "", errors.New("prediction produced no output")
}
