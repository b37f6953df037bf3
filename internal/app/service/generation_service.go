package service

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"image_gen/internal/common"
	"image_gen/internal/domain/model"
	"image_gen/internal/domain/repository"
	"image_gen/internal/platform/blob"
	"image_gen/internal/platform/metrics"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/zeebo/blake3"
)

// Generator is the external synthesis backend. Implementations must honour
// ctx cancellation and return the payload fully read.
type Generator interface {
	Generate(ctx context.Context, req model.GenerationRequest) (*model.GeneratedImage, error)
}

type GenerationService struct {
	generator Generator
	images    repository.ImageRepository
	blobs     blob.Store
	timeout   time.Duration
	log       zerolog.Logger
}

func NewGenerationService(generator Generator, images repository.ImageRepository, blobs blob.Store, timeout time.Duration, log zerolog.Logger) *GenerationService {
	return &GenerationService{
		generator: generator,
		images:    images,
		blobs:     blobs,
		timeout:   timeout,
		log:       log.With().Str("component", "generation").Logger(),
	}
}

// BlobKey is where an image's payload lives in the blob store.
func BlobKey(imageID string) string {
	return "images/" + imageID
}

// ContentHash is the hex BLAKE3-256 digest of a payload.
func ContentHash(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// Generate calls the provider exactly once and persists the result under ownerID.
func (s *GenerationService) Generate(ctx context.Context, ownerID, prompt string, opts model.GenerationOptions) (*model.GenerationResult, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, common.WithMessage(common.ErrInvalidInput, "Invalid prompt")
	}
	opts = opts.Resolve()

	genCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	start := time.Now()
	out, err := s.generator.Generate(genCtx, model.GenerationRequest{Prompt: prompt, Options: opts})
	elapsed := time.Since(start)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(genCtx.Err(), context.DeadlineExceeded) {
			metrics.RecordGeneration(metrics.OutcomeTimeout, elapsed)
			s.log.Warn().Err(err).Str("user_id", ownerID).Dur("elapsed", elapsed).Msg("generation timed out")
			return nil, fmt.Errorf("provider: %v: %w", err, common.ErrGenerationTimeout)
		}
		metrics.RecordGeneration(metrics.OutcomeFailed, elapsed)
		s.log.Error().Err(err).Str("user_id", ownerID).Msg("generation failed")
		return nil, fmt.Errorf("provider: %v: %w", err, common.ErrGenerationFailed)
	}
	if out == nil || len(out.Data) == 0 {
		metrics.RecordGeneration(metrics.OutcomeFailed, elapsed)
		return nil, fmt.Errorf("provider returned an empty image: %w", common.ErrGenerationFailed)
	}

	format := out.ContentType
	if format == "" {
		format = "image/" + opts.Format
	}

	img := &model.Image{
		ID:          uuid.NewString(),
		OwnerID:     ownerID,
		Prompt:      prompt,
		Format:      format,
		AspectRatio: opts.AspectRatio,
		Quality:     opts.Quality,
		SizeBytes:   int64(len(out.Data)),
		ContentHash: ContentHash(out.Data),
	}

	// The payload goes in first so a record never points at nothing.
	if err := s.blobs.Put(ctx, BlobKey(img.ID), format, out.Data); err != nil {
		metrics.RecordGeneration(metrics.OutcomeStorage, elapsed)
		return nil, fmt.Errorf("store payload: %w", err)
	}
	if err := s.images.Create(ctx, img); err != nil {
		metrics.RecordGeneration(metrics.OutcomeStorage, elapsed)
		if delErr := s.blobs.Delete(context.WithoutCancel(ctx), BlobKey(img.ID)); delErr != nil {
			s.log.Error().Err(delErr).Str("image_id", img.ID).Msg("orphaned payload after failed insert")
		}
		return nil, fmt.Errorf("store image record: %w", err)
	}

	metrics.RecordGeneration(metrics.OutcomeSuccess, elapsed)
	s.log.Info().
		Str("image_id", img.ID).
		Str("user_id", ownerID).
		Str("format", format).
		Int64("size_bytes", img.SizeBytes).
		Dur("elapsed", elapsed).
		Msg("image generated")

	return &model.GenerationResult{ImageID: img.ID, Format: format, Data: out.Data}, nil
}
