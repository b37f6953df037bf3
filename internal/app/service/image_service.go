package service

import (
	"context"
	"errors"
	"fmt"

	"image_gen/internal/common"
	"image_gen/internal/domain/model"
	"image_gen/internal/domain/repository"
	"image_gen/internal/platform/blob"

	"github.com/google/uuid"
)

type ImageService struct {
	images repository.ImageRepository
	blobs  blob.Store
}

func NewImageService(images repository.ImageRepository, blobs blob.Store) *ImageService {
	return &ImageService{images: images, blobs: blobs}
}

type Pagination struct {
	Total   int  `json:"total"`
	Limit   int  `json:"limit"`
	Skip    int  `json:"skip"`
	HasMore bool `json:"hasMore"`
}

type ImageList struct {
	Images     []model.Image `json:"images"`
	Pagination Pagination    `json:"pagination"`
}

// Get returns the image with its payload. Foreign and missing ids look the same.
func (s *ImageService) Get(ctx context.Context, id, ownerID string) (*model.Image, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, common.WithMessage(common.ErrInvalidInput, "Invalid image ID")
	}

	img, err := s.images.FindOwned(ctx, id, ownerID)
	if err != nil {
		if errors.Is(err, common.ErrNotFound) {
			return nil, common.WithMessage(common.ErrNotFound, "Image not found")
		}
		return nil, fmt.Errorf("find image: %w", err)
	}

	obj, err := s.blobs.Get(ctx, BlobKey(img.ID))
	if err != nil {
		// A record without a payload is a storage fault, not a missing image.
		return nil, fmt.Errorf("load payload for %s: %w", img.ID, err)
	}
	img.Data = obj.Data
	return img, nil
}

func (s *ImageService) List(ctx context.Context, ownerID string, opts model.ListOptions) (*ImageList, error) {
	opts.OwnerID = ownerID
	opts = opts.Normalize()
	items, total, err := s.images.ListOwned(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list images: %w", err)
	}
	return newImageList(items, total, opts), nil
}

// ListAll is the cross-tenant listing. Access control happens in the router.
func (s *ImageService) ListAll(ctx context.Context, opts model.ListOptions) (*ImageList, error) {
	if opts.OwnerID != "" {
		if _, err := uuid.Parse(opts.OwnerID); err != nil {
			return nil, common.WithMessage(common.ErrInvalidInput, "Invalid user ID")
		}
	}
	opts = opts.Normalize()
	items, total, err := s.images.ListAll(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("list all images: %w", err)
	}
	return newImageList(items, total, opts), nil
}

func (s *ImageService) Stats(ctx context.Context, ownerID string) (*model.ImageStats, error) {
	groups, err := s.images.FormatStats(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("image stats: %w", err)
	}
	return model.CombineFormatStats(groups), nil
}

func newImageList(items []model.Image, total int, opts model.ListOptions) *ImageList {
	if items == nil {
		items = []model.Image{}
	}
	return &ImageList{
		Images: items,
		Pagination: Pagination{
			Total:   total,
			Limit:   opts.Limit,
			Skip:    opts.Skip,
			HasMore: opts.Skip < total && total-opts.Skip > opts.Limit,
		},
	}
}
