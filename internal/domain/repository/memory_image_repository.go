package repository

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"image_gen/internal/common"
	"image_gen/internal/domain/model"
)

// EmailResolver annotates admin listings with owner emails.
type EmailResolver interface {
	FindEmailsByIDs(ctx context.Context, ids []string) (map[string]string, error)
}

// MemoryImageRepository keeps image records in insertion order. created_at
// never goes backwards within one repository.
type MemoryImageRepository struct {
	mu     sync.RWMutex
	images []model.Image
	byID   map[string]int
	seq    int64
	last   time.Time
	now    func() time.Time
	emails EmailResolver
}

func NewMemoryImageRepository(emails EmailResolver) *MemoryImageRepository {
	return &MemoryImageRepository{
		byID:   make(map[string]int),
		now:    time.Now,
		emails: emails,
	}
}

func (r *MemoryImageRepository) Create(_ context.Context, img *model.Image) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.byID[img.ID]; exists {
		return fmt.Errorf("image %s already exists", img.ID)
	}
	created := r.now().UTC()
	if created.Before(r.last) {
		created = r.last
	}
	r.last = created
	r.seq++

	img.Seq = r.seq
	img.CreatedAt = created
	rec := *img
	rec.Data = nil
	rec.OwnerEmail = nil
	r.byID[img.ID] = len(r.images)
	r.images = append(r.images, rec)
	return nil
}

func (r *MemoryImageRepository) FindOwned(_ context.Context, id, ownerID string) (*model.Image, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	idx, ok := r.byID[id]
	if !ok || r.images[idx].OwnerID != ownerID {
		return nil, common.ErrNotFound
	}
	img := r.images[idx]
	return &img, nil
}

func (r *MemoryImageRepository) ListOwned(ctx context.Context, opts model.ListOptions) ([]model.Image, int, error) {
	if opts.OwnerID == "" {
		return nil, 0, fmt.Errorf("MemoryImageRepository.ListOwned: owner required: %w", common.ErrInvalidInput)
	}
	page, total := r.list(opts)
	return page, total, nil
}

func (r *MemoryImageRepository) ListAll(ctx context.Context, opts model.ListOptions) ([]model.Image, int, error) {
	page, total := r.list(opts)
	if len(page) == 0 {
		return page, total, nil
	}

	ids := make([]string, 0, len(page))
	for _, img := range page {
		ids = append(ids, img.OwnerID)
	}
	emails, err := r.emails.FindEmailsByIDs(ctx, ids)
	if err != nil {
		return nil, 0, fmt.Errorf("MemoryImageRepository.ListAll emails: %w", err)
	}
	for i := range page {
		email := emails[page[i].OwnerID]
		page[i].OwnerEmail = &email
	}
	return page, total, nil
}

func (r *MemoryImageRepository) FormatStats(_ context.Context, ownerID string) ([]model.FormatStat, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	byFormat := make(map[string]*model.FormatStat)
	for _, img := range r.images {
		if img.OwnerID != ownerID {
			continue
		}
		g, ok := byFormat[img.Format]
		if !ok {
			g = &model.FormatStat{Format: img.Format, FirstCreated: img.CreatedAt, LastCreated: img.CreatedAt}
			byFormat[img.Format] = g
		}
		g.Count++
		g.QualitySum += int64(img.Quality)
		if img.CreatedAt.Before(g.FirstCreated) {
			g.FirstCreated = img.CreatedAt
		}
		if img.CreatedAt.After(g.LastCreated) {
			g.LastCreated = img.CreatedAt
		}
	}

	groups := make([]model.FormatStat, 0, len(byFormat))
	for _, g := range byFormat {
		groups = append(groups, *g)
	}
	sort.Slice(groups, func(i, j int) bool { return groups[i].Format < groups[j].Format })
	return groups, nil
}

func (r *MemoryImageRepository) matching(opts model.ListOptions) []model.Image {
	var out []model.Image
	for _, img := range r.images {
		if opts.OwnerID != "" && img.OwnerID != opts.OwnerID {
			continue
		}
		if opts.FromDate != nil && img.CreatedAt.Before(*opts.FromDate) {
			continue
		}
		if opts.ToDate != nil && img.CreatedAt.After(*opts.ToDate) {
			continue
		}
		out = append(out, img)
	}
	return out
}

// list returns one page and the total match count from a single snapshot.
func (r *MemoryImageRepository) list(opts model.ListOptions) ([]model.Image, int) {
	opts = opts.Normalize()

	r.mu.RLock()
	items := r.matching(opts)
	r.mu.RUnlock()
	total := len(items)

	sort.SliceStable(items, func(i, j int) bool {
		c := compareField(items[i], items[j], opts.SortBy)
		if c == 0 {
			c = compareInt64(items[i].Seq, items[j].Seq)
		}
		if opts.SortOrder == model.SortAsc {
			return c < 0
		}
		return c > 0
	})

	if opts.Skip >= total {
		return []model.Image{}, total
	}
	end := opts.Skip + opts.Limit
	if end > total {
		end = total
	}
	page := make([]model.Image, end-opts.Skip)
	copy(page, items[opts.Skip:end])
	return page, total
}

func compareField(a, b model.Image, field string) int {
	switch field {
	case model.SortByQuality:
		return compareInt64(int64(a.Quality), int64(b.Quality))
	case model.SortByPrompt:
		return strings.Compare(a.Prompt, b.Prompt)
	case model.SortByFormat:
		return strings.Compare(a.Format, b.Format)
	case model.SortByAspectRatio:
		return strings.Compare(a.AspectRatio, b.AspectRatio)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func compareInt64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
