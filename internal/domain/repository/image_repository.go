package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"image_gen/internal/common"
	"image_gen/internal/domain/model"
)

type ImageRepository interface {
	// Create assigns Seq and CreatedAt.
	Create(ctx context.Context, img *model.Image) error
	// FindOwned returns common.ErrNotFound both for a missing id and for an
	// image owned by someone else.
	FindOwned(ctx context.Context, id, ownerID string) (*model.Image, error)
	// ListOwned requires opts.OwnerID.
	ListOwned(ctx context.Context, opts model.ListOptions) ([]model.Image, int, error)
	// ListAll is unscoped unless opts.OwnerID is set. Items carry OwnerEmail.
	ListAll(ctx context.Context, opts model.ListOptions) ([]model.Image, int, error)
	FormatStats(ctx context.Context, ownerID string) ([]model.FormatStat, error)
}

var sortColumns = map[string]string{
	model.SortByCreatedAt:   "i.created_at",
	model.SortByQuality:     "i.quality",
	model.SortByPrompt:      "i.prompt",
	model.SortByFormat:      "i.format",
	model.SortByAspectRatio: "i.aspect_ratio",
}

type pgImageRepository struct {
	db *sql.DB
}

func NewPgImageRepository(db *sql.DB) ImageRepository {
	return &pgImageRepository{db: db}
}

func (r *pgImageRepository) Create(ctx context.Context, img *model.Image) error {
	query := `INSERT INTO images (id, owner_id, prompt, format, aspect_ratio, quality, size_bytes, content_hash)
	          VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	          RETURNING seq, created_at`
	err := r.db.QueryRowContext(ctx, query,
		img.ID, img.OwnerID, img.Prompt, img.Format, img.AspectRatio, img.Quality, img.SizeBytes, img.ContentHash,
	).Scan(&img.Seq, &img.CreatedAt)
	if err != nil {
		return fmt.Errorf("pgImageRepository.Create: %w", err)
	}
	return nil
}

func (r *pgImageRepository) FindOwned(ctx context.Context, id, ownerID string) (*model.Image, error) {
	query := `SELECT i.id, i.owner_id, i.prompt, i.format, i.aspect_ratio, i.quality, i.size_bytes, i.content_hash, i.created_at, i.seq
	          FROM images i WHERE i.id = $1 AND i.owner_id = $2`
	img := &model.Image{}
	err := r.db.QueryRowContext(ctx, query, id, ownerID).Scan(
		&img.ID, &img.OwnerID, &img.Prompt, &img.Format, &img.AspectRatio, &img.Quality,
		&img.SizeBytes, &img.ContentHash, &img.CreatedAt, &img.Seq,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, common.ErrNotFound
		}
		return nil, fmt.Errorf("pgImageRepository.FindOwned: %w", err)
	}
	return img, nil
}

func (r *pgImageRepository) ListOwned(ctx context.Context, opts model.ListOptions) ([]model.Image, int, error) {
	if opts.OwnerID == "" {
		return nil, 0, fmt.Errorf("pgImageRepository.ListOwned: owner required: %w", common.ErrInvalidInput)
	}
	return r.list(ctx, "ListOwned", opts, false)
}

func (r *pgImageRepository) ListAll(ctx context.Context, opts model.ListOptions) ([]model.Image, int, error) {
	return r.list(ctx, "ListAll", opts, true)
}

func (r *pgImageRepository) list(ctx context.Context, op string, opts model.ListOptions, withEmail bool) ([]model.Image, int, error) {
	opts = opts.Normalize()

	var conditions []string
	var args []interface{}
	argID := 1

	if opts.OwnerID != "" {
		conditions = append(conditions, fmt.Sprintf("i.owner_id = $%d", argID))
		args = append(args, opts.OwnerID)
		argID++
	}
	if opts.FromDate != nil {
		conditions = append(conditions, fmt.Sprintf("i.created_at >= $%d", argID))
		args = append(args, *opts.FromDate)
		argID++
	}
	if opts.ToDate != nil {
		conditions = append(conditions, fmt.Sprintf("i.created_at <= $%d", argID))
		args = append(args, *opts.ToDate)
		argID++
	}
	whereClause := ""
	if len(conditions) > 0 {
		whereClause = " WHERE " + strings.Join(conditions, " AND ")
	}

	var total int
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM images i"+whereClause, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgImageRepository.%s count: %w", op, err)
	}

	var q strings.Builder
	q.WriteString(`SELECT i.id, i.owner_id, i.prompt, i.format, i.aspect_ratio, i.quality, i.size_bytes, i.content_hash, i.created_at, i.seq`)
	if withEmail {
		q.WriteString(`, u.email FROM images i JOIN users u ON u.id = i.owner_id`)
	} else {
		q.WriteString(` FROM images i`)
	}
	q.WriteString(whereClause)

	dir := "DESC"
	if opts.SortOrder == model.SortAsc {
		dir = "ASC"
	}
	// Column names come from the whitelist only.
	fmt.Fprintf(&q, " ORDER BY %s %s, i.seq %s LIMIT $%d OFFSET $%d", sortColumns[opts.SortBy], dir, dir, argID, argID+1)
	args = append(args, opts.Limit, opts.Skip)

	rows, err := r.db.QueryContext(ctx, q.String(), args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgImageRepository.%s query: %w", op, err)
	}
	defer rows.Close()

	images := []model.Image{}
	for rows.Next() {
		var img model.Image
		dest := []interface{}{
			&img.ID, &img.OwnerID, &img.Prompt, &img.Format, &img.AspectRatio, &img.Quality,
			&img.SizeBytes, &img.ContentHash, &img.CreatedAt, &img.Seq,
		}
		var email string
		if withEmail {
			dest = append(dest, &email)
		}
		if err := rows.Scan(dest...); err != nil {
			return nil, 0, fmt.Errorf("pgImageRepository.%s scan: %w", op, err)
		}
		if withEmail {
			img.OwnerEmail = &email
		}
		images = append(images, img)
	}
	if err = rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("pgImageRepository.%s rows.Err: %w", op, err)
	}
	return images, total, nil
}

func (r *pgImageRepository) FormatStats(ctx context.Context, ownerID string) ([]model.FormatStat, error) {
	query := `SELECT format, COUNT(*), COALESCE(SUM(quality), 0), MIN(created_at), MAX(created_at)
	          FROM images WHERE owner_id = $1
	          GROUP BY format ORDER BY format`
	rows, err := r.db.QueryContext(ctx, query, ownerID)
	if err != nil {
		return nil, fmt.Errorf("pgImageRepository.FormatStats query: %w", err)
	}
	defer rows.Close()

	var groups []model.FormatStat
	for rows.Next() {
		var g model.FormatStat
		if err := rows.Scan(&g.Format, &g.Count, &g.QualitySum, &g.FirstCreated, &g.LastCreated); err != nil {
			return nil, fmt.Errorf("pgImageRepository.FormatStats scan: %w", err)
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("pgImageRepository.FormatStats rows.Err: %w", err)
	}
	return groups, nil
}
