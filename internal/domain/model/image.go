package model

import "time"

// Image is a generated artifact. Data is only populated on single-image reads;
// listings leave it nil.
type Image struct {
	ID          string    `json:"id"`
	OwnerID     string    `json:"userId"`
	Prompt      string    `json:"prompt"`
	Format      string    `json:"format"`
	AspectRatio string    `json:"aspectRatio"`
	Quality     int       `json:"quality"`
	SizeBytes   int64     `json:"sizeBytes"`
	ContentHash string    `json:"contentHash"`
	CreatedAt   time.Time `json:"createdAt"`
	Seq         int64     `json:"-"`
	Data        []byte    `json:"-"`

	OwnerEmail *string `json:"ownerEmail,omitempty"` // admin listings only
}

type SortOrder int

const (
	SortDesc SortOrder = -1
	SortAsc  SortOrder = 1
)

// Sortable image fields, keyed by their API name.
const (
	SortByCreatedAt   = "createdAt"
	SortByQuality     = "quality"
	SortByPrompt      = "prompt"
	SortByFormat      = "format"
	SortByAspectRatio = "aspectRatio"
)

func IsSortField(field string) bool {
	switch field {
	case SortByCreatedAt, SortByQuality, SortByPrompt, SortByFormat, SortByAspectRatio:
		return true
	}
	return false
}

// ListOptions drives both the owner-scoped and the admin listing. OwnerID is
// mandatory for the former and an optional filter for the latter.
type ListOptions struct {
	OwnerID   string
	Limit     int
	Skip      int
	SortBy    string
	SortOrder SortOrder
	FromDate  *time.Time
	ToDate    *time.Time
}

const (
	DefaultListLimit = 10
	MaxListLimit     = 100
)

// Normalize fills defaults and clamps the pagination window.
func (o ListOptions) Normalize() ListOptions {
	if o.Limit <= 0 {
		o.Limit = DefaultListLimit
	}
	if o.Limit > MaxListLimit {
		o.Limit = MaxListLimit
	}
	if o.Skip < 0 {
		o.Skip = 0
	}
	if !IsSortField(o.SortBy) {
		o.SortBy = SortByCreatedAt
	}
	if o.SortOrder != SortAsc {
		o.SortOrder = SortDesc
	}
	return o
}

type ImageStats struct {
	Count        int            `json:"count"`
	AvgQuality   *float64       `json:"avgQuality,omitempty"`
	Formats      map[string]int `json:"formats,omitempty"`
	FirstCreated *time.Time     `json:"firstCreated,omitempty"`
	LastCreated  *time.Time     `json:"lastCreated,omitempty"`
}

// FormatStat is one group of the per-format aggregate.
type FormatStat struct {
	Format       string
	Count        int
	QualitySum   int64
	FirstCreated time.Time
	LastCreated  time.Time
}

// CombineFormatStats folds per-format groups into the owner summary.
func CombineFormatStats(groups []FormatStat) *ImageStats {
	stats := &ImageStats{}
	if len(groups) == 0 {
		return stats
	}
	var qualitySum int64
	stats.Formats = make(map[string]int, len(groups))
	for i, g := range groups {
		stats.Count += g.Count
		qualitySum += g.QualitySum
		stats.Formats[g.Format] += g.Count
		first, last := g.FirstCreated, g.LastCreated
		if i == 0 || first.Before(*stats.FirstCreated) {
			stats.FirstCreated = &first
		}
		if i == 0 || last.After(*stats.LastCreated) {
			stats.LastCreated = &last
		}
	}
	if stats.Count == 0 {
		return &ImageStats{}
	}
	avg := float64(qualitySum) / float64(stats.Count)
	stats.AvgQuality = &avg
	return stats
}
