package model

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

const (
	DefaultAspectRatio = "1:1"
	DefaultFormat      = "webp"
	DefaultQuality     = 80
	MaxQuality         = 100
)

// GenerationOptions are the caller-tunable knobs of one generation. The zero
// value is valid; Resolve fills the defaults.
type GenerationOptions struct {
	AspectRatio string
	Format      string
	Quality     int
}

// UnmarshalJSON accepts both camelCase and snake_case aspect ratio keys and a
// quality given as a number or a numeric string. Anything it does not
// recognise is ignored; a quality it cannot read becomes the default.
func (o *GenerationOptions) UnmarshalJSON(data []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		// null, arrays and scalars carry no options.
		*o = GenerationOptions{}
		return nil
	}

	*o = GenerationOptions{
		AspectRatio: rawString(raw["aspectRatio"]),
		Format:      rawString(raw["format"]),
		Quality:     rawQuality(raw["quality"]),
	}
	if o.AspectRatio == "" {
		o.AspectRatio = rawString(raw["aspect_ratio"])
	}
	return nil
}

// Resolve returns a copy with defaults applied and quality clamped to 1..100.
func (o GenerationOptions) Resolve() GenerationOptions {
	o.AspectRatio = strings.TrimSpace(o.AspectRatio)
	if o.AspectRatio == "" {
		o.AspectRatio = DefaultAspectRatio
	}
	o.Format = strings.ToLower(strings.TrimSpace(o.Format))
	if o.Format == "" {
		o.Format = DefaultFormat
	}
	switch {
	case o.Quality <= 0:
		o.Quality = DefaultQuality
	case o.Quality > MaxQuality:
		o.Quality = MaxQuality
	}
	return o
}

func rawString(msg json.RawMessage) string {
	if len(msg) == 0 {
		return ""
	}
	var s string
	if err := json.Unmarshal(msg, &s); err != nil {
		return ""
	}
	return s
}

func rawQuality(msg json.RawMessage) int {
	if len(msg) == 0 {
		return 0
	}
	var f float64
	if err := json.Unmarshal(msg, &f); err != nil {
		var s string
		if err := json.Unmarshal(msg, &s); err != nil {
			return 0
		}
		f, err = strconv.ParseFloat(strings.TrimSpace(s), 64)
		if err != nil {
			return 0
		}
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	if f > math.MaxInt32 {
		return MaxQuality + 1
	}
	return int(math.Round(f))
}

// GenerationRequest is what the gateway sends to the provider.
type GenerationRequest struct {
	Prompt  string
	Options GenerationOptions
}

// GeneratedImage is the provider's answer, fully read into memory.
type GeneratedImage struct {
	Data        []byte
	ContentType string
}

// GenerationResult is returned to the HTTP layer after the image is stored.
type GenerationResult struct {
	ImageID string
	Format  string
	Data    []byte
}
