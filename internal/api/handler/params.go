package handler

import (
	"net/url"
	"strconv"
	"strings"
	"time"

	"image_gen/internal/common"
	"image_gen/internal/domain/model"
)

const dateOnly = "2006-01-02"

// parseListOptions reads the pagination, sort and date-range query parameters.
// Only malformed dates are rejected; everything else degrades to defaults.
func parseListOptions(q url.Values) (model.ListOptions, error) {
	opts := model.ListOptions{
		Limit:     model.DefaultListLimit,
		SortBy:    q.Get("sortBy"),
		SortOrder: model.SortDesc,
	}

	if n, err := strconv.Atoi(strings.TrimSpace(q.Get("limit"))); err == nil && n > 0 {
		opts.Limit = n
	}
	if n, err := strconv.Atoi(strings.TrimSpace(q.Get("skip"))); err == nil && n > 0 {
		opts.Skip = n
	}
	if strings.EqualFold(q.Get("sortOrder"), "asc") {
		opts.SortOrder = model.SortAsc
	}

	from, err := parseDate(q.Get("fromDate"), false)
	if err != nil {
		return opts, common.WithMessage(common.ErrInvalidInput, "Invalid fromDate")
	}
	to, err := parseDate(q.Get("toDate"), true)
	if err != nil {
		return opts, common.WithMessage(common.ErrInvalidInput, "Invalid toDate")
	}
	opts.FromDate, opts.ToDate = from, to

	return opts.Normalize(), nil
}

// parseDate accepts RFC 3339 or a bare date. A bare end date covers the whole day.
func parseDate(s string, endOfDay bool) (*time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return &t, nil
	}
	t, err := time.Parse(dateOnly, s)
	if err != nil {
		return nil, err
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}
