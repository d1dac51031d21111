package http

import (
	"net/http"
	"reserva/pkg/config"
	apperrors "reserva/pkg/errors"
	"strconv"
	"time"
)

func ExtractLimitOffset(r *http.Request) (int, int64, error) {
	query := r.URL.Query()

	limit := 0
	if s := query.Get("limit"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid limit parameter: " + s)
		}
		limit = v
	}

	var offset int64 = 0
	if s := query.Get("offset"); s != "" {
		v, err := strconv.Atoi(s)
		if err != nil {
			return 0, 0, apperrors.InvalidInput("invalid offset parameter: " + s)
		}
		offset = int64(v)
	}

	limit = config.NormalizePaginationLimit(limit)
	offset = config.NormalizeOffset(offset)

	return limit, offset, nil
}

// ExtractTimeRange parses optional RFC3339 "from"/"to" query parameters.
func ExtractTimeRange(r *http.Request) (from, to *time.Time, err error) {
	query := r.URL.Query()

	if s := query.Get("from"); s != "" {
		parsed, parseErr := time.Parse(time.RFC3339, s)
		if parseErr != nil {
			return nil, nil, apperrors.InvalidInput("invalid from parameter, must be RFC3339: " + s)
		}
		from = &parsed
	}
	if s := query.Get("to"); s != "" {
		parsed, parseErr := time.Parse(time.RFC3339, s)
		if parseErr != nil {
			return nil, nil, apperrors.InvalidInput("invalid to parameter, must be RFC3339: " + s)
		}
		to = &parsed
	}
	if from != nil && to != nil && !to.After(*from) {
		return nil, nil, apperrors.InvalidInput("to must be after from")
	}
	return from, to, nil
}
