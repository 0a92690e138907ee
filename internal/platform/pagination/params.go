package pagination

import (
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/vastra-market/api/internal/domain"
)

const (
	// DefaultPageSize is used when the client omits pageSize.
	DefaultPageSize = 20
	// MaxPageSize caps pageSize to prevent unbounded queries.
	MaxPageSize = 100
)

var (
	// ErrInvalidPageSize indicates pageSize is not a positive integer.
	ErrInvalidPageSize = errors.New("pagination: invalid page size")
	// ErrInvalidPageToken indicates the page token could not be decoded.
	ErrInvalidPageToken = errors.New("pagination: invalid page token")
)

// Parse reads pageSize and pageToken from the query string. Oversized pages are clamped to
// MaxPageSize; the token is validated but left encoded.
func Parse(values url.Values) (domain.Pagination, error) {
	page := domain.Pagination{PageSize: DefaultPageSize}

	if raw := strings.TrimSpace(values.Get("pageSize")); raw != "" {
		size, err := strconv.Atoi(raw)
		if err != nil || size <= 0 {
			return domain.Pagination{}, fmt.Errorf("%w: %q", ErrInvalidPageSize, raw)
		}
		page.PageSize = min(size, MaxPageSize)
	}

	page.PageToken = strings.TrimSpace(values.Get("pageToken"))
	if page.PageToken != "" {
		if _, err := DecodeToken(page.PageToken); err != nil {
			return domain.Pagination{}, err
		}
	}
	return page, nil
}

// Limit normalises a page size supplied by a service caller.
func Limit(size int) int {
	switch {
	case size <= 0:
		return DefaultPageSize
	case size > MaxPageSize:
		return MaxPageSize
	}
	return size
}
