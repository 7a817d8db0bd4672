package shared

import (
	"fmt"
	"math"
)

// Pagination contains metadata for zero-indexed paginated listings.
type Pagination struct {
	Page       int `json:"page"`
	PerPage    int `json:"perPage"`
	Total      int `json:"total"`
	TotalPages int `json:"pageCount"`
}

// NewPagination computes pagination metadata. A page index past the last
// page fails with ErrValidation; an empty result set accepts page 0.
func NewPagination(page, perPage, total int) (Pagination, error) {
	if perPage <= 0 {
		perPage = 100
	}
	if page < 0 {
		return Pagination{}, fmt.Errorf("page index %d: %w", page, ErrValidation)
	}
	totalPages := int(math.Ceil(float64(total) / float64(perPage)))
	if totalPages > 0 && page >= totalPages {
		return Pagination{}, fmt.Errorf("page index overflow (%d >= %d): %w", page, totalPages, ErrValidation)
	}
	return Pagination{Page: page, PerPage: perPage, Total: total, TotalPages: totalPages}, nil
}

// Offset returns the row offset for the current page.
func (p Pagination) Offset() int {
	return p.Page * p.PerPage
}
