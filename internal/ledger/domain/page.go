package domain

import "math"

// Paging selects one 1-based page of a result set.
type Paging struct {
	Page     int
	PageSize int
}

// Offset returns the number of rows to skip. It saturates at math.MaxInt
// for pages past any addressable row.
func (p Paging) Offset() int {
	if p.Page <= 1 || p.PageSize <= 0 {
		return 0
	}
	if p.Page-1 > math.MaxInt/p.PageSize {
		return math.MaxInt
	}
	return (p.Page - 1) * p.PageSize
}

// Page is one page of an ordered result set plus its navigation metadata.
type Page[T any] struct {
	Items           []T
	Page            int
	PageSize        int
	TotalCount      int
	TotalPages      int
	HasNextPage     bool
	HasPreviousPage bool
}

// NewPage builds the metadata for items taken at paging from a set of total rows.
func NewPage[T any](items []T, paging Paging, total int) *Page[T] {
	if items == nil {
		items = []T{}
	}
	totalPages := 0
	if paging.PageSize > 0 {
		totalPages = (total + paging.PageSize - 1) / paging.PageSize
	}
	return &Page[T]{
		Items:           items,
		Page:            paging.Page,
		PageSize:        paging.PageSize,
		TotalCount:      total,
		TotalPages:      totalPages,
		HasNextPage:     paging.Page < totalPages,
		HasPreviousPage: paging.Page > 1,
	}
}
