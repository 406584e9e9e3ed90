// Package paginate computes visible slices of a collection and keeps the
// current page within bounds.
package paginate

import (
	"fmt"
	"slices"
)

// PageSizeOptions are the page sizes an operator may pick.
var PageSizeOptions = []int{5, 10, 25, 50, 100}

// DefaultPageSize is used when no page size is configured.
const DefaultPageSize = 10

// Window is the visible slice [StartIndex, EndIndex) of a collection.
type Window struct {
	StartIndex int `json:"startIndex"`
	EndIndex   int `json:"endIndex"`
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	TotalPages int `json:"totalPages"`
	Total      int `json:"total"`
}

// HasNext reports whether a later page exists.
func (w Window) HasNext() bool { return w.Page < w.TotalPages }

// HasPrevious reports whether an earlier page exists.
func (w Window) HasPrevious() bool { return w.Page > 1 }

// TotalPages returns ceil(total/pageSize). It is 0 for an empty collection.
func TotalPages(total, pageSize int) int {
	if pageSize < 1 {
		pageSize = 1
	}
	if total <= 0 {
		return 0
	}
	pages := total / pageSize
	if total%pageSize != 0 {
		pages++
	}
	return pages
}

// Clamp returns page bounded to [1, max(1, totalPages)].
func Clamp(total, pageSize, page int) int {
	last := max(1, TotalPages(total, pageSize))
	return min(max(1, page), last)
}

// Paginate computes the window for the requested page. Out-of-range pages,
// including negative ones, are clamped.
func Paginate(total, pageSize, page int) Window {
	if pageSize < 1 {
		pageSize = 1
	}
	if total < 0 {
		total = 0
	}
	p := Clamp(total, pageSize, page)
	start := (p - 1) * pageSize
	end := total
	if total-start > pageSize {
		end = start + pageSize
	}
	if start > end {
		start = end
	}
	return Window{
		StartIndex: start,
		EndIndex:   end,
		Page:       p,
		PageSize:   pageSize,
		TotalPages: TotalPages(total, pageSize),
		Total:      total,
	}
}

// Slice returns the part of items inside w.
func Slice[T any](items []T, w Window) []T {
	if w.StartIndex >= len(items) {
		return items[:0:0]
	}
	return items[w.StartIndex:min(w.EndIndex, len(items))]
}

// State is the pagination state of one table.
type State struct {
	page     int
	pageSize int
}

// NewState returns a State on page 1. A page size outside
// PageSizeOptions falls back to DefaultPageSize.
func NewState(pageSize int) *State {
	if !slices.Contains(PageSizeOptions, pageSize) {
		pageSize = DefaultPageSize
	}
	return &State{page: 1, pageSize: pageSize}
}

// Page returns the stored current page.
func (s *State) Page() int { return s.page }

// PageSize returns the current page size.
func (s *State) PageSize() int { return s.pageSize }

// Window clamps the stored page against total and returns the window.
func (s *State) Window(total int) Window {
	s.page = Clamp(total, s.pageSize, s.page)
	return Paginate(total, s.pageSize, s.page)
}

// Next moves one page forward. It is a no-op on the last page.
func (s *State) Next(total int) Window {
	w := s.Window(total)
	if w.HasNext() {
		s.page++
	}
	return s.Window(total)
}

// Previous moves one page back. It is a no-op on the first page.
func (s *State) Previous(total int) Window {
	w := s.Window(total)
	if w.HasPrevious() {
		s.page--
	}
	return s.Window(total)
}

// GoTo jumps to page, clamped to the valid range.
func (s *State) GoTo(page, total int) Window {
	s.page = Clamp(total, s.pageSize, page)
	return s.Window(total)
}

// SetPageSize changes the page size and always returns to page 1.
func (s *State) SetPageSize(size int) error {
	if !slices.Contains(PageSizeOptions, size) {
		return fmt.Errorf("paginate: page size %d not in %v", size, PageSizeOptions)
	}
	s.pageSize = size
	s.page = 1
	return nil
}

// Reset returns to page 1, used when the filtered collection changes.
func (s *State) Reset() {
	s.page = 1
}
