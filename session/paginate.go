package session

import "strings"

// PagedView is the derived, read-only slice of a collection for display.
// It is recomputed on every render, never mutated.
type PagedView struct {
	Items      []Item
	Page       int
	TotalPages int
	Filtered   int
}

// TotalPages returns the page count for n filtered items. Never zero: an
// empty result still renders one (empty) page.
func TotalPages(n, pageSize int) int {
	if pageSize <= 0 || n <= 0 {
		return 1
	}
	return (n + pageSize - 1) / pageSize
}

// ClampPage clamps page into [0, totalPages-1]. Callers clamp before
// invoking Paginate; the engine itself stays pure.
func ClampPage(page, totalPages int) int {
	if page < 0 {
		return 0
	}
	if page > totalPages-1 {
		return totalPages - 1
	}
	return page
}

// Filter returns the items whose filter fields contain query,
// case-insensitively. An empty query matches everything. Order is
// preserved; the input slice is never modified.
func Filter(items []Item, query string) []Item {
	query = strings.TrimSpace(query)
	if query == "" {
		return items
	}
	q := strings.ToLower(query)
	out := make([]Item, 0, len(items))
	for _, it := range items {
		for _, f := range it.FilterFields() {
			if strings.Contains(strings.ToLower(f), q) {
				out = append(out, it)
				break
			}
		}
	}
	return out
}

// Paginate applies the filter and slices out one page. Pure: identical
// inputs give identical output, and no session state is consulted. The page
// index must already be clamped.
func Paginate(items []Item, query string, page, pageSize int) PagedView {
	filtered := Filter(items, query)
	total := TotalPages(len(filtered), pageSize)

	start := page * pageSize
	end := start + pageSize
	if start > len(filtered) {
		start = len(filtered)
	}
	if end > len(filtered) {
		end = len(filtered)
	}

	return PagedView{
		Items:      filtered[start:end],
		Page:       page,
		TotalPages: total,
		Filtered:   len(filtered),
	}
}

// pagedView recomputes the current view for a session.
func pagedView(s *Session) PagedView {
	filtered := Filter(s.Items, s.Filter)
	total := TotalPages(len(filtered), s.PageSize)
	page := ClampPage(s.Page, total)
	return Paginate(s.Items, s.Filter, page, s.PageSize)
}
