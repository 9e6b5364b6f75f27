package domain

// Page is one slice of a filtered, counted listing.
type Page[T any] struct {
	Items    []T
	Total    int
	Page     int
	PageSize int
}

// LastPage returns the index of the final page (at least 1).
func (p Page[T]) LastPage() int {
	if p.PageSize <= 0 || p.Total <= 0 {
		return 1
	}
	return (p.Total + p.PageSize - 1) / p.PageSize
}
