package usecase

import (
	"strings"

	"github.com/arklim/accounts-iam/internal/core/domain"
	"github.com/arklim/accounts-iam/internal/core/port"
)

const (
	DefaultPageSize = 10
	MaxPageSize     = 100
)

// ListQuery captures list parameters as received from callers.
type ListQuery struct {
	Search    string
	Module    string
	Sort      string
	Direction string
	Page      int
	PageSize  int
}

var (
	userSortColumns = map[string]struct{}{
		"name": {}, "email": {}, "username": {}, "created_at": {}, "updated_at": {},
	}
	guardedSortColumns = map[string]struct{}{
		"name": {}, "module": {}, "guard_name": {}, "created_at": {}, "updated_at": {},
	}
)

// resolve validates sort options and converts page numbers into limit/offset.
func (q ListQuery) resolve(sortable map[string]struct{}) (port.ListFilter, int, int, error) {
	page := q.Page
	if page < 1 {
		page = 1
	}
	size := q.PageSize
	if size <= 0 {
		size = DefaultPageSize
	}
	if size > MaxPageSize {
		size = MaxPageSize
	}

	filter := port.ListFilter{
		Search: strings.TrimSpace(q.Search),
		Module: strings.TrimSpace(q.Module),
		Limit:  size,
		Offset: (page - 1) * size,
	}

	sortField := strings.ToLower(strings.TrimSpace(q.Sort))
	direction := strings.ToLower(strings.TrimSpace(q.Direction))
	if sortField != "" {
		if _, ok := sortable[sortField]; !ok {
			return port.ListFilter{}, 0, 0, invalidInput("cannot sort by %q", q.Sort)
		}
		filter.SortField = sortField
	}

	switch direction {
	case "", "asc":
	case "desc":
		filter.SortDesc = true
	default:
		return port.ListFilter{}, 0, 0, invalidInput("sort direction must be asc or desc")
	}
	if sortField == "" && direction != "" {
		// a direction without a column applies to the default created_at ordering
		filter.SortField = "created_at"
	}

	return filter, page, size, nil
}

func newPage[T any](items []T, total, page, size int) domain.Page[T] {
	if items == nil {
		items = []T{}
	}
	return domain.Page[T]{Items: items, Total: total, Page: page, PageSize: size}
}
