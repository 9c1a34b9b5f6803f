package shared

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// Filter carries the paging and ordering of a list query. Domain filters
// embed it and add their own criteria.
type Filter struct {
	Page     int
	PageSize int
	OrderDir string
}

// DefaultFilter is the first page of 50, oldest first.
func DefaultFilter() Filter {
	return Filter{Page: 1, PageSize: defaultPageSize, OrderDir: "asc"}
}

func (f Filter) page() int {
	return max(f.Page, 1)
}

// Limit clamps PageSize to 1..500; zero or negative means the default.
func (f Filter) Limit() int {
	if f.PageSize <= 0 {
		return defaultPageSize
	}
	return min(f.PageSize, maxPageSize)
}

func (f Filter) Offset() int {
	return (f.page() - 1) * f.Limit()
}

// Paginated is one page of a list result with the total across all pages.
type Paginated[T any] struct {
	Items      []T   `json:"items"`
	Total      int64 `json:"total"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

func NewPaginated[T any](items []T, total int64, filter Filter) Paginated[T] {
	size := filter.Limit()
	return Paginated[T]{
		Items:      items,
		Total:      total,
		Page:       filter.page(),
		PageSize:   size,
		TotalPages: int((total + int64(size) - 1) / int64(size)),
	}
}
