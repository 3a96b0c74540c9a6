// Package paging normalises page/limit query parameters and describes the
// resulting window.
package paging

const (
	// DefaultLimit is used when the caller does not ask for a page size.
	DefaultLimit = 10
	// MaxLimit bounds the page size a caller may request.
	MaxLimit = 100
)

// Request is a 1-based page request.
type Request struct {
	Page  int
	Limit int
}

// Normalize clamps the request into a valid window.
func (r Request) Normalize() Request {
	if r.Page < 1 {
		r.Page = 1
	}
	if r.Limit < 1 {
		r.Limit = DefaultLimit
	}
	if r.Limit > MaxLimit {
		r.Limit = MaxLimit
	}
	return r
}

// Offset returns the number of rows to skip.
func (r Request) Offset() int {
	n := r.Normalize()
	return (n.Page - 1) * n.Limit
}

// Info describes a returned page.
type Info struct {
	Page  int `json:"page"`
	Limit int `json:"limit"`
	Total int `json:"total"`
	Pages int `json:"pages"`
}

// NewInfo builds the page description for total matching rows.
func NewInfo(r Request, total int) Info {
	n := r.Normalize()
	return Info{
		Page:  n.Page,
		Limit: n.Limit,
		Total: total,
		Pages: (total + n.Limit - 1) / n.Limit,
	}
}
