package pagination

import (
	"net/http"
	"strconv"
)

const (
	// MaxPerPage caps client supplied page sizes.
	MaxPerPage = 100
	// MaxPage caps client supplied page numbers so the offset cannot overflow.
	MaxPage = 1_000_000
)

// Params holds a 1-based page, its size and the derived row offset.
type Params struct {
	Page    int `json:"page"`
	PerPage int `json:"per_page"`
	Offset  int `json:"-"`
}

// New normalizes page and perPage: page is clamped into [1, MaxPage] and
// perPage into [1, MaxPerPage]. Offset is (page-1)*perPage.
func New(page, perPage int) Params {
	if page < 1 {
		page = 1
	}
	if page > MaxPage {
		page = MaxPage
	}
	if perPage < 1 {
		perPage = 1
	}
	if perPage > MaxPerPage {
		perPage = MaxPerPage
	}
	return Params{Page: page, PerPage: perPage, Offset: (page - 1) * perPage}
}

// FromRequest reads ?page= and ?per_page=, falling back to page 1 and
// defaultPerPage for missing or malformed values.
func FromRequest(r *http.Request, defaultPerPage int) Params {
	page, perPage := 1, defaultPerPage

	q := r.URL.Query()
	if v, err := strconv.Atoi(q.Get("page")); err == nil {
		page = v
	}
	if v, err := strconv.Atoi(q.Get("per_page")); err == nil && v > 0 {
		perPage = v
	}
	return New(page, perPage)
}

// TotalPages returns ceil(total/perPage).
func TotalPages(total, perPage int) int {
	if perPage <= 0 || total <= 0 {
		return 0
	}
	return (total + perPage - 1) / perPage
}

// EstimateTotal guesses a total for backends that do not report one: the
// rows before this page plus the rows received, plus one when the page came
// back full so that a next page is offered.
func EstimateTotal(p Params, received int) int {
	total := p.Offset + received
	if received >= p.PerPage {
		total++
	}
	return total
}

// Result wraps one page of items.
type Result[T any] struct {
	Data       []T  `json:"data"`
	TotalCount int  `json:"total_count"`
	Estimated  bool `json:"total_estimated"`
	Page       int  `json:"page"`
	PerPage    int  `json:"per_page"`
	TotalPages int  `json:"total_pages"`
	HasNext    bool `json:"has_next"`
	HasPrev    bool `json:"has_prev"`
}

// NewResult builds a Result. A nil data slice is rendered as [].
func NewResult[T any](data []T, totalCount int, params Params) Result[T] {
	if data == nil {
		data = []T{}
	}
	totalPages := TotalPages(totalCount, params.PerPage)
	return Result[T]{
		Data:       data,
		TotalCount: totalCount,
		Page:       params.Page,
		PerPage:    params.PerPage,
		TotalPages: totalPages,
		HasNext:    params.Page < totalPages,
		HasPrev:    params.Page > 1,
	}
}
