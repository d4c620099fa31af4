package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
)

// Params holds pagination parameters extracted from a request. Cursor is the
// opaque continuation token from a previous page's next_cursor; listings are
// cursor-based because the record store pages by key, not offset.
type Params struct {
	Limit  int32
	Cursor string
}

// FromContext extracts pagination parameters from the echo context.
func FromContext(c echo.Context) Params {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	if limit <= 0 {
		limit = DefaultLimit
	}
	if limit > MaxLimit {
		limit = MaxLimit
	}

	return Params{
		Limit:  int32(limit),
		Cursor: c.QueryParam("cursor"),
	}
}

// Response wraps a paginated API response. NextCursor is empty on the last
// page; a non-empty value with zero items is possible when the store filters
// a page down to nothing, and the client should keep paging.
type Response struct {
	Data       interface{} `json:"data"`
	Count      int         `json:"count"`
	Limit      int32       `json:"limit"`
	NextCursor string      `json:"next_cursor,omitempty"`
}

func NewResponse(data interface{}, count int, limit int32, nextCursor string) *Response {
	return &Response{
		Data:       data,
		Count:      count,
		Limit:      limit,
		NextCursor: nextCursor,
	}
}

// HasMore reports whether another page may exist.
func (r *Response) HasMore() bool {
	return r.NextCursor != ""
}
