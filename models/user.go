package models

import (
	"math"
	"time"
)

// User represents a row in the "users" table.
// Fields map 1-to-1 with columns; the JSON names are the wire contract.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CreateUserParams holds the fields required to create a new user.
type CreateUserParams struct {
	Name  string `json:"name" yaml:"name"`
	Email string `json:"email" yaml:"email"`
}

// UpdateUserParams holds fields that can be updated. Nil pointers leave the
// column unchanged; updated_at is always refreshed.
type UpdateUserParams struct {
	ID    int64
	Name  *string
	Email *string
}

const (
	DefaultPage  = 1
	DefaultLimit = 10
)

// ListUsersParams selects one page of users, newest first. A non-empty Search
// matches name or email as a case-insensitive substring.
type ListUsersParams struct {
	Search string
	Page   int
	Limit  int
}

// Normalize replaces a page or limit below 1 with its default.
func (p ListUsersParams) Normalize() ListUsersParams {
	if p.Page < 1 {
		p.Page = DefaultPage
	}
	if p.Limit < 1 {
		p.Limit = DefaultLimit
	}
	return p
}

// Offset is the number of rows skipped before the page starts. It saturates
// at math.MaxInt64 rather than overflowing, which selects an empty page.
func (p ListUsersParams) Offset() int64 {
	p = p.Normalize()
	pages, limit := int64(p.Page-1), int64(p.Limit)
	if pages > math.MaxInt64/limit {
		return math.MaxInt64
	}
	return pages * limit
}

// Pagination describes the page returned by a list call.
type Pagination struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int64 `json:"totalPages"`
}

// NewPagination computes TotalPages as ceil(total/limit).
func NewPagination(p ListUsersParams, total int64) Pagination {
	p = p.Normalize()
	limit := int64(p.Limit)
	pages := total / limit
	if total%limit != 0 {
		pages++
	}
	return Pagination{
		Page:       p.Page,
		Limit:      p.Limit,
		Total:      total,
		TotalPages: pages,
	}
}
