package api

import "github.com/Skryldev/mobile-boilerplate-api/models"

// CreateUserRequest is the body of POST /users.
type CreateUserRequest struct {
	Name  string `json:"name" form:"name" validate:"required"`
	Email string `json:"email" form:"email" validate:"required"`
}

// UpdateUserRequest is the body of PUT /users/:id. Empty fields keep the
// stored value.
type UpdateUserRequest struct {
	Name  string `json:"name" form:"name"`
	Email string `json:"email" form:"email"`
}

func (r UpdateUserRequest) params(id int64) models.UpdateUserParams {
	p := models.UpdateUserParams{ID: id}
	if r.Name != "" {
		p.Name = &r.Name
	}
	if r.Email != "" {
		p.Email = &r.Email
	}
	return p
}

// ListUsersResponse is the body of GET /users.
type ListUsersResponse struct {
	Users      []*models.User    `json:"users"`
	Pagination models.Pagination `json:"pagination"`
}

// RootResponse is the body of GET /.
type RootResponse struct {
	Message string `json:"message"`
	Version string `json:"version"`
	Status  string `json:"status"`
}

// HealthResponse is the body of GET /health.
type HealthResponse struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Error string `json:"error"`
}
