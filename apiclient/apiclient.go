// Package apiclient is the Go client used by mobile tooling to talk to the
// users API. Any non-2xx response is returned as a *StatusError.
package apiclient

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v3/client"

	"github.com/Skryldev/mobile-boilerplate-api/models"
)

// DefaultBaseURL matches the server's default listen port.
const DefaultBaseURL = "http://localhost:3000"

// StatusError reports a response outside the 2xx range.
type StatusError struct {
	StatusCode int
	// Message is the "error" field of the body, when present.
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("apiclient: HTTP status %d: %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("apiclient: HTTP status %d", e.StatusCode)
}

// Health is the body of GET /health.
type Health struct {
	Status   string `json:"status"`
	Database string `json:"database"`
	Error    string `json:"error,omitempty"`
}

// Client calls the users API.
type Client struct {
	http *client.Client
}

// Option customises a Client.
type Option func(*client.Client)

// WithTimeout bounds every request.
func WithTimeout(d time.Duration) Option {
	return func(c *client.Client) { c.SetTimeout(d) }
}

// WithUserAgent sets the User-Agent header.
func WithUserAgent(ua string) Option {
	return func(c *client.Client) { c.SetUserAgent(ua) }
}

// New returns a Client for baseURL ("http://host:port").
func New(baseURL string, opts ...Option) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	hc := client.New().
		SetBaseURL(baseURL).
		SetTimeout(10 * time.Second).
		AddHeader("Accept", "application/json")
	for _, opt := range opts {
		opt(hc)
	}
	return &Client{http: hc}
}

// CheckHealth calls GET /health. An unhealthy server answers 500, which is
// returned as a *StatusError.
func (c *Client) CheckHealth(ctx context.Context) (*Health, error) {
	var h Health
	if err := c.do(ctx, "GET", "/health", client.Config{}, &h); err != nil {
		return nil, err
	}
	return &h, nil
}

// ListUsers calls GET /users and returns the users of the requested page.
// A response without a users field yields an empty slice.
func (c *Client) ListUsers(ctx context.Context, params models.ListUsersParams) ([]models.User, error) {
	query := map[string]string{}
	if params.Search != "" {
		query["search"] = params.Search
	}
	if params.Page > 0 {
		query["page"] = strconv.Itoa(params.Page)
	}
	if params.Limit > 0 {
		query["limit"] = strconv.Itoa(params.Limit)
	}

	var body struct {
		Users []models.User `json:"users"`
	}
	if err := c.do(ctx, "GET", "/users", client.Config{Param: query}, &body); err != nil {
		return nil, err
	}
	if body.Users == nil {
		return []models.User{}, nil
	}
	return body.Users, nil
}

// CreateUser calls POST /users.
func (c *Client) CreateUser(ctx context.Context, name, email string) (*models.User, error) {
	var u models.User
	cfg := client.Config{Body: models.CreateUserParams{Name: name, Email: email}}
	if err := c.do(ctx, "POST", "/users", cfg, &u); err != nil {
		return nil, err
	}
	return &u, nil
}

func (c *Client) do(ctx context.Context, method, path string, cfg client.Config, out any) error {
	cfg.Ctx = ctx

	var (
		resp *client.Response
		err  error
	)
	switch method {
	case "GET":
		resp, err = c.http.Get(path, cfg)
	case "POST":
		resp, err = c.http.Post(path, cfg)
	default:
		return fmt.Errorf("apiclient: unsupported method %s", method)
	}
	if err != nil {
		return fmt.Errorf("apiclient: %s %s: %w", method, path, err)
	}
	defer resp.Close()

	status := resp.StatusCode()
	if status < 200 || status > 299 {
		se := &StatusError{StatusCode: status}
		var body struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(resp.Body(), &body) == nil {
			se.Message = body.Error
		}
		return se
	}
	if out == nil {
		return nil
	}
	if err := resp.JSON(out); err != nil {
		return fmt.Errorf("apiclient: decode %s %s: %w", method, path, err)
	}
	return nil
}
