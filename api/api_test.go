package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skryldev/mobile-boilerplate-api/api"
	"github.com/Skryldev/mobile-boilerplate-api/db"
	"github.com/Skryldev/mobile-boilerplate-api/migrations"
	"github.com/Skryldev/mobile-boilerplate-api/models"
	"github.com/Skryldev/mobile-boilerplate-api/repo"
	_ "github.com/mattn/go-sqlite3"
)

// ─────────────────────────────────────────────────────────────────────────────
// Test fixture
// ─────────────────────────────────────────────────────────────────────────────

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context) error { return p.err }

func newTestDB(t *testing.T) *db.DB {
	t.Helper()
	d, err := db.Open(db.Config{DSN: ":memory:", DriverName: "sqlite3", MaxOpenConns: 1})
	require.NoError(t, err)
	t.Cleanup(func() { _ = d.Close() })

	schema, err := migrations.UpSQL("sqlite3")
	require.NoError(t, err)
	_, err = d.Exec(context.Background(), schema)
	require.NoError(t, err)
	return d
}

func newTestApp(t *testing.T) (*fiber.App, *db.DB) {
	t.Helper()
	d := newTestDB(t)
	h := api.NewHandler(repo.NewUserRepo(d), d, nil)
	return api.New(h, api.Options{}), d
}

func do(t *testing.T, app *fiber.App, method, path string, body any) (*http.Response, []byte) {
	t.Helper()
	var r io.Reader
	if body != nil {
		switch b := body.(type) {
		case string:
			r = strings.NewReader(b)
		default:
			raw, err := json.Marshal(b)
			require.NoError(t, err)
			r = strings.NewReader(string(raw))
		}
	}
	req := httptest.NewRequest(method, path, r)
	if body != nil {
		req.Header.Set(fiber.HeaderContentType, fiber.MIMEApplicationJSON)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	data, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	return resp, data
}

func decode[T any](t *testing.T, data []byte) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(data, &v), string(data))
	return v
}

// ─────────────────────────────────────────────────────────────────────────────
// Root and health
// ─────────────────────────────────────────────────────────────────────────────

func TestRoot(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := do(t, app, fiber.MethodGet, "/", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.Contains(t, resp.Header.Get(fiber.HeaderContentType), fiber.MIMEApplicationJSON)

	got := decode[api.RootResponse](t, body)
	assert.Equal(t, api.RootResponse{Message: "Mobile Boilerplate API", Version: "1.0.0", Status: "running"}, got)
}

func TestHealth_Connected(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := do(t, app, fiber.MethodGet, "/health", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"status":"healthy","database":"connected"}`, string(body))
}

func TestHealth_Disconnected(t *testing.T) {
	d := newTestDB(t)
	h := api.NewHandler(repo.NewUserRepo(d), fakePinger{err: errors.New("dial tcp: connection refused")}, nil)
	app := api.New(h, api.Options{})

	resp, body := do(t, app, fiber.MethodGet, "/health", nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.JSONEq(t, `{"status":"unhealthy","database":"disconnected","error":"dial tcp: connection refused"}`, string(body))
}

func TestHealth_ClosedPool(t *testing.T) {
	app, d := newTestApp(t)
	require.NoError(t, d.Close())

	resp, body := do(t, app, fiber.MethodGet, "/health", nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	got := decode[api.HealthResponse](t, body)
	assert.Equal(t, "unhealthy", got.Status)
	assert.NotEmpty(t, got.Error)
}

// ─────────────────────────────────────────────────────────────────────────────
// CRUD lifecycle
// ─────────────────────────────────────────────────────────────────────────────

func TestUsers_Lifecycle(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := do(t, app, fiber.MethodPost, "/users", map[string]string{"name": "A", "email": "a@x.com"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	created := decode[models.User](t, body)
	require.NotZero(t, created.ID)
	assert.Equal(t, "A", created.Name)
	assert.Equal(t, "a@x.com", created.Email)

	raw := decode[map[string]any](t, body)
	for _, key := range []string{"id", "name", "email", "created_at", "updated_at"} {
		assert.Contains(t, raw, key)
	}

	path := fmt.Sprintf("/users/%d", created.ID)

	resp, body = do(t, app, fiber.MethodGet, path, nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	fetched := decode[models.User](t, body)
	assert.Equal(t, created.Name, fetched.Name)
	assert.Equal(t, created.Email, fetched.Email)

	resp, body = do(t, app, fiber.MethodPut, path, map[string]string{"name": "B"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	updated := decode[models.User](t, body)
	assert.Equal(t, "B", updated.Name)
	assert.Equal(t, "a@x.com", updated.Email)
	assert.True(t, updated.UpdatedAt.After(created.UpdatedAt))

	resp, body = do(t, app, fiber.MethodDelete, path, nil)
	assert.Equal(t, fiber.StatusNoContent, resp.StatusCode)
	assert.Empty(t, body)

	resp, body = do(t, app, fiber.MethodGet, path, nil)
	assert.Equal(t, fiber.StatusNotFound, resp.StatusCode)
	assert.JSONEq(t, `{"error":"User not found"}`, string(body))
}

// ─────────────────────────────────────────────────────────────────────────────
// POST /users
// ─────────────────────────────────────────────────────────────────────────────

func TestCreateUser_Validation(t *testing.T) {
	app, d := newTestApp(t)

	cases := map[string]any{
		"empty object":  map[string]string{},
		"missing email": map[string]string{"name": "A"},
		"missing name":  map[string]string{"email": "a@x.com"},
		"empty strings": map[string]string{"name": "", "email": ""},
	}
	for name, payload := range cases {
		t.Run(name, func(t *testing.T) {
			resp, body := do(t, app, fiber.MethodPost, "/users", payload)
			assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
			assert.JSONEq(t, `{"error":"Name and email are required"}`, string(body))
		})
	}

	n, err := repo.NewUserRepo(d).Count(context.Background(), "")
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestCreateUser_EmptyBody(t *testing.T) {
	app, _ := newTestApp(t)

	resp, err := app.Test(httptest.NewRequest(fiber.MethodPost, "/users", nil))
	require.NoError(t, err)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
}

func TestCreateUser_MalformedJSON(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := do(t, app, fiber.MethodPost, "/users", `{"name":`)
	assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode)
	assert.JSONEq(t, `{"error":"invalid request body"}`, string(body))
}

func TestCreateUser_BodyContentType(t *testing.T) {
	app, _ := newTestApp(t)

	send := func(contentType, body string) (*http.Response, []byte) {
		req := httptest.NewRequest(fiber.MethodPost, "/users", strings.NewReader(body))
		if contentType != "" {
			req.Header.Set(fiber.HeaderContentType, contentType)
		}
		resp, err := app.Test(req)
		require.NoError(t, err)
		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		_ = resp.Body.Close()
		return resp, data
	}

	// bodies of other types are ignored, so the request lacks both fields
	for _, ct := range []string{"", fiber.MIMETextPlain} {
		resp, body := send(ct, `{"name":"A","email":"a@x.com"}`)
		assert.Equal(t, fiber.StatusBadRequest, resp.StatusCode, ct)
		assert.JSONEq(t, `{"error":"Name and email are required"}`, string(body), ct)
	}

	resp, body := send(fiber.MIMEApplicationForm, "name=Form+User&email=form%40x.com")
	require.Equal(t, fiber.StatusCreated, resp.StatusCode, string(body))
	got := decode[models.User](t, body)
	assert.Equal(t, "Form User", got.Name)
	assert.Equal(t, "form@x.com", got.Email)

	resp, _ = send(fiber.MIMEApplicationJSONCharsetUTF8, `{"name":"B","email":"b@x.com"}`)
	assert.Equal(t, fiber.StatusCreated, resp.StatusCode)
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	app, d := newTestApp(t)

	resp, _ := do(t, app, fiber.MethodPost, "/users", map[string]string{"name": "A", "email": "dup@x.com"})
	require.Equal(t, fiber.StatusCreated, resp.StatusCode)

	resp, body := do(t, app, fiber.MethodPost, "/users", map[string]string{"name": "B", "email": "dup@x.com"})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	got := decode[api.ErrorResponse](t, body)
	assert.Contains(t, got.Error, "duplicate key")

	n, err := repo.NewUserRepo(d).Count(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
}

// ─────────────────────────────────────────────────────────────────────────────
// GET /users
// ─────────────────────────────────────────────────────────────────────────────

func seedUsers(t *testing.T, d *db.DB, n int) {
	t.Helper()
	users := repo.NewUserRepo(d)
	for i := range n {
		_, err := users.Insert(context.Background(), models.CreateUserParams{
			Name:  fmt.Sprintf("User %02d", i),
			Email: fmt.Sprintf("user%02d@example.com", i),
		})
		require.NoError(t, err)
	}
}

func TestListUsers_Pagination(t *testing.T) {
	app, d := newTestApp(t)
	seedUsers(t, d, 15)

	resp, body := do(t, app, fiber.MethodGet, "/users?limit=10&page=2", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	got := decode[api.ListUsersResponse](t, body)
	assert.Len(t, got.Users, 5)
	assert.Equal(t, models.Pagination{Page: 2, Limit: 10, Total: 15, TotalPages: 2}, got.Pagination)
	assert.Equal(t, "user04@example.com", got.Users[0].Email)
}

func TestListUsers_Defaults(t *testing.T) {
	app, d := newTestApp(t)
	seedUsers(t, d, 12)

	for _, path := range []string{"/users", "/users?page=abc&limit=-5", "/users?page=0&limit=0"} {
		resp, body := do(t, app, fiber.MethodGet, path, nil)
		require.Equal(t, fiber.StatusOK, resp.StatusCode, path)

		got := decode[api.ListUsersResponse](t, body)
		assert.Len(t, got.Users, 10, path)
		assert.Equal(t, models.Pagination{Page: 1, Limit: 10, Total: 12, TotalPages: 2}, got.Pagination, path)
		assert.Equal(t, "user11@example.com", got.Users[0].Email, "newest first")
	}
}

func TestListUsers_HugeLimitAndPage(t *testing.T) {
	app, d := newTestApp(t)
	seedUsers(t, d, 12)

	resp, body := do(t, app, fiber.MethodGet, "/users?limit=100000000000000", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	got := decode[api.ListUsersResponse](t, body)
	assert.Len(t, got.Users, 12)
	assert.Equal(t, models.Pagination{Page: 1, Limit: 100000000000000, Total: 12, TotalPages: 1}, got.Pagination)

	resp, body = do(t, app, fiber.MethodGet, "/users?limit=9223372036854775807&page=2", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	got = decode[api.ListUsersResponse](t, body)
	assert.Empty(t, got.Users)
	assert.Equal(t, int64(1), got.Pagination.TotalPages)

	// (page-1)*limit overflows int; the page must be empty, not page 1.
	resp, body = do(t, app, fiber.MethodGet, "/users?limit=10&page=4611686018427387904", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))
	got = decode[api.ListUsersResponse](t, body)
	assert.NotNil(t, got.Users)
	assert.Empty(t, got.Users)
	assert.Equal(t, 4611686018427387904, got.Pagination.Page)
	assert.Equal(t, int64(12), got.Pagination.Total)
}

func TestListUsers_Search(t *testing.T) {
	app, d := newTestApp(t)
	users := repo.NewUserRepo(d)
	ctx := context.Background()
	_, err := users.Insert(ctx, models.CreateUserParams{Name: "John Doe", Email: "john@example.com"})
	require.NoError(t, err)
	_, err = users.Insert(ctx, models.CreateUserParams{Name: "Jane Smith", Email: "jane@example.com"})
	require.NoError(t, err)

	resp, body := do(t, app, fiber.MethodGet, "/users?search=JANE", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)

	got := decode[api.ListUsersResponse](t, body)
	require.Len(t, got.Users, 1)
	assert.Equal(t, "jane@example.com", got.Users[0].Email)
	assert.Equal(t, int64(1), got.Pagination.Total)
}

func TestListUsers_EmptyIsArray(t *testing.T) {
	app, _ := newTestApp(t)

	resp, body := do(t, app, fiber.MethodGet, "/users", nil)
	require.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.JSONEq(t, `{"users":[],"pagination":{"page":1,"limit":10,"total":0,"totalPages":0}}`, string(body))
}

func TestListUsers_StoreFailure(t *testing.T) {
	app, d := newTestApp(t)
	require.NoError(t, d.Close())

	resp, body := do(t, app, fiber.MethodGet, "/users", nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
	assert.NotEmpty(t, decode[api.ErrorResponse](t, body).Error)
}

// ─────────────────────────────────────────────────────────────────────────────
// GET / PUT / DELETE /users/:id
// ─────────────────────────────────────────────────────────────────────────────

func TestUserByID_NotFound(t *testing.T) {
	app, _ := newTestApp(t)

	for _, tc := range []struct{ method, path string }{
		{fiber.MethodGet, "/users/999"},
		{fiber.MethodGet, "/users/abc"},
		{fiber.MethodGet, "/users/-1"},
		{fiber.MethodPut, "/users/999"},
		{fiber.MethodDelete, "/users/999"},
	} {
		var payload any
		if tc.method == fiber.MethodPut {
			payload = map[string]string{"name": "ghost"}
		}
		resp, body := do(t, app, tc.method, tc.path, payload)
		assert.Equal(t, fiber.StatusNotFound, resp.StatusCode, tc.method+" "+tc.path)
		assert.JSONEq(t, `{"error":"User not found"}`, string(body))
	}
}

func TestUpdateUser_EmptyFieldsKeepValues(t *testing.T) {
	app, d := newTestApp(t)
	u, err := repo.NewUserRepo(d).Insert(context.Background(), models.CreateUserParams{Name: "Keep", Email: "keep@x.com"})
	require.NoError(t, err)

	resp, body := do(t, app, fiber.MethodPut, fmt.Sprintf("/users/%d", u.ID), map[string]string{"name": "", "email": "new@x.com"})
	require.Equal(t, fiber.StatusOK, resp.StatusCode, string(body))

	got := decode[models.User](t, body)
	assert.Equal(t, "Keep", got.Name)
	assert.Equal(t, "new@x.com", got.Email)
}

func TestUpdateUser_DuplicateEmail(t *testing.T) {
	app, d := newTestApp(t)
	users := repo.NewUserRepo(d)
	ctx := context.Background()
	_, err := users.Insert(ctx, models.CreateUserParams{Name: "One", Email: "one@x.com"})
	require.NoError(t, err)
	two, err := users.Insert(ctx, models.CreateUserParams{Name: "Two", Email: "two@x.com"})
	require.NoError(t, err)

	resp, _ := do(t, app, fiber.MethodPut, fmt.Sprintf("/users/%d", two.ID), map[string]string{"email": "one@x.com"})
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

// ─────────────────────────────────────────────────────────────────────────────
// Middleware
// ─────────────────────────────────────────────────────────────────────────────

func TestCORS(t *testing.T) {
	d := newTestDB(t)
	app := api.New(api.NewHandler(repo.NewUserRepo(d), d, nil), api.Options{
		CORSOrigins: []string{"http://localhost:19006"},
	})

	req := httptest.NewRequest(fiber.MethodGet, "/", nil)
	req.Header.Set(fiber.HeaderOrigin, "http://localhost:19006")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, "http://localhost:19006", resp.Header.Get(fiber.HeaderAccessControlAllowOrigin))
}

type panickingRepo struct{ repo.UserRepository }

func (panickingRepo) GetByID(context.Context, int64) (*models.User, error) { panic("boom") }

func TestRecover(t *testing.T) {
	app := api.New(api.NewHandler(panickingRepo{}, fakePinger{}, nil), api.Options{})

	resp, _ := do(t, app, fiber.MethodGet, "/users/1", nil)
	assert.Equal(t, fiber.StatusInternalServerError, resp.StatusCode)
}

func TestExtraMiddlewareRuns(t *testing.T) {
	d := newTestDB(t)
	called := false
	app := api.New(api.NewHandler(repo.NewUserRepo(d), d, nil), api.Options{
		Middleware: []fiber.Handler{func(c fiber.Ctx) error {
			called = true
			return c.Next()
		}},
	})

	resp, _ := do(t, app, fiber.MethodGet, "/", nil)
	assert.Equal(t, fiber.StatusOK, resp.StatusCode)
	assert.True(t, called)
}
