package api

import (
	"context"
	"log/slog"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v3"

	"github.com/Skryldev/mobile-boilerplate-api/db"
	"github.com/Skryldev/mobile-boilerplate-api/models"
	"github.com/Skryldev/mobile-boilerplate-api/repo"
)

// Reported by GET /.
const (
	ServiceName    = "Mobile Boilerplate API"
	ServiceVersion = "1.0.0"
)

const (
	msgNameEmailRequired = "Name and email are required"
	msgUserNotFound      = "User not found"
	msgInvalidBody       = "invalid request body"
)

// Pinger reports whether the database is reachable. *db.DB satisfies it.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Handler serves the users API. It holds no per-request state.
type Handler struct {
	users    repo.UserRepository
	pinger   Pinger
	validate *validator.Validate
	logger   *slog.Logger
}

// NewHandler returns a Handler backed by users; pinger drives /health.
func NewHandler(users repo.UserRepository, pinger Pinger, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		users:    users,
		pinger:   pinger,
		validate: validator.New(validator.WithRequiredStructEnabled()),
		logger:   logger,
	}
}

// Register mounts every route on r.
func (h *Handler) Register(r fiber.Router) {
	r.Get("/", h.Root)
	r.Get("/health", h.Health)

	users := r.Group("/users")
	users.Get("/", h.ListUsers)
	users.Post("/", h.CreateUser)
	users.Get("/:id", h.GetUser)
	users.Put("/:id", h.UpdateUser)
	users.Delete("/:id", h.DeleteUser)
}

// Root answers GET / with the service banner.
func (h *Handler) Root(c fiber.Ctx) error {
	return c.Status(fiber.StatusOK).JSON(RootResponse{
		Message: ServiceName,
		Version: ServiceVersion,
		Status:  "running",
	})
}

// Health answers GET /health; a failed ping is a 500 with the cause.
func (h *Handler) Health(c fiber.Ctx) error {
	if err := h.pinger.Ping(c.Context()); err != nil {
		h.logger.WarnContext(c.Context(), "api: health check failed", "error", err)
		return c.Status(fiber.StatusInternalServerError).JSON(HealthResponse{
			Status:   "unhealthy",
			Database: "disconnected",
			Error:    err.Error(),
		})
	}
	return c.Status(fiber.StatusOK).JSON(HealthResponse{
		Status:   "healthy",
		Database: "connected",
	})
}

// ListUsers answers GET /users with one page and its pagination.
func (h *Handler) ListUsers(c fiber.Ctx) error {
	params := models.ListUsersParams{
		Search: c.Query("search"),
		Page:   fiber.Query[int](c, "page", models.DefaultPage),
		Limit:  fiber.Query[int](c, "limit", models.DefaultLimit),
	}.Normalize()

	users, total, err := h.users.List(c.Context(), params)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusOK).JSON(ListUsersResponse{
		Users:      users,
		Pagination: models.NewPagination(params, total),
	})
}

// CreateUser answers POST /users with the stored user and 201.
func (h *Handler) CreateUser(c fiber.Ctx) error {
	var req CreateUserRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}
	if err := h.validate.Struct(req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, msgNameEmailRequired)
	}

	user, err := h.users.Insert(c.Context(), models.CreateUserParams{Name: req.Name, Email: req.Email})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(user)
}

// GetUser answers GET /users/:id.
func (h *Handler) GetUser(c fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	user, err := h.users.GetByID(c.Context(), id)
	if err != nil {
		return notFoundOr(err)
	}
	return c.Status(fiber.StatusOK).JSON(user)
}

// UpdateUser answers PUT /users/:id. Empty fields keep the stored value.
func (h *Handler) UpdateUser(c fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	var req UpdateUserRequest
	if err := h.bind(c, &req); err != nil {
		return err
	}

	user, err := h.users.Update(c.Context(), req.params(id))
	if err != nil {
		return notFoundOr(err)
	}
	return c.Status(fiber.StatusOK).JSON(user)
}

// DeleteUser answers DELETE /users/:id with 204, or 404 when nothing was removed.
func (h *Handler) DeleteUser(c fiber.Ctx) error {
	id, err := userID(c)
	if err != nil {
		return err
	}
	deleted, err := h.users.Delete(c.Context(), id)
	if err != nil {
		return err
	}
	if !deleted {
		return fiber.NewError(fiber.StatusNotFound, msgUserNotFound)
	}
	return c.SendStatus(fiber.StatusNoContent)
}

// bind decodes a JSON or form body. An empty body, or one with any other
// content type, leaves dst at its zero value.
func (h *Handler) bind(c fiber.Ctx, dst any) error {
	if len(c.Body()) == 0 || !bindable(c.Get(fiber.HeaderContentType)) {
		return nil
	}
	if err := c.Bind().Body(dst); err != nil {
		h.logger.DebugContext(c.Context(), "api: bind body", "error", err)
		return fiber.NewError(fiber.StatusBadRequest, msgInvalidBody)
	}
	return nil
}

func bindable(contentType string) bool {
	ct := strings.ToLower(contentType)
	return strings.HasPrefix(ct, fiber.MIMEApplicationJSON) || strings.HasPrefix(ct, fiber.MIMEApplicationForm)
}

// userID parses :id. Ids that cannot exist are reported as not found.
func userID(c fiber.Ctx) (int64, error) {
	id := fiber.Params[int64](c, "id")
	if id <= 0 {
		return 0, fiber.NewError(fiber.StatusNotFound, msgUserNotFound)
	}
	return id, nil
}

func notFoundOr(err error) error {
	if db.IsNotFound(err) {
		return fiber.NewError(fiber.StatusNotFound, msgUserNotFound)
	}
	return err
}
