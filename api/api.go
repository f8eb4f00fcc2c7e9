// Package api exposes the users store over HTTP/JSON with fiber.
package api

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
	recoverer "github.com/gofiber/fiber/v3/middleware/recover"
)

// Options configures the fiber application around a Handler.
type Options struct {
	// CORSOrigins defaults to "*".
	CORSOrigins []string
	// AccessLog enables the fiber request logger.
	AccessLog bool
	// Middleware runs after recovery and CORS, before the routes.
	Middleware []fiber.Handler
	Logger     *slog.Logger
}

// New returns a fiber application serving h.
func New(h *Handler, opts Options) *fiber.App {
	log := opts.Logger
	if log == nil {
		log = slog.Default()
	}
	origins := opts.CORSOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}

	app := fiber.New(fiber.Config{
		AppName:      "mobile-boilerplate-api",
		ErrorHandler: NewErrorHandler(log),
	})

	app.Use(recoverer.New())
	if opts.AccessLog {
		app.Use(logger.New(logger.Config{
			Format:     "${time} | ${status} | ${latency} | ${method} ${path} | ${error}\n",
			TimeFormat: "2006/01/02 15:04:05",
			TimeZone:   "UTC",
		}))
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins: origins,
		AllowMethods: []string{fiber.MethodGet, fiber.MethodPost, fiber.MethodPut, fiber.MethodDelete, fiber.MethodOptions},
		AllowHeaders: []string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept},
	}))
	for _, m := range opts.Middleware {
		app.Use(m)
	}

	h.Register(app)
	return app
}

// NewErrorHandler renders every error as {"error": message}. *fiber.Error
// keeps its status; anything else is a 500 carrying the raw message.
func NewErrorHandler(log *slog.Logger) fiber.ErrorHandler {
	return func(c fiber.Ctx, err error) error {
		// * case of `*fiber.Error`
		var fiberError *fiber.Error
		if errors.As(err, &fiberError) {
			return c.Status(fiberError.Code).JSON(ErrorResponse{Error: fiberError.Message})
		}

		// * store and unknown failures
		log.ErrorContext(c.Context(), "api: request failed",
			"method", c.Method(),
			"path", c.Path(),
			"error", err,
		)
		return c.Status(fiber.StatusInternalServerError).JSON(ErrorResponse{Error: err.Error()})
	}
}
