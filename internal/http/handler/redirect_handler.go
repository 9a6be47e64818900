package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/linkpulse/linkpulse/internal/app/repository"
	"github.com/linkpulse/linkpulse/internal/app/service"
	infraprometheus "github.com/linkpulse/linkpulse/internal/infra/prometheus"
	"go.uber.org/zap"
)

// RedirectDeps groups dependencies required by redirect handlers.
type RedirectDeps struct {
	Logger *zap.Logger
	Links  service.LinkService
}

// RedirectHandler implements the redirect hot path.
type RedirectHandler struct {
	logger *zap.Logger
	links  service.LinkService
}

// NewRedirectHandler creates a redirect handler with the provided dependencies.
func NewRedirectHandler(deps RedirectDeps) *RedirectHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &RedirectHandler{
		logger: logger,
		links:  deps.Links,
	}
}

// Register wires redirect routes onto the provided router.
func (h *RedirectHandler) Register(router fiber.Router) {
	router.Get("/", h.Health)
	router.Get("/health", h.Health)
	router.Get("/:code", h.Resolve)
}

// Health is a simple root endpoint so we know the service is running.
func (h *RedirectHandler) Health(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"service": "LinkPulse",
		"status":  "ok",
		"time":    time.Now().UTC().Format(time.RFC3339),
	})
}

// Resolve handles GET /:code: count the click and issue the redirect. An
// expired link is reported gone and never redirected.
func (h *RedirectHandler) Resolve(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "missing link code",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	destination, err := h.links.Resolve(ctx, code, c.IP(), c.Get("User-Agent"))
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLinkNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "short link not found",
			})
		case errors.Is(err, service.ErrLinkExpired):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{
				"error": "link expired",
			})
		case errors.Is(err, service.ErrLinkGone):
			return c.Status(fiber.StatusGone).JSON(fiber.Map{
				"error": "link is no longer active",
			})
		default:
			h.logger.Error("failed to resolve link", zap.Error(err), zap.String("code", code))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "internal server error",
			})
		}
	}

	infraprometheus.Redirects.Inc()
	h.logger.Debug("redirecting short link", zap.String("code", code), zap.String("target", destination))
	return c.Redirect(destination, fiber.StatusFound)
}
