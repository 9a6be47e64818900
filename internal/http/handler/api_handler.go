package handler

import (
	"context"
	"errors"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/linkpulse/linkpulse/internal/app/model"
	"github.com/linkpulse/linkpulse/internal/app/repository"
	"github.com/linkpulse/linkpulse/internal/app/service"
	"go.uber.org/zap"
)

// APIDeps groups dependencies required by API handlers.
type APIDeps struct {
	Logger      *zap.Logger
	LinkService service.LinkService
	BaseURL     string
}

// APIHandler implements the management API endpoints.
type APIHandler struct {
	logger      *zap.Logger
	linkService service.LinkService
	baseURL     string
}

// NewAPIHandler creates an API handler with the provided dependencies.
func NewAPIHandler(deps APIDeps) *APIHandler {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	return &APIHandler{
		logger:      logger,
		linkService: deps.LinkService,
		baseURL:     deps.BaseURL,
	}
}

// Register wires API routes onto the provided router.
func (h *APIHandler) Register(router fiber.Router) {
	api := router.Group("/api")
	{
		links := api.Group("/links")
		{
			links.Post("/", h.CreateLink)
			links.Get("/:code/forecast", h.GetForecast)
		}
	}
}

// CreateLinkRequest represents the request body for shortening a URL.
type CreateLinkRequest struct {
	URL         string     `json:"url" validate:"required,url"`
	CustomAlias string     `json:"custom_alias,omitempty"`
	OwnerID     *uint      `json:"owner_id,omitempty"`
	ExpiresAt   *time.Time `json:"expires_at,omitempty"`
}

// CreateLinkResponse represents the response for a shortened URL.
type CreateLinkResponse struct {
	Code      string     `json:"code"`
	ShortURL  string     `json:"short_url"`
	URL       string     `json:"url"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// CreateLink handles POST /api/links
func (h *APIHandler) CreateLink(c *fiber.Ctx) error {
	var req CreateLinkRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "invalid request body",
		})
	}

	if req.URL == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "url is required",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	link, err := h.linkService.Shorten(ctx, service.ShortenInput{
		DestinationURL: req.URL,
		CustomAlias:    req.CustomAlias,
		OwnerID:        req.OwnerID,
		ExpiresAt:      req.ExpiresAt,
	})
	if err != nil {
		switch {
		case errors.Is(err, service.ErrInvalidURL):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "url must be absolute",
			})
		case errors.Is(err, service.ErrInvalidExpiry):
			return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
				"error": "expires_at must be in the future",
			})
		case errors.Is(err, service.ErrAliasConflict):
			return c.Status(fiber.StatusConflict).JSON(fiber.Map{
				"error": "custom alias is already in use",
			})
		case errors.Is(err, service.ErrAllocationExhausted):
			return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
				"error": "could not allocate a short code, try again",
			})
		default:
			h.logger.Error("failed to create link", zap.Error(err))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to create link",
			})
		}
	}

	return c.Status(fiber.StatusCreated).JSON(CreateLinkResponse{
		Code:      link.ShortCode,
		ShortURL:  h.baseURL + "/" + link.ShortCode,
		URL:       link.DestinationURL,
		ExpiresAt: link.ExpiresAt,
		CreatedAt: link.CreatedAt,
	})
}

// ForecastPointResponse is one predicted hour in a forecast response.
type ForecastPointResponse struct {
	PredictedAt     time.Time `json:"predicted_at"`
	PredictedClicks int64     `json:"predicted_clicks"`
}

// ForecastResponse represents the latest stored forecast for a link.
type ForecastResponse struct {
	Code         string                  `json:"code"`
	GeneratedAt  time.Time               `json:"generated_at"`
	HorizonHours int                     `json:"horizon_hours"`
	Points       []ForecastPointResponse `json:"points"`
}

// GetForecast handles GET /api/links/:code/forecast
func (h *APIHandler) GetForecast(c *fiber.Ctx) error {
	code := c.Params("code")
	if code == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "code is required",
		})
	}

	ctx := c.UserContext()
	if ctx == nil {
		ctx = context.Background()
	}

	forecast, err := h.linkService.LatestForecast(ctx, code)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrLinkNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "short link not found",
			})
		case errors.Is(err, repository.ErrForecastNotFound):
			return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
				"error": "no forecast available yet",
			})
		default:
			h.logger.Error("failed to load forecast", zap.Error(err), zap.String("code", code))
			return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
				"error": "failed to load forecast",
			})
		}
	}

	return c.JSON(toForecastResponse(code, forecast))
}

func toForecastResponse(code string, forecast *model.Forecast) ForecastResponse {
	points := make([]ForecastPointResponse, len(forecast.Points))
	for i, p := range forecast.Points {
		points[i] = ForecastPointResponse{
			PredictedAt:     p.PredictedAt,
			PredictedClicks: p.PredictedClicks,
		}
	}
	return ForecastResponse{
		Code:         code,
		GeneratedAt:  forecast.GeneratedAt,
		HorizonHours: forecast.HorizonHours,
		Points:       points,
	}
}
