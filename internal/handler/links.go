package handler

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/abdusco/shortlink/internal"
	"github.com/abdusco/shortlink/internal/shortcode"
	"github.com/abdusco/shortlink/internal/shortener"
	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
	"github.com/samber/lo"
)

type LinkHandler struct {
	service *shortener.Service
	baseURL string
}

// NewLinkHandler serves the shortener over HTTP. Short URLs are built from
// baseURL, or from the request host when it is empty.
func NewLinkHandler(service *shortener.Service, baseURL string) *LinkHandler {
	return &LinkHandler{
		service: service,
		baseURL: strings.TrimSuffix(baseURL, "/"),
	}
}

type CreateLinkRequest struct {
	URL string `json:"url"`
}

type LinkResponse struct {
	ID            int64      `json:"id"`
	ShortCode     string     `json:"short_code"`
	ShortURL      string     `json:"short_url"`
	OriginalURL   string     `json:"original_url"`
	CreatedAt     time.Time  `json:"created_at"`
	ClickCount    int64      `json:"click_count"`
	LastClickedAt *time.Time `json:"last_clicked_at"`
}

type CreateLinkResponse struct {
	Link LinkResponse `json:"link"`
}

type ListLinksResponse struct {
	Links []LinkResponse `json:"links"`
}

func (h *LinkHandler) CreateLink(c echo.Context) error {
	ctx := c.Request().Context()

	var req CreateLinkRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request")
	}

	mapping, err := h.service.Shorten(ctx, req.URL)
	if err != nil {
		log.Error().Err(err).Str("url", req.URL).Msg("failed to create link")
		return toHTTPError(err)
	}

	return c.JSON(http.StatusCreated, CreateLinkResponse{Link: h.toResponse(c, mapping)})
}

func (h *LinkHandler) ListLinks(c echo.Context) error {
	ctx := c.Request().Context()

	mappings, err := h.service.ListAll(ctx)
	if err != nil {
		log.Error().Err(err).Msg("failed to list links")
		return toHTTPError(err)
	}

	links := lo.Map(mappings, func(m *internal.Mapping, _ int) LinkResponse {
		return h.toResponse(c, m)
	})

	return c.JSON(http.StatusOK, ListLinksResponse{Links: links})
}

// GetLink returns a mapping with its current click count. It does not count
// as a visit.
func (h *LinkHandler) GetLink(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("code")

	if !shortcode.Valid(code) {
		return toHTTPError(internal.ErrNotFound)
	}

	mapping, err := h.service.Get(ctx, code)
	if err != nil {
		return toHTTPError(err)
	}

	return c.JSON(http.StatusOK, CreateLinkResponse{Link: h.toResponse(c, mapping)})
}

func (h *LinkHandler) Redirect(c echo.Context) error {
	ctx := c.Request().Context()
	code := c.Param("code")

	log.Debug().Str("code", code).Msg("redirect request")

	if !shortcode.Valid(code) {
		return toHTTPError(internal.ErrNotFound)
	}

	url, err := h.service.Resolve(ctx, code)
	if err != nil {
		if errors.Is(err, internal.ErrNotFound) {
			log.Warn().Str("code", code).Msg("link not found")
		}
		return toHTTPError(err)
	}

	log.Info().Str("code", code).Msg("redirecting link")

	return c.Redirect(http.StatusFound, url)
}

func (h *LinkHandler) toResponse(c echo.Context, m *internal.Mapping) LinkResponse {
	return LinkResponse{
		ID:            m.ID,
		ShortCode:     m.ShortCode,
		ShortURL:      h.shortURL(c, m.ShortCode),
		OriginalURL:   m.OriginalURL,
		CreatedAt:     m.CreatedAt,
		ClickCount:    m.ClickCount,
		LastClickedAt: m.LastClickedAt,
	}
}

func (h *LinkHandler) shortURL(c echo.Context, code string) string {
	base := h.baseURL
	if base == "" {
		base = c.Scheme() + "://" + c.Request().Host
	}
	return base + "/" + code
}
