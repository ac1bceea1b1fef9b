package handler

import (
	"errors"
	"net/http"

	"github.com/abdusco/shortlink/internal"
	"github.com/labstack/echo/v4"
)

func toHTTPError(err error) *echo.HTTPError {
	var storeErr *internal.StoreError

	switch {
	case errors.Is(err, internal.ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, "url is required").SetInternal(err)
	case errors.Is(err, internal.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "link not found").SetInternal(err)
	case errors.Is(err, internal.ErrCodeSpaceExhausted):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "no short code available, try again later").SetInternal(err)
	case errors.As(err, &storeErr):
		return echo.NewHTTPError(http.StatusInternalServerError, "storage unavailable").SetInternal(err)
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal server error").SetInternal(err)
	}
}
