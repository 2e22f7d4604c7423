package api

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	"drealestate/internal/domain"
	"drealestate/internal/market"
)

func errorBody(msg string) map[string]string {
	return map[string]string{"error": msg}
}

// statusOf maps the domain error taxonomy to an HTTP status.
func statusOf(err error) int {
	var (
		verr   *domain.ValidationError
		revert *domain.RevertError
		txErr  *domain.TxError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &revert), errors.Is(err, market.ErrInFlight):
		return http.StatusConflict
	case errors.Is(err, domain.ErrNotOwner), errors.Is(err, domain.ErrBuyOwn):
		return http.StatusForbidden
	case errors.Is(err, domain.ErrNoAccount):
		return http.StatusUnauthorized
	case errors.Is(err, domain.ErrNoProvider), errors.Is(err, domain.ErrContractNotDeployed):
		return http.StatusServiceUnavailable
	case errors.As(err, &txErr):
		return http.StatusBadGateway
	default:
		return http.StatusInternalServerError
	}
}

func fail(c echo.Context, err error) error {
	status := statusOf(err)
	if status >= http.StatusInternalServerError {
		slog.Error("Request failed", slog.String("path", c.Path()), slog.Int("status", status), slog.Any("err", err))
	}
	return c.JSON(status, errorBody(err.Error()))
}
