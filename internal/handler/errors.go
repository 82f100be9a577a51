package handler

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"identity-broker/internal/service"
)

// writeError maps a domain failure to its HTTP status. Anything
// unclassified is a 500 with a generic body; the real error goes to
// the log, never the caller.
func writeError(c echo.Context, err error) error {
	switch service.KindOf(err) {
	case service.KindUnauthorized:
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": err.Error()})
	case service.KindNotFound:
		return c.JSON(http.StatusNotFound, echo.Map{"error": err.Error()})
	case service.KindBadRequest:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	case service.KindConflict:
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	default:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}

// pagination reads skip/limit query parameters with defaults.
func pagination(c echo.Context) (int, int) {
	skip := intQuery(c, "skip", 0)
	limit := intQuery(c, "limit", 100)
	if skip < 0 {
		skip = 0
	}
	return skip, limit
}

func intQuery(c echo.Context, name string, fallback int) int {
	raw := c.QueryParam(name)
	if raw == "" {
		return fallback
	}
	var value int
	if err := echo.QueryParamsBinder(c).Int(name, &value).BindError(); err != nil {
		return fallback
	}
	return value
}
