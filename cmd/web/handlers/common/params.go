package common

import (
	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

// RequireUUIDParam extracts a UUID route parameter or returns a 400 error.
func RequireUUIDParam(c echo.Context, param string) (uuid.UUID, error) {
	u, err := uuid.Parse(c.Param(param))
	if err != nil {
		return uuid.Nil, ErrBadRequest("invalid " + param)
	}
	return u, nil
}
