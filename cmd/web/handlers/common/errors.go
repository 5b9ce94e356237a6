package common

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"
	"thirdcoast.systems/relay/internal/extract"
	"thirdcoast.systems/relay/internal/faults"
	"thirdcoast.systems/relay/internal/queue"
	"thirdcoast.systems/relay/internal/store"
)

// Error is the JSON body of every failed API response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func newError(status int, code, msg string) *echo.HTTPError {
	return echo.NewHTTPError(status, Error{Code: code, Message: msg})
}

// ErrBadRequest returns a 400 Bad Request error.
func ErrBadRequest(msg string) *echo.HTTPError {
	return newError(http.StatusBadRequest, "BAD_REQUEST", msg)
}

// ErrNotFound returns a 404 Not Found error.
func ErrNotFound(msg string) *echo.HTTPError {
	return newError(http.StatusNotFound, "NOT_FOUND", msg)
}

// ErrConflict returns a 409 Conflict error.
func ErrConflict(msg string) *echo.HTTPError {
	return newError(http.StatusConflict, "CONFLICT", msg)
}

// ErrInternal returns a 500 Internal Server Error.
func ErrInternal(msg string) *echo.HTTPError {
	return newError(http.StatusInternalServerError, string(faults.Internal), msg)
}

// StatusOf maps a taxonomy code to the HTTP status it is reported with.
func StatusOf(code faults.Code) int {
	switch code {
	case faults.UnsupportedSource:
		return http.StatusBadRequest
	case faults.QuotaExceeded:
		return http.StatusTooManyRequests
	case faults.ExtractionTimeout:
		return http.StatusGatewayTimeout
	case faults.NetworkError, faults.StorageWriteFailed:
		return http.StatusBadGateway
	case faults.DuplicateIdentity:
		return http.StatusConflict
	case faults.UnsplittableFormat, faults.TranscodeFailed:
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// FromError converts a service error into an API error.
func FromError(err error) *echo.HTTPError {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		return he
	case errors.Is(err, store.ErrNotFound):
		return ErrNotFound("not found")
	case errors.Is(err, store.ErrConflict):
		return ErrConflict("the current state does not allow this action")
	case errors.Is(err, extract.ErrInvalidProfile),
		errors.Is(err, queue.ErrOwnerRequired),
		errors.Is(err, queue.ErrUnknownAction),
		errors.Is(err, store.ErrInvalidTier):
		return ErrBadRequest(err.Error())
	}
	code := faults.CodeOf(err)
	if code == faults.Internal {
		return ErrInternal("internal error")
	}
	return newError(StatusOf(code), string(code), faults.Message(err))
}

// HTTPErrorHandler writes every handler error as an Error body. Errors that
// do not map to a known condition are logged and reported as INTERNAL.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	he := FromError(err)
	body, ok := he.Message.(Error)
	if !ok {
		// echo's own errors (404 route, 405, bind failures) carry strings
		body = Error{Code: codeForStatus(he.Code), Message: http.StatusText(he.Code)}
		if msg, isString := he.Message.(string); isString {
			body.Message = msg
		}
	}
	if he.Code >= http.StatusInternalServerError {
		slog.Error("request failed", "method", c.Request().Method, "uri", c.Request().RequestURI, "error", err)
	}

	if c.Request().Method == http.MethodHead {
		err = c.NoContent(he.Code)
	} else {
		err = c.JSON(he.Code, body)
	}
	if err != nil {
		slog.Warn("failed to write error response", "error", err)
	}
}

func codeForStatus(status int) string {
	switch status {
	case http.StatusBadRequest:
		return "BAD_REQUEST"
	case http.StatusNotFound:
		return "NOT_FOUND"
	case http.StatusMethodNotAllowed:
		return "METHOD_NOT_ALLOWED"
	case http.StatusConflict:
		return "CONFLICT"
	case http.StatusRequestEntityTooLarge:
		return "TOO_LARGE"
	default:
		if status >= http.StatusInternalServerError {
			return string(faults.Internal)
		}
		return "ERROR"
	}
}

// ErrRangeNotSatisfiable returns a 416 error for a range past the end.
func ErrRangeNotSatisfiable(spec string) *echo.HTTPError {
	return newError(http.StatusRequestedRangeNotSatisfiable, "RANGE_NOT_SATISFIABLE", "range "+spec+" is not satisfiable")
}
