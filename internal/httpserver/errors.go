package httpserver

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/Skotchmaster/foodpoint_auth/internal/transport"
	"github.com/Skotchmaster/foodpoint_auth/pkg/apperr"
	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
)

// HTTPErrorHandler renders every error as {"code", "message"}.
func HTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	code, message := classify(err)
	status := code.HTTPStatus()

	if status >= http.StatusInternalServerError {
		logging.FromContext(c.Request().Context()).Error("request_failed", "status", status, "error", err)
	}

	var werr error
	if c.Request().Method == http.MethodHead {
		werr = c.NoContent(status)
	} else {
		werr = c.JSON(status, transport.ErrorResponse{Code: string(code), Message: message})
	}
	if werr != nil {
		logging.FromContext(c.Request().Context()).Error("write_error_response_failed", "error", werr)
	}
}

func classify(err error) (apperr.Code, string) {
	if ae, ok := apperr.As(err); ok {
		if ae.Code == apperr.Internal {
			return apperr.Internal, "internal server error"
		}
		return ae.Code, ae.Message
	}

	var he *echo.HTTPError
	if errors.As(err, &he) {
		code := apperr.CodeFromStatus(he.Code)
		if code == apperr.Internal {
			return code, "internal server error"
		}
		if msg, ok := he.Message.(string); ok && msg != "" {
			return code, msg
		}
		if he.Message != nil {
			return code, fmt.Sprint(he.Message)
		}
		return code, http.StatusText(he.Code)
	}

	return apperr.Internal, "internal server error"
}
