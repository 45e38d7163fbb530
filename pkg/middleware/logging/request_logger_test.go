package loggingmw

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skotchmaster/foodpoint_auth/pkg/logging"
)

func TestRequestLogger(t *testing.T) {
	t.Parallel()

	var buf bytes.Buffer
	e := echo.New()
	e.Use(middleware.RequestID(), RequestLogger(logging.NewWithWriter(&buf, "debug")))

	e.GET("/ok", func(c echo.Context) error {
		logging.FromContext(c.Request().Context()).Info("inside_handler")
		return c.String(http.StatusOK, "ok")
	})
	e.GET("/missing", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusNotFound, "user not found")
	})

	tests := []struct {
		path   string
		status int
		level  string
	}{
		{path: "/ok", status: http.StatusOK, level: "INFO"},
		{path: "/missing", status: http.StatusNotFound, level: "WARN"},
	}

	for _, tt := range tests {
		buf.Reset()
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, tt.path, nil))
		require.Equal(t, tt.status, rec.Code)

		lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
		var last map[string]any
		require.NoError(t, json.Unmarshal([]byte(lines[len(lines)-1]), &last))

		assert.Equal(t, "request_completed", last["msg"], tt.path)
		assert.Equal(t, tt.level, last["level"], tt.path)
		assert.EqualValues(t, tt.status, last["status"], tt.path)
		assert.Equal(t, tt.path, last["path"], tt.path)
		assert.Equal(t, rec.Header().Get(echo.HeaderXRequestID), last["request_id"], tt.path)
	}
}
