package middleware

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orchardops/orchard/internal/errdefs"
	"github.com/orchardops/orchard/internal/logging"
	"github.com/orchardops/orchard/internal/models"
)

func TestErrorHandlerMapsCodes(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"validation", errdefs.Validation("bad input"), http.StatusBadRequest, "VALIDATION"},
		{"not found", errdefs.NotFound("missing"), http.StatusNotFound, "NOT_FOUND"},
		{"conflict", errdefs.Conflict("busy"), http.StatusConflict, "CONFLICT"},
		{"timeout", errdefs.Timeout("too slow"), http.StatusGatewayTimeout, "TIMEOUT"},
		{"io", errdefs.IO("disk failure"), http.StatusInternalServerError, "IO"},
		{"internal", errdefs.Internal("crashed"), http.StatusInternalServerError, "INTERNAL"},
		{"unclassified", errors.New("plain error"), http.StatusInternalServerError, "INTERNAL"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := fiber.New(fiber.Config{
				ErrorHandler: ErrorHandler(logging.NewDevelopment()),
			})
			app.Get("/boom", func(c *fiber.Ctx) error {
				return tt.err
			})

			resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
			require.NoError(t, err)
			defer resp.Body.Close()

			assert.Equal(t, tt.wantStatus, resp.StatusCode)

			payload, err := io.ReadAll(resp.Body)
			require.NoError(t, err)

			var body models.ErrorResponse
			require.NoError(t, json.Unmarshal(payload, &body))
			assert.Equal(t, tt.wantCode, body.Error.Code)
			assert.NotEmpty(t, body.Error.Message)
		})
	}
}

func TestErrorHandlerHidesUnclassifiedMessage(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(logging.NewDevelopment()),
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errors.New("database password is hunter2")
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, "internal server error", body.Error.Message)
	assert.NotContains(t, string(payload), "hunter2")
}

func TestErrorHandlerPreservesDetails(t *testing.T) {
	app := fiber.New(fiber.Config{
		ErrorHandler: ErrorHandler(logging.NewDevelopment()),
	})
	app.Get("/boom", func(c *fiber.Ctx) error {
		return errdefs.Validation("duplicate port").WithDetails(map[string]interface{}{
			"port": 9200,
		})
	})

	resp, err := app.Test(httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.NoError(t, err)
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var body models.ErrorResponse
	require.NoError(t, json.Unmarshal(payload, &body))
	assert.Equal(t, float64(9200), body.Error.Details["port"])
}
