package middleware

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/ikkim/cart-sync/pkg/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupLoggingTest(t *testing.T) (*gin.Engine, *bytes.Buffer) {
	gin.SetMode(gin.TestMode)

	var buf bytes.Buffer
	logger.Initialize(logger.Config{Level: "debug", Format: "json", Output: &buf})
	t.Cleanup(func() {
		logger.Initialize(logger.Config{Level: "info", Format: "console"})
	})

	router := gin.New()
	router.Use(LoggingMiddleware())
	router.GET("/ping", func(c *gin.Context) {
		GetLoggerFromContext(c).Info("handler reached")
		c.JSON(http.StatusOK, gin.H{"request_id": GetRequestID(c)})
	})
	router.GET("/missing", func(c *gin.Context) {
		c.Status(http.StatusNotFound)
	})
	return router, &buf
}

func TestLoggingMiddleware_AssignsRequestID(t *testing.T) {
	router, buf := setupLoggingTest(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	id := w.Header().Get(RequestIDHeader)
	_, err := uuid.Parse(id)
	require.NoError(t, err)
	assert.Contains(t, w.Body.String(), id)
	assert.Contains(t, buf.String(), `"request_id":"`+id+`"`)
	assert.Contains(t, buf.String(), "handler reached")
}

func TestLoggingMiddleware_KeepsValidIncomingID(t *testing.T) {
	router, _ := setupLoggingTest(t)
	incoming := uuid.NewString()

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, incoming)
	router.ServeHTTP(w, req)

	assert.Equal(t, incoming, w.Header().Get(RequestIDHeader))
}

func TestLoggingMiddleware_ReplacesInvalidIncomingID(t *testing.T) {
	router, _ := setupLoggingTest(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "not-a-uuid")
	router.ServeHTTP(w, req)

	assert.NotEqual(t, "not-a-uuid", w.Header().Get(RequestIDHeader))
}

func TestLoggingMiddleware_WarnsOnClientErrors(t *testing.T) {
	router, buf := setupLoggingTest(t)

	w := httptest.NewRecorder()
	req, _ := http.NewRequest(http.MethodGet, "/missing", nil)
	router.ServeHTTP(w, req)

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Contains(t, buf.String(), `"level":"warn"`)
	assert.Contains(t, buf.String(), `"status_code":404`)
}
