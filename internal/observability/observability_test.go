package observability_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/mocks"
	"lan-chat/internal/observability"
)

func TestPublishEventUsesInstalledPublisher(t *testing.T) {
	t.Cleanup(func() { observability.SetPublisher(nil) })
	require.NoError(t, observability.PublishEvent(context.Background(), "ws.lifecycle", "ignored", nil))

	pub := &mocks.PublisherMock{}
	headers := observability.BuildHeaders("req-1", "")
	pub.On("Publish", mock.Anything, "ws.lifecycle", "connected", headers).Return(nil).Once()
	pub.On("Publish", mock.Anything, "ws.lifecycle", "disconnected", headers).Return(errors.New("channel closed")).Once()
	observability.SetPublisher(pub)

	require.NoError(t, observability.PublishEvent(context.Background(), "ws.lifecycle", "connected", headers))
	assert.Error(t, observability.PublishEvent(context.Background(), "ws.lifecycle", "disconnected", headers))
	pub.AssertExpectations(t)
}

func TestBuildHeadersSkipsEmptyValues(t *testing.T) {
	assert.Empty(t, observability.BuildHeaders("", ""))
	assert.Equal(t, map[string]string{"x-request-id": "r", "trace_id": "t"}, observability.BuildHeaders("r", "t"))
}

func TestRequestIDMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(observability.RequestIDMiddleware())
	r.GET("/", func(c *gin.Context) { c.String(http.StatusOK, observability.RequestID(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-Id", "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Header().Get("X-Request-Id"))
	assert.Equal(t, "abc", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/", nil))
	minted := w.Header().Get("X-Request-Id")
	assert.NotEmpty(t, minted)
	assert.Equal(t, minted, w.Body.String(), "the id is cached on the context")
}

func TestIPFromRequest(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.RemoteAddr = "192.168.1.20:51000"
	assert.Equal(t, "192.168.1.20", observability.IPFromRequest(req))

	req.Header.Set("X-Forwarded-For", "10.0.0.5, 192.168.1.1")
	assert.Equal(t, "10.0.0.5", observability.IPFromRequest(req))
}
