package server

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/config"
	"lan-chat/internal/db"
	"lan-chat/internal/mocks"
)

func newTestApp(t *testing.T, pub *mocks.PublisherMock) *App {
	t.Helper()
	ctx := context.Background()
	cfg := config.Default()
	cfg.Upload.Dir = t.TempDir()
	cfg.Server.Debug = true

	database, err := db.Connect(ctx, config.DatabaseConfig{Driver: db.DriverSQLite, DSN: "file::memory:?_foreign_keys=on"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	app, err := New(ctx, cfg, database, WithPublisher(pub))
	require.NoError(t, err)
	return app
}

func serve(app *App, method, target, body string) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	req := httptest.NewRequest(method, target, strings.NewReader(body))
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	app.Engine.ServeHTTP(w, req)
	return w
}

func TestRoutes(t *testing.T) {
	pub := &mocks.PublisherMock{}
	pub.On("Publish", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil).Maybe()
	app := newTestApp(t, pub)

	w := serve(app, http.MethodGet, "/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-Id"))

	w = serve(app, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "lanchat_")

	w = serve(app, http.MethodPost, "/api/upload/image", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(app, http.MethodGet, "/ws", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = serve(app, http.MethodPost, "/api/identity", `{"hostname":"alice-pc"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"displayName"`)
}

func TestSecretIsGeneratedOnceAndReused(t *testing.T) {
	ctx := context.Background()
	cfg := config.Default()
	cfg.Upload.Dir = t.TempDir()
	database, err := db.Connect(ctx, config.DatabaseConfig{Driver: db.DriverSQLite, DSN: "file::memory:?_foreign_keys=on"})
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	first, err := New(ctx, cfg, database, WithPublisher(&mocks.PublisherMock{}))
	require.NoError(t, err)
	token, err := first.Tokens.Issue("user-1")
	require.NoError(t, err)

	second, err := New(ctx, cfg, database, WithPublisher(&mocks.PublisherMock{}))
	require.NoError(t, err)
	id, err := second.Tokens.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, "user-1", id)
}

func TestDebugAuditRouteEmits(t *testing.T) {
	pub := &mocks.PublisherMock{}
	pub.On("Publish", mock.Anything, "audit.groups", mock.Anything, mock.Anything).Return(nil).Once()
	app := newTestApp(t, pub)

	w := serve(app, http.MethodGet, "/debug/audit-test", "")
	assert.Equal(t, http.StatusOK, w.Code)
	pub.AssertExpectations(t)
}
