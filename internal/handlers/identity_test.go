package handlers

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"lan-chat/internal/identity"
	"lan-chat/internal/middleware"
	"lan-chat/internal/mocks"
	"lan-chat/internal/models"
	"lan-chat/internal/repositories"
)

func setupIdentityRouter(h *IdentityHandler, issuer *identity.Issuer) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.POST("/api/identity", h.Issue)
	me := r.Group("/api/users/me", middleware.AuthMiddleware(issuer))
	me.GET("", h.Me)
	me.PUT("", h.UpdateMe)
	r.GET("/healthz", Health)
	return r
}

func TestIssueIdentityForNewcomer(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	issuer := identity.NewIssuer([]byte("secret"), time.Hour)
	router := setupIdentityRouter(NewIdentityHandler(users, issuer, newRecordingHub()), issuer)

	issued := uuid.NewString()
	users.On("Ensure", mock.Anything, mock.AnythingOfType("string"), "den-pc", "192.0.2.1").
		Return(models.User{ID: issued, DisplayName: "den-pc"}, nil).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/identity", bytes.NewBufferString(`{"hostname":"den-pc"}`))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Token string      `json:"token"`
		User  models.User `json:"user"`
	}
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	id, err := issuer.Parse(resp.Token)
	require.NoError(t, err)
	assert.Equal(t, issued, id)
	assert.Equal(t, "den-pc", resp.User.DisplayName)
	users.AssertExpectations(t)
}

func TestIssueIdentityKeepsExistingUser(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	issuer := identity.NewIssuer([]byte("secret"), time.Hour)
	router := setupIdentityRouter(NewIdentityHandler(users, issuer, newRecordingHub()), issuer)

	existing := uuid.NewString()
	token, err := issuer.Issue(existing)
	require.NoError(t, err)
	users.On("Ensure", mock.Anything, existing, "192.0.2.1", "192.0.2.1").Return(models.User{ID: existing}, nil).Once()

	body, _ := json.Marshal(gin.H{"token": token})
	req := httptest.NewRequest(http.MethodPost, "/api/identity", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	users.AssertExpectations(t)
}

func TestIssueIdentityRepoError(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	issuer := identity.NewIssuer([]byte("secret"), time.Hour)
	router := setupIdentityRouter(NewIdentityHandler(users, issuer, newRecordingHub()), issuer)

	users.On("Ensure", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(nil, assert.AnError).Once()

	req := httptest.NewRequest(http.MethodPost, "/api/identity", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestProfileEndpoints(t *testing.T) {
	users := new(mocks.UserRepositoryMock)
	hub := newRecordingHub()
	issuer := identity.NewIssuer([]byte("secret"), time.Hour)
	router := setupIdentityRouter(NewIdentityHandler(users, issuer, hub), issuer)

	me := uuid.NewString()
	token, err := issuer.Issue(me)
	require.NoError(t, err)

	users.On("Get", mock.Anything, me).Return(models.User{ID: me, DisplayName: "Den"}, nil).Once()
	req := httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	name := "Kitchen"
	users.On("UpdateProfile", mock.Anything, me, models.ProfileUpdate{DisplayName: &name}).
		Return(models.User{ID: me, DisplayName: name}, nil).Once()
	req = httptest.NewRequest(http.MethodPut, "/api/users/me", bytes.NewBufferString(`{"displayName":"  Kitchen "}`))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, hub.find("user:updated"), 1)

	users.On("Get", mock.Anything, me).Return(nil, repositories.ErrUserNotFound).Once()
	req = httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	req = httptest.NewRequest(http.MethodGet, "/api/users/me", nil)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	users.AssertExpectations(t)
}

func TestHealth(t *testing.T) {
	issuer := identity.NewIssuer([]byte("secret"), time.Hour)
	router := setupIdentityRouter(NewIdentityHandler(new(mocks.UserRepositoryMock), issuer, newRecordingHub()), issuer)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
}
