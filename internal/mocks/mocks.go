package mocks

import (
	"context"
	"time"

	"github.com/stretchr/testify/mock"

	"lan-chat/internal/models"
	"lan-chat/internal/push"
	"lan-chat/internal/telemetry"
)

type NotifierMock struct {
	mock.Mock
}

func (m *NotifierMock) SendNotification(ctx context.Context, userID string, payload push.Payload) error {
	args := m.Called(ctx, userID, payload)
	return args.Error(0)
}

type AuditorMock struct {
	mock.Mock
}

func (m *AuditorMock) Emit(ctx context.Context, requestID, actorID string, payload telemetry.AuditPayload) {
	m.Called(ctx, requestID, actorID, payload)
}

type UserRepositoryMock struct {
	mock.Mock
}

func (m *UserRepositoryMock) Ensure(ctx context.Context, id, hostname, address string) (models.User, error) {
	args := m.Called(ctx, id, hostname, address)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) Get(ctx context.Context, id string) (models.User, error) {
	args := m.Called(ctx, id)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}

func (m *UserRepositoryMock) List(ctx context.Context) ([]models.User, error) {
	args := m.Called(ctx)
	var list []models.User
	if val := args.Get(0); val != nil {
		list = val.([]models.User)
	}
	return list, args.Error(1)
}

func (m *UserRepositoryMock) SetPresence(ctx context.Context, id, status string, at time.Time) error {
	args := m.Called(ctx, id, status, at)
	return args.Error(0)
}

func (m *UserRepositoryMock) UpdateProfile(ctx context.Context, id string, upd models.ProfileUpdate) (models.User, error) {
	args := m.Called(ctx, id, upd)
	var user models.User
	if val := args.Get(0); val != nil {
		user = val.(models.User)
	}
	return user, args.Error(1)
}
