package services

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"github.com/civictrack/apiserver/internal/events"
	"github.com/civictrack/apiserver/types"
)

type mockUserRepo struct {
	mock.Mock
}

func (m *mockUserRepo) GetByID(ctx context.Context, id int) (types.User, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *mockUserRepo) GetByEmail(ctx context.Context, email string) (types.User, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *mockUserRepo) Create(ctx context.Context, user types.User) (types.User, error) {
	args := m.Called(ctx, user)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *mockUserRepo) UpdateRole(ctx context.Context, id int, role types.Role) (types.User, error) {
	args := m.Called(ctx, id, role)
	return args.Get(0).(types.User), args.Error(1)
}

func (m *mockUserRepo) List(ctx context.Context) ([]types.User, error) {
	args := m.Called(ctx)
	return args.Get(0).([]types.User), args.Error(1)
}

type mockComplaintRepo struct {
	mock.Mock
}

func (m *mockComplaintRepo) List(ctx context.Context, filter types.ComplaintFilter) ([]types.Complaint, error) {
	args := m.Called(ctx, filter)
	return args.Get(0).([]types.Complaint), args.Error(1)
}

func (m *mockComplaintRepo) Get(ctx context.Context, id int) (types.Complaint, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Complaint), args.Error(1)
}

func (m *mockComplaintRepo) Create(ctx context.Context, complaint types.Complaint) (types.Complaint, error) {
	args := m.Called(ctx, complaint)
	return args.Get(0).(types.Complaint), args.Error(1)
}

func (m *mockComplaintRepo) IncrementUpvotes(ctx context.Context, id int) (types.Complaint, error) {
	args := m.Called(ctx, id)
	return args.Get(0).(types.Complaint), args.Error(1)
}

func (m *mockComplaintRepo) UpdateStatus(ctx context.Context, id int, status types.Status) (types.Complaint, error) {
	args := m.Called(ctx, id, status)
	return args.Get(0).(types.Complaint), args.Error(1)
}

func (m *mockComplaintRepo) Delete(ctx context.Context, id int) (string, error) {
	args := m.Called(ctx, id)
	return args.String(0), args.Error(1)
}

type mockImageStore struct {
	mock.Mock
}

func (m *mockImageStore) Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, r, size, contentType)
	return args.Error(0)
}

func (m *mockImageStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) Publish(ctx context.Context, event events.Event) error {
	args := m.Called(ctx, event)
	return args.Error(0)
}
