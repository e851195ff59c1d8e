// Package mockstorage provides a testify-based mock implementation
// of the storage interface used by the service package.
// It is used for unit testing business rules by simulating storage behavior.
package mockstorage

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"github.com/patric-chuzhbe/students/internal/models"
)

// StorageMock is a testify mock that implements storage.Storage.
//
// Use it in service tests to simulate database behavior and failures.
type StorageMock struct {
	mock.Mock

	// OnCountUsers is an optional function field that can be assigned
	// to define custom mock behavior for CountUsers in tests.
	//
	// If set, CountUsers will delegate to this function instead of
	// using testify's generic mock handler.
	OnCountUsers func(ctx context.Context) (int64, error)

	// OnCountStudents is an optional function field that can be used
	// to customize the return values of CountStudents in tests.
	//
	// If non-nil, the mock implementation will call this function directly.
	OnCountStudents func(ctx context.Context) (int64, error)
}

// Ping mocks a health check.
func (m *StorageMock) Ping(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}

// Close mocks closing the storage and releasing resources.
func (m *StorageMock) Close() error {
	args := m.Called()
	return args.Error(0)
}

// InsertStudent mocks storing a new student.
func (m *StorageMock) InsertStudent(ctx context.Context, student *models.FullStudent) error {
	args := m.Called(ctx, student)
	return args.Error(0)
}

// GetStudent mocks fetching one student.
func (m *StorageMock) GetStudent(ctx context.Context, id uuid.UUID) (*models.FullStudent, error) {
	args := m.Called(ctx, id)
	student, _ := args.Get(0).(*models.FullStudent)
	return student, args.Error(1)
}

// GetAllStudents mocks listing students.
func (m *StorageMock) GetAllStudents(ctx context.Context) ([]models.FullStudent, error) {
	args := m.Called(ctx)
	students, _ := args.Get(0).([]models.FullStudent)
	return students, args.Error(1)
}

// UpdateStudent mocks changing a student.
func (m *StorageMock) UpdateStudent(
	ctx context.Context,
	id uuid.UUID,
	email string,
	age int,
	courses []string,
) (*models.FullStudent, error) {
	args := m.Called(ctx, id, email, age, courses)
	student, _ := args.Get(0).(*models.FullStudent)
	return student, args.Error(1)
}

// DeleteStudent mocks removing a student.
func (m *StorageMock) DeleteStudent(ctx context.Context, id uuid.UUID) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

// CreateUser mocks user creation.
func (m *StorageMock) CreateUser(ctx context.Context, user *models.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// GetUserByID mocks fetching a user by their ID.
func (m *StorageMock) GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	args := m.Called(ctx, id)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

// GetUserByEmail mocks fetching a user by their e-mail.
func (m *StorageMock) GetUserByEmail(ctx context.Context, email string) (*models.User, error) {
	args := m.Called(ctx, email)
	user, _ := args.Get(0).(*models.User)
	return user, args.Error(1)
}

// CountUsers returns the number of users as defined by the mock.
//
// If OnCountUsers is non-nil, it will be called to produce the result.
// Otherwise, the method returns 0 and no error by default.
func (m *StorageMock) CountUsers(ctx context.Context) (int64, error) {
	if m.OnCountUsers != nil {
		return m.OnCountUsers(ctx)
	}
	return 0, nil
}

// CountStudents returns the number of students as defined by the mock.
//
// If OnCountStudents is defined, the method will call it and return
// its result. Otherwise, it defaults to returning 0 and no error.
func (m *StorageMock) CountStudents(ctx context.Context) (int64, error) {
	if m.OnCountStudents != nil {
		return m.OnCountStudents(ctx)
	}
	return 0, nil
}
