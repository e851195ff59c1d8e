// Package storagetest holds the behaviour every storage backend must share.
package storagetest

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/students/internal/db/storage"
	"github.com/patric-chuzhbe/students/internal/models"
)

// Factory returns an empty storage. The suite closes it.
type Factory func(t *testing.T) storage.Storage

var baseTime = time.Date(2024, time.March, 1, 10, 0, 0, 123456000, time.UTC)

func newStudent(name, email string, offset time.Duration, courses ...string) *models.FullStudent {
	return &models.FullStudent{
		Student: models.Student{
			ID:               uuid.New(),
			FullName:         name,
			Email:            email,
			Age:              20,
			Img:              "https://www.gravatar.com/avatar/hash?d=identicon",
			RegistrationDate: baseTime.Add(offset),
		},
		Courses: courses,
	}
}

func newUser(username, email string) *models.User {
	return &models.User{
		ID:           uuid.New(),
		Username:     username,
		Email:        email,
		PasswordHash: "$argon2id$v=19$m=19456,t=2,p=1$c2FsdA$aGFzaA",
		CreatedAt:    baseTime,
	}
}

// Run executes the whole suite against the storages produced by factory.
func Run(t *testing.T, factory Factory) {
	tests := []struct {
		name string
		fn   func(t *testing.T, s storage.Storage)
	}{
		{name: "insert and get student", fn: testInsertAndGetStudent},
		{name: "get all students", fn: testGetAllStudents},
		{name: "update student", fn: testUpdateStudent},
		{name: "delete student", fn: testDeleteStudent},
		{name: "missing student", fn: testMissingStudent},
		{name: "users", fn: testUsers},
		{name: "counts", fn: testCounts},
	}

	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			s := factory(t)
			t.Cleanup(func() {
				assert.NoError(t, s.Close())
			})
			require.NoError(t, s.Ping(context.Background()))

			test.fn(t, s)
		})
	}
}

func testInsertAndGetStudent(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	student := newStudent("John Smith", "john@example.com", 0, "math", "physics", "cs.101")

	require.NoError(t, s.InsertStudent(ctx, student))

	got, err := s.GetStudent(ctx, student.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(student, got); diff != "" {
		t.Errorf("GetStudent() mismatch (-want +got):\n%s", diff)
	}

	withoutCourses := newStudent("Jane Smith", "jane@example.com", time.Second)
	withoutCourses.Courses = []string{}
	require.NoError(t, s.InsertStudent(ctx, withoutCourses))

	got, err = s.GetStudent(ctx, withoutCourses.ID)
	require.NoError(t, err)
	assert.NotNil(t, got.Courses)
	assert.Empty(t, got.Courses)
}

func testGetAllStudents(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	all, err := s.GetAllStudents(ctx)
	require.NoError(t, err)
	assert.Empty(t, all)

	later := newStudent("Later Student", "later@example.com", time.Hour, "history")
	earlier := newStudent("Earlier Student", "earlier@example.com", 0, "math", "art")
	require.NoError(t, s.InsertStudent(ctx, later))
	require.NoError(t, s.InsertStudent(ctx, earlier))

	all, err = s.GetAllStudents(ctx)
	require.NoError(t, err)
	require.Len(t, all, 2)
	assert.Equal(t, earlier.ID, all[0].ID)
	assert.Equal(t, []string{"math", "art"}, all[0].Courses)
	assert.Equal(t, later.ID, all[1].ID)
	assert.Equal(t, []string{"history"}, all[1].Courses)
}

func testUpdateStudent(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	student := newStudent("John Smith", "john@example.com", 0, "math", "physics")
	require.NoError(t, s.InsertStudent(ctx, student))

	updated, err := s.UpdateStudent(ctx, student.ID, "new@example.com", 33, []string{"art", "math"})
	require.NoError(t, err)
	assert.Equal(t, "new@example.com", updated.Email)
	assert.Equal(t, 33, updated.Age)
	assert.Equal(t, []string{"art", "math"}, updated.Courses)
	assert.Equal(t, student.FullName, updated.FullName)
	assert.True(t, student.RegistrationDate.Equal(updated.RegistrationDate))

	got, err := s.GetStudent(ctx, student.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(updated, got); diff != "" {
		t.Errorf("GetStudent() after update mismatch (-want +got):\n%s", diff)
	}

	cleared, err := s.UpdateStudent(ctx, student.ID, "new@example.com", 33, []string{})
	require.NoError(t, err)
	assert.Empty(t, cleared.Courses)
}

func testDeleteStudent(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	student := newStudent("John Smith", "john@example.com", 0, "math")
	require.NoError(t, s.InsertStudent(ctx, student))

	require.NoError(t, s.DeleteStudent(ctx, student.ID))

	_, err := s.GetStudent(ctx, student.ID)
	assert.ErrorIs(t, err, storage.ErrNotFound)
	assert.ErrorIs(t, s.DeleteStudent(ctx, student.ID), storage.ErrNotFound)
}

func testMissingStudent(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	id := uuid.New()

	_, err := s.GetStudent(ctx, id)
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.UpdateStudent(ctx, id, "a@example.com", 20, []string{"math"})
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testUsers(t *testing.T, s storage.Storage) {
	ctx := context.Background()
	user := newUser("johnny", "john@example.com")
	require.NoError(t, s.CreateUser(ctx, user))

	byID, err := s.GetUserByID(ctx, user.ID)
	require.NoError(t, err)
	if diff := cmp.Diff(user, byID); diff != "" {
		t.Errorf("GetUserByID() mismatch (-want +got):\n%s", diff)
	}

	byEmail, err := s.GetUserByEmail(ctx, user.Email)
	require.NoError(t, err)
	assert.Equal(t, user.ID, byEmail.ID)
	assert.Equal(t, user.PasswordHash, byEmail.PasswordHash)

	assert.ErrorIs(t, s.CreateUser(ctx, newUser("johnny", "other@example.com")), storage.ErrUserExists)
	assert.ErrorIs(t, s.CreateUser(ctx, newUser("other", "john@example.com")), storage.ErrUserExists)

	_, err = s.GetUserByID(ctx, uuid.New())
	assert.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.GetUserByEmail(ctx, "nobody@example.com")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func testCounts(t *testing.T, s storage.Storage) {
	ctx := context.Background()

	require.NoError(t, s.InsertStudent(ctx, newStudent("First Student", "a@example.com", 0, "math")))
	require.NoError(t, s.InsertStudent(ctx, newStudent("Second Student", "b@example.com", time.Minute)))
	require.NoError(t, s.CreateUser(ctx, newUser("johnny", "john@example.com")))

	students, err := s.CountStudents(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(2), students)

	users, err := s.CountUsers(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), users)
}
