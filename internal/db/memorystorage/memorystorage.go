// Package memorystorage keeps students and users in process memory. It is
// used when no database is configured and as the storage of handler tests.
package memorystorage

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/students/internal/db/storage"
	"github.com/patric-chuzhbe/students/internal/models"
)

// MemoryStorage is safe for concurrent use.
type MemoryStorage struct {
	mu       sync.RWMutex
	students map[uuid.UUID]models.FullStudent
	users    map[uuid.UUID]models.User
}

// New creates an empty MemoryStorage.
func New() *MemoryStorage {
	return &MemoryStorage{
		students: map[uuid.UUID]models.FullStudent{},
		users:    map[uuid.UUID]models.User{},
	}
}

// InsertStudent stores a copy of student.
func (s *MemoryStorage) InsertStudent(_ context.Context, student *models.FullStudent) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.students[student.ID] = copyStudent(*student)

	return nil
}

// GetStudent returns a copy of the stored student.
func (s *MemoryStorage) GetStudent(_ context.Context, id uuid.UUID) (*models.FullStudent, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	student, ok := s.students[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	result := copyStudent(student)

	return &result, nil
}

// GetAllStudents returns copies of all students ordered by registration date.
func (s *MemoryStorage) GetAllStudents(_ context.Context) ([]models.FullStudent, error) {
	s.mu.RLock()
	result := make([]models.FullStudent, 0, len(s.students))
	for _, student := range s.students {
		result = append(result, copyStudent(student))
	}
	s.mu.RUnlock()

	sort.Slice(result, func(i, j int) bool {
		if !result[i].RegistrationDate.Equal(result[j].RegistrationDate) {
			return result[i].RegistrationDate.Before(result[j].RegistrationDate)
		}
		return result[i].ID.String() < result[j].ID.String()
	})

	return result, nil
}

// UpdateStudent replaces the e-mail, the age and the course list of a student.
func (s *MemoryStorage) UpdateStudent(
	_ context.Context,
	id uuid.UUID,
	email string,
	age int,
	courses []string,
) (*models.FullStudent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	student, ok := s.students[id]
	if !ok {
		return nil, storage.ErrNotFound
	}
	student.Email = email
	student.Age = age
	student.Courses = courses
	student = copyStudent(student)
	s.students[id] = student

	result := copyStudent(student)

	return &result, nil
}

// DeleteStudent removes a student.
func (s *MemoryStorage) DeleteStudent(_ context.Context, id uuid.UUID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.students[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.students, id)

	return nil
}

// CreateUser stores user unless the id, username or e-mail is taken.
func (s *MemoryStorage) CreateUser(_ context.Context, user *models.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[user.ID]; ok {
		return storage.ErrUserExists
	}
	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return storage.ErrUserExists
		}
	}
	s.users[user.ID] = *user

	return nil
}

// GetUserByID returns a copy of the user.
func (s *MemoryStorage) GetUserByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, storage.ErrNotFound
	}

	return &user, nil
}

// GetUserByEmail returns a copy of the user registered with email.
func (s *MemoryStorage) GetUserByEmail(_ context.Context, email string) (*models.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, user := range s.users {
		if user.Email == email {
			result := user
			return &result, nil
		}
	}

	return nil, storage.ErrNotFound
}

// CountStudents returns the number of stored students.
func (s *MemoryStorage) CountStudents(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.students)), nil
}

// CountUsers returns the number of registered users.
func (s *MemoryStorage) CountUsers(_ context.Context) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return int64(len(s.users)), nil
}

// Ping always succeeds.
func (s *MemoryStorage) Ping(_ context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStorage) Close() error {
	return nil
}

func copyStudent(student models.FullStudent) models.FullStudent {
	courses := make([]string, len(student.Courses))
	copy(courses, student.Courses)
	student.Courses = courses

	return student
}
