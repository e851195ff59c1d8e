// Package storage declares the persistence contract shared by every backend.
package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"github.com/patric-chuzhbe/students/internal/models"
)

var (
	// ErrNotFound is returned when the requested student or user does not exist.
	ErrNotFound = errors.New("record not found")

	// ErrUserExists is returned when the username or e-mail is already taken.
	ErrUserExists = errors.New("user with that username or email already exists")
)

// Storage is implemented by the PostgreSQL, SQLite and in-memory backends.
type Storage interface {
	InsertStudent(ctx context.Context, student *models.FullStudent) error

	GetStudent(ctx context.Context, id uuid.UUID) (*models.FullStudent, error)

	// GetAllStudents returns every student ordered by registration date.
	GetAllStudents(ctx context.Context) ([]models.FullStudent, error)

	// UpdateStudent replaces the e-mail, the age and the whole course list.
	UpdateStudent(
		ctx context.Context,
		id uuid.UUID,
		email string,
		age int,
		courses []string,
	) (*models.FullStudent, error)

	DeleteStudent(ctx context.Context, id uuid.UUID) error

	CreateUser(ctx context.Context, user *models.User) error

	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CountStudents(ctx context.Context) (int64, error)

	CountUsers(ctx context.Context) (int64, error)

	Ping(ctx context.Context) error

	Close() error
}
