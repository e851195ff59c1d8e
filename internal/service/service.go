// Package service implements the business operations behind the HTTP API:
// validation, course normalization, avatar assignment, account registration
// and login. Every returned error is an *apperror.Error.
package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/thoas/go-funk"

	"github.com/patric-chuzhbe/students/internal/apperror"
	"github.com/patric-chuzhbe/students/internal/auth"
	"github.com/patric-chuzhbe/students/internal/db/storage"
	"github.com/patric-chuzhbe/students/internal/logger"
	"github.com/patric-chuzhbe/students/internal/models"
)

type studentsKeeper interface {
	InsertStudent(ctx context.Context, student *models.FullStudent) error

	GetStudent(ctx context.Context, id uuid.UUID) (*models.FullStudent, error)

	GetAllStudents(ctx context.Context) ([]models.FullStudent, error)

	UpdateStudent(
		ctx context.Context,
		id uuid.UUID,
		email string,
		age int,
		courses []string,
	) (*models.FullStudent, error)

	DeleteStudent(ctx context.Context, id uuid.UUID) error

	CountStudents(ctx context.Context) (int64, error)
}

type usersKeeper interface {
	CreateUser(ctx context.Context, user *models.User) error

	GetUserByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	GetUserByEmail(ctx context.Context, email string) (*models.User, error)

	CountUsers(ctx context.Context) (int64, error)
}

type pinger interface {
	Ping(ctx context.Context) error
}

type storageInterface interface {
	studentsKeeper
	usersKeeper
	pinger
}

type avatarURLBuilder interface {
	URL(email string) string
}

// Messages shared with the HTTP tests and the client.
const (
	MsgStudentNotFound      = "Can not find student with the provided id"
	MsgUserNotFound         = "User doesn't exist"
	MsgUserExists           = "User with that username or email already exist"
	MsgInvalidCredentials   = "Invalid password or email"
	MsgCanNotInsertStudent  = "Can not insert the student to db"
	MsgCanNotUpdateStudent  = "Can not set new student's data to db"
	MsgCanNotGetStudents    = "Can not get all students from db"
	MsgCanNotCreateUser     = "Can not create user"
	MsgCanNotHashPassword   = "Can not hash password"
	MsgCanNotGetStatistics  = "Can not get statistics"
	MsgStorageNotAccessible = "Storage is not accessible"
)

// Service holds the business rules.
type Service struct {
	db      storageInterface
	avatars avatarURLBuilder
	now     func() time.Time
}

// New creates a Service.
func New(db storageInterface, avatars avatarURLBuilder) *Service {
	return &Service{
		db:      db,
		avatars: avatars,
		now:     time.Now,
	}
}

// AddStudent validates the payload and stores a new student.
func (s *Service) AddStudent(ctx context.Context, payload models.AddStudent) (*models.FullStudent, error) {
	if err := models.Validate(payload); err != nil {
		return nil, apperror.Validation(err)
	}

	student := &models.FullStudent{
		Student: models.Student{
			ID:               uuid.New(),
			FullName:         payload.FullName,
			Email:            payload.Email,
			Age:              payload.Age,
			Img:              s.avatars.URL(payload.Email),
			RegistrationDate: s.now().UTC().Truncate(time.Microsecond),
		},
		Courses: uniqueCourses(payload.Courses),
	}

	if err := s.db.InsertStudent(ctx, student); err != nil {
		logger.Log.Errorw("Failed to insert student", "student_id", student.ID, "error", err)
		return nil, apperror.Wrap(err, MsgCanNotInsertStudent, apperror.TypeDB)
	}
	logger.Log.Infow("Student's details has been saved", "student_id", student.ID)

	return student, nil
}

// ChangeStudent replaces the e-mail, the age and the course list of a student.
func (s *Service) ChangeStudent(
	ctx context.Context,
	id uuid.UUID,
	payload models.EditStudent,
) (*models.FullStudent, error) {
	if err := models.Validate(payload); err != nil {
		return nil, apperror.Validation(err)
	}

	student, err := s.db.UpdateStudent(ctx, id, payload.Email, payload.Age, uniqueCourses(payload.Courses))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperror.Wrap(err, MsgStudentNotFound, apperror.TypeNotFound)
		}
		logger.Log.Errorw("Failed to update student", "student_id", id, "error", err)
		return nil, apperror.Wrap(err, MsgCanNotUpdateStudent, apperror.TypeDB)
	}
	logger.Log.Infow("Student details has been saved", "student_id", id)

	return student, nil
}

// GetStudent returns one student with its courses.
func (s *Service) GetStudent(ctx context.Context, id uuid.UUID) (*models.FullStudent, error) {
	student, err := s.db.GetStudent(ctx, id)
	if err != nil {
		return nil, studentError(err)
	}

	return student, nil
}

// GetAllStudents returns every student ordered by registration date.
func (s *Service) GetAllStudents(ctx context.Context) ([]models.FullStudent, error) {
	students, err := s.db.GetAllStudents(ctx)
	if err != nil {
		logger.Log.Errorw("Failed get all students", "error", err)
		return nil, apperror.Wrap(err, MsgCanNotGetStudents, apperror.TypeDB)
	}

	return students, nil
}

// GetAvatar returns the avatar URL stored for the student.
func (s *Service) GetAvatar(ctx context.Context, id uuid.UUID) (string, error) {
	student, err := s.db.GetStudent(ctx, id)
	if err != nil {
		return "", studentError(err)
	}

	return student.Img, nil
}

// DeleteStudent removes the student and its courses.
func (s *Service) DeleteStudent(ctx context.Context, id uuid.UUID) error {
	if err := s.db.DeleteStudent(ctx, id); err != nil {
		return studentError(err)
	}
	logger.Log.Infow("Successfully delete student", "student_id", id)

	return nil
}

// RegisterUser validates the payload, hashes the password and creates the account.
func (s *Service) RegisterUser(ctx context.Context, payload models.RegisterUser) (*models.User, error) {
	if err := models.Validate(payload); err != nil {
		return nil, apperror.Validation(err)
	}

	hash, err := auth.HashPassword(payload.Password)
	if err != nil {
		return nil, apperror.Wrap(err, MsgCanNotHashPassword, apperror.TypeDB)
	}

	user := &models.User{
		ID:           uuid.New(),
		Username:     payload.Username,
		Email:        payload.Email,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC().Truncate(time.Microsecond),
	}

	if err := s.db.CreateUser(ctx, user); err != nil {
		if errors.Is(err, storage.ErrUserExists) {
			return nil, apperror.Wrap(err, MsgUserExists, apperror.TypeAuthorization)
		}
		logger.Log.Errorw("Failed to create user", "error", err)
		return nil, apperror.Wrap(err, MsgCanNotCreateUser, apperror.TypeDB)
	}
	logger.Log.Infow("User has been registered", "user_id", user.ID)

	return user, nil
}

// Login returns the account matching the credentials. Unknown e-mails and
// wrong passwords are reported identically.
func (s *Service) Login(ctx context.Context, payload models.LoginUser) (*models.User, error) {
	if err := models.Validate(payload); err != nil {
		return nil, apperror.Validation(err)
	}

	user, err := s.db.GetUserByEmail(ctx, payload.Email)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperror.New("", MsgInvalidCredentials, apperror.TypeAuthentication)
		}
		return nil, apperror.From(err)
	}

	if err := auth.VerifyPassword(payload.Password, user.PasswordHash); err != nil {
		if !errors.Is(err, auth.ErrMismatchedPassword) {
			logger.Log.Errorw("Stored password hash is unusable", "user_id", user.ID, "error", err)
		}
		return nil, apperror.New("", MsgInvalidCredentials, apperror.TypeAuthentication)
	}

	return user, nil
}

// FindUser returns the account with the given id.
func (s *Service) FindUser(ctx context.Context, id uuid.UUID) (*models.User, error) {
	user, err := s.db.GetUserByID(ctx, id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return nil, apperror.Wrap(err, MsgUserNotFound, apperror.TypeNotFound)
		}
		return nil, apperror.From(err)
	}

	return user, nil
}

// InternalStats counts students and users.
func (s *Service) InternalStats(ctx context.Context) (*models.InternalStats, error) {
	students, err := s.db.CountStudents(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, MsgCanNotGetStatistics, apperror.TypeDB)
	}

	users, err := s.db.CountUsers(ctx)
	if err != nil {
		return nil, apperror.Wrap(err, MsgCanNotGetStatistics, apperror.TypeDB)
	}

	return &models.InternalStats{
		Students: students,
		Users:    users,
	}, nil
}

// Ping checks that the storage is reachable.
func (s *Service) Ping(ctx context.Context) error {
	if err := s.db.Ping(ctx); err != nil {
		return apperror.Wrap(err, MsgStorageNotAccessible, apperror.TypeDB)
	}

	return nil
}

func studentError(err error) error {
	if errors.Is(err, storage.ErrNotFound) {
		return apperror.Wrap(err, MsgStudentNotFound, apperror.TypeNotFound)
	}

	return apperror.From(err)
}

// uniqueCourses drops repeated course names keeping the first occurrence.
func uniqueCourses(courses []string) []string {
	result := make([]string, 0, len(courses))
	for _, course := range courses {
		if !funk.ContainsString(result, course) {
			result = append(result, course)
		}
	}

	return result
}
