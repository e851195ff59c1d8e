// Package models holds the request, response and storage schemas shared by
// the storage, service and HTTP layers.
package models

import (
	"time"

	"github.com/google/uuid"
)

// Student is a row of the students table.
type Student struct {
	ID               uuid.UUID `json:"id"`
	FullName         string    `json:"fullName"`
	Email            string    `json:"email"`
	Age              int       `json:"age"`
	Img              string    `json:"img"`
	RegistrationDate time.Time `json:"registrationDate"`
}

// FullStudent is a student together with the names of its courses.
type FullStudent struct {
	Student
	Courses []string `json:"courses"`
}

// AddStudent is the payload of a new student.
type AddStudent struct {
	FullName string   `json:"fullName" validate:"fullname"`
	Email    string   `json:"email" validate:"email"`
	Age      int      `json:"age" validate:"min=16,max=120"`
	Courses  []string `json:"courses" validate:"required,dive,course"`
}

// EditStudent is the payload of a student change. The full name is immutable.
type EditStudent struct {
	Email   string   `json:"email" validate:"email"`
	Age     int      `json:"age" validate:"min=16,max=120"`
	Courses []string `json:"courses" validate:"required,dive,course"`
}

// User is a registered account. PasswordHash never leaves the server.
type User struct {
	ID           uuid.UUID `json:"id"`
	Username     string    `json:"username"`
	Email        string    `json:"email"`
	PasswordHash string    `json:"-"`
	CreatedAt    time.Time `json:"createdAt"`
}

// RegisterUser is the payload of POST /auth/register.
type RegisterUser struct {
	Username string `json:"username" validate:"min=4"`
	Email    string `json:"email" validate:"email"`
	Password string `json:"password" validate:"min=8"`
}

// LoginUser is the payload of POST /auth/login.
type LoginUser struct {
	Email    string `json:"email" validate:"email"`
	Password string `json:"password" validate:"min=8"`
}

// Response statuses.
const (
	StatusSuccess = "success"
)

// StatusResponse is returned by endpoints that have nothing else to report.
type StatusResponse struct {
	Status string `json:"status"`
}

// LoginResponse carries both freshly issued tokens.
type LoginResponse struct {
	Status  string `json:"status"`
	Access  string `json:"access"`
	Refresh string `json:"refresh"`
}

// RefreshResponse carries the re-issued access token.
type RefreshResponse struct {
	Status    string `json:"status"`
	NewAccess string `json:"new_access"`
}

// DeleteResponse confirms a student removal.
type DeleteResponse struct {
	Status  string    `json:"status"`
	Deleted uuid.UUID `json:"deleted"`
}

// InternalStats is served to the trusted subnet only.
type InternalStats struct {
	Students int64 `json:"students"`
	Users    int64 `json:"users"`
}

// Storage backends, in order of preference.
const (
	StorageTypeUnknown = iota
	StorageTypePostgresql
	StorageTypeSQLite
	StorageTypeMemory
)
