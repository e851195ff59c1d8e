package router

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/students/internal/apperror"
	"github.com/patric-chuzhbe/students/internal/auth"
	"github.com/patric-chuzhbe/students/internal/logger"
	"github.com/patric-chuzhbe/students/internal/models"
)

// GetHealthcheck answers 200 with an empty body.
func (router *Router) GetHealthcheck(response http.ResponseWriter, request *http.Request) {
	response.WriteHeader(http.StatusOK)
}

// GetIndex serves the index page to logged in users.
func (router *Router) GetIndex(response http.ResponseWriter, request *http.Request) {
	response.Header().Set("Content-Type", "text/html; charset=utf-8")
	response.WriteHeader(http.StatusOK)
	if _, err := response.Write(indexPage); err != nil {
		logger.Log.Debugw("failed to write the index page", zap.Error(err))
	}
}

// PostStudents adds a student.
func (router *Router) PostStudents(response http.ResponseWriter, request *http.Request) {
	var payload models.AddStudent
	if !decodeJSON(response, request, &payload) {
		return
	}

	student, err := router.svc.AddStudent(request.Context(), payload)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, request, student)
}

// GetStudents lists all students.
func (router *Router) GetStudents(response http.ResponseWriter, request *http.Request) {
	students, err := router.svc.GetAllStudents(request.Context())
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, request, students)
}

// GetStudentsStudentid returns one student.
func (router *Router) GetStudentsStudentid(response http.ResponseWriter, request *http.Request) {
	id, ok := pathUUID(response, request, "student_id")
	if !ok {
		return
	}

	student, err := router.svc.GetStudent(request.Context(), id)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, request, student)
}

// PostStudentsChangeID changes the e-mail, the age and the courses of a student.
func (router *Router) PostStudentsChangeID(response http.ResponseWriter, request *http.Request) {
	router.changeStudent(response, request, "id")
}

// PutStudentsStudentid is the REST form of PostStudentsChangeID.
func (router *Router) PutStudentsStudentid(response http.ResponseWriter, request *http.Request) {
	router.changeStudent(response, request, "student_id")
}

func (router *Router) changeStudent(response http.ResponseWriter, request *http.Request, param string) {
	id, ok := pathUUID(response, request, param)
	if !ok {
		return
	}

	var payload models.EditStudent
	if !decodeJSON(response, request, &payload) {
		return
	}

	student, err := router.svc.ChangeStudent(request.Context(), id, payload)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, request, student)
}

// GetStudentsStudentidAvatar returns the avatar URL of a student as a JSON string.
func (router *Router) GetStudentsStudentidAvatar(response http.ResponseWriter, request *http.Request) {
	id, ok := pathUUID(response, request, "student_id")
	if !ok {
		return
	}

	img, err := router.svc.GetAvatar(request.Context(), id)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, request, img)
}

// DeleteDeleteStudentid removes a student.
func (router *Router) DeleteDeleteStudentid(response http.ResponseWriter, request *http.Request) {
	id, ok := pathUUID(response, request, "student_id")
	if !ok {
		return
	}

	if err := router.svc.DeleteStudent(request.Context(), id); err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, request, models.DeleteResponse{
		Status:  models.StatusSuccess,
		Deleted: id,
	})
}

// DeleteStudentsStudentid is the REST form of DeleteDeleteStudentid.
func (router *Router) DeleteStudentsStudentid(response http.ResponseWriter, request *http.Request) {
	router.DeleteDeleteStudentid(response, request)
}

// PostAuthregister creates an account.
func (router *Router) PostAuthregister(response http.ResponseWriter, request *http.Request) {
	var payload models.RegisterUser
	if !decodeJSON(response, request, &payload) {
		return
	}

	user, err := router.svc.RegisterUser(request.Context(), payload)
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, request, user)
}

// PostAuthlogin checks the credentials and issues both tokens as cookies and in the body.
func (router *Router) PostAuthlogin(response http.ResponseWriter, request *http.Request) {
	var payload models.LoginUser
	if !decodeJSON(response, request, &payload) {
		return
	}

	user, err := router.svc.Login(request.Context(), payload)
	if err != nil {
		writeError(response, request, err)
		return
	}

	access, refresh, err := router.auth.IssueTokens(user.ID)
	if err != nil {
		writeError(response, request, err)
		return
	}

	router.auth.SetAccessCookie(response, access)
	router.auth.SetRefreshCookie(response, refresh)

	writeJSON(response, request, models.LoginResponse{
		Status:  models.StatusSuccess,
		Access:  access,
		Refresh: refresh,
	})
}

// GetAuthrefresh replaces the access token using the refresh token cookie.
func (router *Router) GetAuthrefresh(response http.ResponseWriter, request *http.Request) {
	userID, err := router.auth.Refresh(request)
	if err != nil {
		writeError(response, request, err)
		return
	}

	if _, err := router.svc.FindUser(request.Context(), userID); err != nil {
		writeError(response, request, err)
		return
	}

	access, err := router.auth.IssueAccessToken(userID)
	if err != nil {
		writeError(response, request, err)
		return
	}

	router.auth.SetAccessCookie(response, access)

	writeJSON(response, request, models.RefreshResponse{
		Status:    models.StatusSuccess,
		NewAccess: access,
	})
}

// GetAuthlogout clears both token cookies.
func (router *Router) GetAuthlogout(response http.ResponseWriter, request *http.Request) {
	router.auth.ClearCookies(response)

	writeJSON(response, request, models.StatusResponse{Status: models.StatusSuccess})
}

// GetApiinternalstats reports the number of students and users.
func (router *Router) GetApiinternalstats(response http.ResponseWriter, request *http.Request) {
	stats, err := router.svc.InternalStats(request.Context())
	if err != nil {
		writeError(response, request, err)
		return
	}

	writeJSON(response, request, stats)
}

func (router *Router) notFound(response http.ResponseWriter, request *http.Request) {
	apperror.New("", "Resource not found", apperror.TypeNotFound).Write(response)
}

func pathUUID(response http.ResponseWriter, request *http.Request, param string) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(request, param))
	if err != nil {
		writeError(response, request, apperror.Wrap(err, "Invalid student id", apperror.TypeValidation))
		return uuid.Nil, false
	}

	return id, true
}

func decodeJSON(response http.ResponseWriter, request *http.Request, payload any) bool {
	if err := json.NewDecoder(request.Body).Decode(payload); err != nil {
		writeError(response, request, apperror.Wrap(err, "Invalid data", apperror.TypeValidation))
		return false
	}

	return true
}

func writeJSON(response http.ResponseWriter, request *http.Request, payload any) {
	response.Header().Set("Content-Type", "application/json")
	response.WriteHeader(http.StatusOK)

	if err := json.NewEncoder(response).Encode(payload); err != nil {
		logger.Log.Errorw(
			"failed to encode the response",
			"request_id", middleware.GetReqID(request.Context()),
			zap.Error(err),
		)
	}
}

func writeError(response http.ResponseWriter, request *http.Request, err error) {
	appErr := apperror.From(err)

	fields := []any{
		"request_id", middleware.GetReqID(request.Context()),
		"uri", request.RequestURI,
		"method", request.Method,
		"status", appErr.StatusCode(),
		zap.Error(err),
	}
	if userID, ok := auth.UserIDFromContext(request.Context()); ok {
		fields = append(fields, "user_id", userID)
	}

	if appErr.StatusCode() >= http.StatusInternalServerError {
		logger.Log.Errorw("request failed", fields...)
	} else {
		logger.Log.Infow("request rejected", fields...)
	}

	appErr.Write(response)
}
