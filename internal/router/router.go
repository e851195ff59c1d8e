// Package router wires the HTTP API of the students service: routes,
// middleware and the handlers translating requests into service calls.
package router

import (
	"context"
	_ "embed"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/students/internal/gzippedhttp"
	"github.com/patric-chuzhbe/students/internal/logger"
	"github.com/patric-chuzhbe/students/internal/models"
)

//go:embed static/index.html
var indexPage []byte

type studentsService interface {
	AddStudent(ctx context.Context, payload models.AddStudent) (*models.FullStudent, error)

	ChangeStudent(ctx context.Context, id uuid.UUID, payload models.EditStudent) (*models.FullStudent, error)

	GetStudent(ctx context.Context, id uuid.UUID) (*models.FullStudent, error)

	GetAllStudents(ctx context.Context) ([]models.FullStudent, error)

	GetAvatar(ctx context.Context, id uuid.UUID) (string, error)

	DeleteStudent(ctx context.Context, id uuid.UUID) error
}

type usersService interface {
	RegisterUser(ctx context.Context, payload models.RegisterUser) (*models.User, error)

	Login(ctx context.Context, payload models.LoginUser) (*models.User, error)

	FindUser(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type statsService interface {
	InternalStats(ctx context.Context) (*models.InternalStats, error)
}

type routerService interface {
	studentsService
	usersService
	statsService
}

type authenticator interface {
	Authenticate(h http.Handler) http.Handler

	AuthenticateAllowExpired(h http.Handler) http.Handler

	Refresh(request *http.Request) (uuid.UUID, error)

	IssueTokens(userID uuid.UUID) (access, refresh string, err error)

	IssueAccessToken(userID uuid.UUID) (string, error)

	SetAccessCookie(response http.ResponseWriter, token string)

	SetRefreshCookie(response http.ResponseWriter, token string)

	ClearCookies(response http.ResponseWriter)
}

type trustedSubnetGuard interface {
	TrustedSubnetOnly(h http.Handler) http.Handler
}

// Router serves the HTTP API.
type Router struct {
	svc       routerService
	auth      authenticator
	ipChecker trustedSubnetGuard
	mux       *chi.Mux
}

type initOptions struct {
	enableGzip bool
}

// InitOption configures New.
type InitOption func(*initOptions)

// WithGzip toggles gzip request decoding and response encoding.
func WithGzip(value bool) InitOption {
	return func(options *initOptions) {
		options.enableGzip = value
	}
}

// New builds the router with every route of the API mounted.
func New(
	svc routerService,
	auth authenticator,
	ipChecker trustedSubnetGuard,
	optionsProto ...InitOption,
) *Router {
	options := &initOptions{
		enableGzip: true,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	router := &Router{
		svc:       svc,
		auth:      auth,
		ipChecker: ipChecker,
		mux:       chi.NewRouter(),
	}

	router.mux.Use(
		middleware.RequestID,
		logger.WithLoggingHTTPMiddleware,
		middleware.Recoverer,
	)
	if options.enableGzip {
		router.mux.Use(
			gzippedhttp.UngzipJSONAndTextHTMLRequest,
			gzippedhttp.GzipResponse,
		)
	}

	router.mux.NotFound(router.notFound)

	router.mux.Get(`/health_check`, router.GetHealthcheck)

	router.mux.Route(`/auth`, func(r chi.Router) {
		r.Post(`/register`, router.PostAuthregister)
		r.Post(`/login`, router.PostAuthlogin)
		r.With(router.auth.AuthenticateAllowExpired).Get(`/refresh`, router.GetAuthrefresh)
		r.With(router.auth.Authenticate).Get(`/logout`, router.GetAuthlogout)
	})

	router.mux.Group(func(r chi.Router) {
		r.Use(router.auth.Authenticate)

		r.Get(`/`, router.GetIndex)

		r.Post(`/students`, router.PostStudents)
		r.Get(`/students`, router.GetStudents)
		r.Get(`/students/{student_id}`, router.GetStudentsStudentid)
		r.Put(`/students/{student_id}`, router.PutStudentsStudentid)
		r.Delete(`/students/{student_id}`, router.DeleteStudentsStudentid)
		r.Get(`/students/{student_id}/avatar`, router.GetStudentsStudentidAvatar)
		r.Post(`/students/change/{id}`, router.PostStudentsChangeID)
		r.Delete(`/delete/{student_id}`, router.DeleteDeleteStudentid)
	})

	router.mux.With(router.ipChecker.TrustedSubnetOnly).Get(`/api/internal/stats`, router.GetApiinternalstats)

	return router
}

// ServeHTTP implements http.Handler.
func (router *Router) ServeHTTP(response http.ResponseWriter, request *http.Request) {
	router.mux.ServeHTTP(response, request)
}
