// Package client is a Go client of the students HTTP API. The access and
// refresh tokens are kept as cookies in the client's jar.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"

	"github.com/patric-chuzhbe/students/internal/apperror"
	"github.com/patric-chuzhbe/students/internal/auth"
	"github.com/patric-chuzhbe/students/internal/models"
)

// APIError is returned when the server answers with a non-2xx status.
type APIError struct {
	Status int
	Body   apperror.Error
}

func (e *APIError) Error() string {
	if e.Body.Cause != "" {
		return fmt.Sprintf("%d %s: %s (%s)", e.Status, e.Body.Type, e.Body.Message, e.Body.Cause)
	}

	return fmt.Sprintf("%d %s: %s", e.Status, e.Body.Type, e.Body.Message)
}

// Client talks to one students server.
type Client struct {
	http    *resty.Client
	baseURL *url.URL
}

type initOptions struct {
	timeout time.Duration
	access  string
	refresh string
}

// InitOption configures New.
type InitOption func(*initOptions)

// WithTimeout sets the timeout of every request.
func WithTimeout(timeout time.Duration) InitOption {
	return func(options *initOptions) {
		options.timeout = timeout
	}
}

// WithTokens restores a previously obtained session.
func WithTokens(access, refresh string) InitOption {
	return func(options *initOptions) {
		options.access = access
		options.refresh = refresh
	}
}

// New creates a client of the server at baseURL, e.g. "http://127.0.0.1:8000".
func New(baseURL string, optionsProto ...InitOption) (*Client, error) {
	options := &initOptions{
		timeout: 10 * time.Second,
	}
	for _, protoOption := range optionsProto {
		protoOption(options)
	}

	parsedURL, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("in internal/client/client.go/New(): error while `url.Parse()` calling: %w", err)
	}
	if parsedURL.Scheme == "" || parsedURL.Host == "" {
		return nil, fmt.Errorf("in internal/client/client.go/New(): invalid server URL %q", baseURL)
	}

	c := &Client{
		http: resty.New().
			SetBaseURL(parsedURL.String()).
			SetTimeout(options.timeout).
			SetHeader("Accept", "application/json"),
		baseURL: parsedURL,
	}
	c.setTokens(options.access, options.refresh)

	return c, nil
}

func (c *Client) setTokens(access, refresh string) {
	var cookies []*http.Cookie
	if access != "" {
		cookies = append(cookies, &http.Cookie{Name: auth.AccessTokenCookieName, Value: access, Path: "/"})
	}
	if refresh != "" {
		cookies = append(cookies, &http.Cookie{Name: auth.RefreshTokenCookieName, Value: refresh, Path: "/"})
	}
	if len(cookies) > 0 {
		c.http.GetClient().Jar.SetCookies(c.baseURL, cookies)
	}
}

// Tokens returns the access and the refresh token currently held in the jar.
func (c *Client) Tokens() (access, refresh string) {
	for _, cookie := range c.http.GetClient().Jar.Cookies(c.baseURL) {
		switch cookie.Name {
		case auth.AccessTokenCookieName:
			access = cookie.Value
		case auth.RefreshTokenCookieName:
			refresh = cookie.Value
		}
	}

	return access, refresh
}

func do[T any](ctx context.Context, c *Client, method, path string, body any) (*T, error) {
	var result T

	request := c.http.R().
		SetContext(ctx).
		SetResult(&result)
	if body != nil {
		request.SetBody(body)
	}

	response, err := request.Execute(method, path)
	if err != nil {
		return nil, fmt.Errorf("in internal/client/client.go/do(): error while `Execute()` calling: %w", err)
	}
	if response.IsError() {
		return nil, newAPIError(response)
	}

	return &result, nil
}

func newAPIError(response *resty.Response) *APIError {
	apiErr := &APIError{Status: response.StatusCode()}
	if err := json.Unmarshal(response.Body(), &apiErr.Body); err != nil || apiErr.Body.Message == "" {
		apiErr.Body.Message = strings.TrimSpace(response.String())
		if apiErr.Body.Message == "" {
			apiErr.Body.Message = http.StatusText(response.StatusCode())
		}
	}

	return apiErr
}

// HealthCheck succeeds when the server answers 200 on /health_check.
func (c *Client) HealthCheck(ctx context.Context) error {
	response, err := c.http.R().SetContext(ctx).Get("/health_check")
	if err != nil {
		return fmt.Errorf("in internal/client/client.go/HealthCheck(): error while `Get()` calling: %w", err)
	}
	if response.StatusCode() != http.StatusOK {
		return newAPIError(response)
	}

	return nil
}

// Register creates an account.
func (c *Client) Register(ctx context.Context, payload models.RegisterUser) (*models.User, error) {
	return do[models.User](ctx, c, http.MethodPost, "/auth/register", payload)
}

// Login stores the issued tokens in the jar and returns them.
func (c *Client) Login(ctx context.Context, payload models.LoginUser) (*models.LoginResponse, error) {
	return do[models.LoginResponse](ctx, c, http.MethodPost, "/auth/login", payload)
}

// Refresh replaces the access token.
func (c *Client) Refresh(ctx context.Context) (*models.RefreshResponse, error) {
	return do[models.RefreshResponse](ctx, c, http.MethodGet, "/auth/refresh", nil)
}

// Logout asks the server to clear the token cookies.
func (c *Client) Logout(ctx context.Context) error {
	_, err := do[models.StatusResponse](ctx, c, http.MethodGet, "/auth/logout", nil)
	return err
}

// AddStudent creates a student.
func (c *Client) AddStudent(ctx context.Context, payload models.AddStudent) (*models.FullStudent, error) {
	return do[models.FullStudent](ctx, c, http.MethodPost, "/students", payload)
}

// GetStudents lists all students.
func (c *Client) GetStudents(ctx context.Context) ([]models.FullStudent, error) {
	students, err := do[[]models.FullStudent](ctx, c, http.MethodGet, "/students", nil)
	if err != nil {
		return nil, err
	}

	return *students, nil
}

// GetStudent returns one student.
func (c *Client) GetStudent(ctx context.Context, id uuid.UUID) (*models.FullStudent, error) {
	return do[models.FullStudent](ctx, c, http.MethodGet, "/students/"+id.String(), nil)
}

// ChangeStudent replaces the e-mail, the age and the courses of a student.
func (c *Client) ChangeStudent(ctx context.Context, id uuid.UUID, payload models.EditStudent) (*models.FullStudent, error) {
	return do[models.FullStudent](ctx, c, http.MethodPost, "/students/change/"+id.String(), payload)
}

// GetAvatar returns the avatar URL of a student.
func (c *Client) GetAvatar(ctx context.Context, id uuid.UUID) (string, error) {
	img, err := do[string](ctx, c, http.MethodGet, "/students/"+id.String()+"/avatar", nil)
	if err != nil {
		return "", err
	}

	return *img, nil
}

// DeleteStudent removes a student.
func (c *Client) DeleteStudent(ctx context.Context, id uuid.UUID) (*models.DeleteResponse, error) {
	return do[models.DeleteResponse](ctx, c, http.MethodDelete, "/delete/"+id.String(), nil)
}
