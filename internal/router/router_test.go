package router

import (
	"bytes"
	"compress/gzip"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patric-chuzhbe/students/internal/apperror"
	"github.com/patric-chuzhbe/students/internal/auth"
	"github.com/patric-chuzhbe/students/internal/avatar"
	"github.com/patric-chuzhbe/students/internal/db/memorystorage"
	"github.com/patric-chuzhbe/students/internal/ipchecker"
	"github.com/patric-chuzhbe/students/internal/models"
	"github.com/patric-chuzhbe/students/internal/service"
)

const (
	testTrustedSubnet = "127.0.0.0/8"
	testPassword      = "password123"
)

func newTestAuth() *auth.Auth {
	return auth.New(auth.NewJWT(
		auth.NewTokenSettings("router-test-access-signing-key", 15*time.Minute, time.Hour),
		auth.NewTokenSettings("router-test-refresh-signing-key", time.Hour, 2*time.Hour),
	))
}

// setupTestRouter starts the API over memory storage. t may be nil in examples.
func setupTestRouter(t *testing.T) (*httptest.Server, *memorystorage.MemoryStorage, *auth.Auth) {
	db := memorystorage.New()
	theAuth := newTestAuth()

	checker, err := ipchecker.New(testTrustedSubnet)
	if err != nil {
		panic(err)
	}

	theRouter := New(
		service.New(db, avatar.New("https://www.gravatar.com/avatar", "identicon")),
		theAuth,
		checker,
	)

	server := httptest.NewServer(theRouter)
	if t != nil {
		t.Cleanup(server.Close)
	}

	return server, db, theAuth
}

func registerAndLogin(t *testing.T, serverURL string) (*resty.Client, *models.User) {
	t.Helper()

	name := "user" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
	client := resty.New().SetBaseURL(serverURL)

	resp, err := client.R().
		SetBody(models.RegisterUser{Username: name, Email: name + "@example.com", Password: testPassword}).
		Post("/auth/register")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())

	user := &models.User{}
	require.NoError(t, json.Unmarshal(resp.Body(), user))

	resp, err = client.R().
		SetBody(models.LoginUser{Email: user.Email, Password: testPassword}).
		Post("/auth/login")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())

	return client, user
}

func decodeAppError(t *testing.T, body []byte) apperror.Error {
	t.Helper()

	var appErr apperror.Error
	require.NoError(t, json.Unmarshal(body, &appErr), string(body))

	return appErr
}

func addStudent(t *testing.T, client *resty.Client, payload models.AddStudent) models.FullStudent {
	t.Helper()

	resp, err := client.R().SetBody(payload).Post("/students")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())

	var student models.FullStudent
	require.NoError(t, json.Unmarshal(resp.Body(), &student))

	return student
}

func TestGetHealthcheck(t *testing.T) {
	server, _, _ := setupTestRouter(t)

	resp, err := resty.New().R().Get(server.URL + "/health_check")
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Empty(t, resp.Body())
}

func TestProtectedRoutesRequireLogin(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	id := uuid.NewString()

	type tTestCase struct {
		method string
		path   string
	}
	testCases := []tTestCase{
		{http.MethodGet, "/"},
		{http.MethodGet, "/students"},
		{http.MethodPost, "/students"},
		{http.MethodGet, "/students/" + id},
		{http.MethodPut, "/students/" + id},
		{http.MethodDelete, "/students/" + id},
		{http.MethodGet, "/students/" + id + "/avatar"},
		{http.MethodPost, "/students/change/" + id},
		{http.MethodDelete, "/delete/" + id},
		{http.MethodGet, "/auth/refresh"},
		{http.MethodGet, "/auth/logout"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.method+" "+testCase.path, func(t *testing.T) {
			req := resty.New().R()
			req.Method = testCase.method
			req.URL = server.URL + testCase.path

			resp, err := req.Send()
			require.NoError(t, err)
			assert.Equal(t, http.StatusForbidden, resp.StatusCode())

			appErr := decodeAppError(t, resp.Body())
			assert.Equal(t, apperror.TypeAuthorization, appErr.Type)
			assert.Equal(t, "Access token not found. Log in first!", appErr.Message)
		})
	}
}

func TestPostAuthregister(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	client := resty.New().SetBaseURL(server.URL)

	resp, err := client.R().
		SetBody(`{"username":"johnny","email":"john@example.com","password":"password123"}`).
		SetHeader("Content-Type", "application/json").
		Post("/auth/register")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.NotContains(t, resp.String(), "password")

	var user models.User
	require.NoError(t, json.Unmarshal(resp.Body(), &user))
	assert.Equal(t, "johnny", user.Username)
	assert.NotEqual(t, uuid.Nil, user.ID)

	type tExpectedResponse struct {
		code      int
		errorType apperror.Type
	}
	type tTestCase struct {
		name             string
		body             string
		expectedResponse tExpectedResponse
	}
	testCases := []tTestCase{
		{
			name:             "duplicate username",
			body:             `{"username":"johnny","email":"other@example.com","password":"password123"}`,
			expectedResponse: tExpectedResponse{http.StatusForbidden, apperror.TypeAuthorization},
		},
		{
			name:             "duplicate email",
			body:             `{"username":"jonathan","email":"john@example.com","password":"password123"}`,
			expectedResponse: tExpectedResponse{http.StatusForbidden, apperror.TypeAuthorization},
		},
		{
			name:             "short password",
			body:             `{"username":"jonathan","email":"jon@example.com","password":"short"}`,
			expectedResponse: tExpectedResponse{http.StatusBadRequest, apperror.TypeValidation},
		},
		{
			name:             "malformed JSON",
			body:             `{"username":`,
			expectedResponse: tExpectedResponse{http.StatusBadRequest, apperror.TypeValidation},
		},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			resp, err := client.R().
				SetBody(testCase.body).
				SetHeader("Content-Type", "application/json").
				Post("/auth/register")
			require.NoError(t, err)
			assert.Equal(t, testCase.expectedResponse.code, resp.StatusCode())
			assert.Equal(t, testCase.expectedResponse.errorType, decodeAppError(t, resp.Body()).Type)
		})
	}
}

func TestPostAuthlogin(t *testing.T) {
	server, _, theAuth := setupTestRouter(t)
	_, user := registerAndLogin(t, server.URL)

	t.Run("positive", func(t *testing.T) {
		resp, err := resty.New().R().
			SetBody(models.LoginUser{Email: user.Email, Password: testPassword}).
			Post(server.URL + "/auth/login")
		require.NoError(t, err)
		require.Equal(t, http.StatusOK, resp.StatusCode())

		var body models.LoginResponse
		require.NoError(t, json.Unmarshal(resp.Body(), &body))
		assert.Equal(t, models.StatusSuccess, body.Status)

		claims, err := theAuth.JWT().Decode(body.Access, auth.TokenTypeAccess)
		require.NoError(t, err)
		assert.Equal(t, user.ID.String(), claims.Subject)

		cookies := map[string]*http.Cookie{}
		for _, cookie := range resp.Cookies() {
			cookies[cookie.Name] = cookie
		}
		require.Contains(t, cookies, auth.AccessTokenCookieName)
		require.Contains(t, cookies, auth.RefreshTokenCookieName)
		assert.Equal(t, body.Access, cookies[auth.AccessTokenCookieName].Value)
		assert.Equal(t, body.Refresh, cookies[auth.RefreshTokenCookieName].Value)
		assert.True(t, cookies[auth.AccessTokenCookieName].HttpOnly)
		assert.Equal(t, 3600, cookies[auth.AccessTokenCookieName].MaxAge)
	})

	for name, payload := range map[string]models.LoginUser{
		"wrong password": {Email: user.Email, Password: "not-the-password"},
		"unknown email":  {Email: "nobody@example.com", Password: testPassword},
	} {
		t.Run(name, func(t *testing.T) {
			resp, err := resty.New().R().SetBody(payload).Post(server.URL + "/auth/login")
			require.NoError(t, err)
			assert.Equal(t, http.StatusUnauthorized, resp.StatusCode())

			appErr := decodeAppError(t, resp.Body())
			assert.Equal(t, apperror.TypeAuthentication, appErr.Type)
			assert.Equal(t, service.MsgInvalidCredentials, appErr.Message)
		})
	}
}

func TestStudentsLifecycle(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	client, _ := registerAndLogin(t, server.URL)

	student := addStudent(t, client, models.AddStudent{
		FullName: "John Smith",
		Email:    "john@example.com",
		Age:      20,
		Courses:  []string{"math", "physics", "math"},
	})
	assert.Equal(t, []string{"math", "physics"}, student.Courses)
	assert.Equal(t, "https://www.gravatar.com/avatar/"+avatar.Hash("john@example.com")+"?d=identicon", student.Img)
	studentURL := "/students/" + student.ID.String()

	resp, err := client.R().Get("/students")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	var all []models.FullStudent
	require.NoError(t, json.Unmarshal(resp.Body(), &all))
	require.Len(t, all, 1)
	assert.Equal(t, student.ID, all[0].ID)

	resp, err = client.R().Get(studentURL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	var fetched models.FullStudent
	require.NoError(t, json.Unmarshal(resp.Body(), &fetched))
	assert.Equal(t, student.Email, fetched.Email)
	assert.True(t, student.RegistrationDate.Equal(fetched.RegistrationDate))

	resp, err = client.R().
		SetBody(models.EditStudent{Email: "smith@example.com", Age: 22, Courses: []string{"art"}}).
		Post("/students/change/" + student.ID.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())
	var changed models.FullStudent
	require.NoError(t, json.Unmarshal(resp.Body(), &changed))
	assert.Equal(t, "smith@example.com", changed.Email)
	assert.Equal(t, []string{"art"}, changed.Courses)
	assert.Equal(t, student.FullName, changed.FullName)

	resp, err = client.R().
		SetBody(models.EditStudent{Email: "smith@example.com", Age: 23, Courses: []string{"art", "music"}}).
		Put(studentURL)
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())
	require.NoError(t, json.Unmarshal(resp.Body(), &changed))
	assert.Equal(t, 23, changed.Age)
	assert.Equal(t, []string{"art", "music"}, changed.Courses)

	resp, err = client.R().Get(studentURL + "/avatar")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	var img string
	require.NoError(t, json.Unmarshal(resp.Body(), &img))
	assert.Equal(t, student.Img, img)

	resp, err = client.R().Delete("/delete/" + student.ID.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, fmt.Sprintf(`{"status":"success","deleted":%q}`, student.ID.String()), resp.String())

	resp, err = client.R().Get(studentURL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
	assert.Equal(t, service.MsgStudentNotFound, decodeAppError(t, resp.Body()).Message)

	resp, err = client.R().Delete(studentURL)
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func TestDeleteStudentsStudentid(t *testing.T) {
	server, db, _ := setupTestRouter(t)
	client, _ := registerAndLogin(t, server.URL)

	student := addStudent(t, client, models.AddStudent{
		FullName: "Jane Smith",
		Email:    "jane@example.com",
		Age:      30,
		Courses:  []string{"history"},
	})

	resp, err := client.R().Delete("/students/" + student.ID.String())
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())

	count, err := db.CountStudents(t.Context())
	require.NoError(t, err)
	assert.Zero(t, count)
}

func TestPostStudents_Invalid(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	client, _ := registerAndLogin(t, server.URL)

	type tTestCase struct {
		name string
		body string
	}
	testCases := []tTestCase{
		{name: "empty body", body: ``},
		{name: "malformed JSON", body: `{"fullName":"John Smith",`},
		{name: "empty object", body: `{}`},
		{name: "one word name", body: `{"fullName":"John","email":"john@example.com","age":20,"courses":["math"]}`},
		{name: "bad email", body: `{"fullName":"John Smith","email":"john","age":20,"courses":["math"]}`},
		{name: "too young", body: `{"fullName":"John Smith","email":"john@example.com","age":10,"courses":["math"]}`},
		{name: "missing courses", body: `{"fullName":"John Smith","email":"john@example.com","age":20}`},
		{name: "bad course", body: `{"fullName":"John Smith","email":"john@example.com","age":20,"courses":["7"]}`},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			resp, err := client.R().
				SetHeader("Content-Type", "application/json").
				SetBody(testCase.body).
				Post("/students")
			require.NoError(t, err)
			assert.Equal(t, http.StatusBadRequest, resp.StatusCode())
			assert.Equal(t, apperror.TypeValidation, decodeAppError(t, resp.Body()).Type)
		})
	}
}

func TestStudentPathParameters(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	client, _ := registerAndLogin(t, server.URL)

	resp, err := client.R().Get("/students/not-a-uuid")
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode())

	resp, err = client.R().Get("/students/" + uuid.NewString() + "/avatar")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())

	resp, err = client.R().
		SetBody(models.EditStudent{Email: "a@example.com", Age: 20, Courses: []string{"math"}}).
		Post("/students/change/" + uuid.NewString())
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())

	resp, err = client.R().Patch("/students")
	require.NoError(t, err)
	assert.Equal(t, http.StatusMethodNotAllowed, resp.StatusCode())

	resp, err = client.R().Get("/no/such/route")
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode())
}

func TestNotFound(t *testing.T) {
	server, _, _ := setupTestRouter(t)

	for _, path := range []string{"/no/such/route", "/students/" + uuid.NewString() + "/photos", "/api/internal"} {
		t.Run(path, func(t *testing.T) {
			resp, err := resty.New().R().Get(server.URL + path)
			require.NoError(t, err)
			assert.Equal(t, http.StatusNotFound, resp.StatusCode())
			assert.Contains(t, resp.Header().Get("Content-Type"), "application/json")

			appErr := decodeAppError(t, resp.Body())
			assert.Equal(t, apperror.TypeNotFound, appErr.Type)
			assert.Equal(t, "Resource not found", appErr.Message)
		})
	}
}

func TestGetAuthrefresh(t *testing.T) {
	server, _, theAuth := setupTestRouter(t)
	client, user := registerAndLogin(t, server.URL)

	resp, err := client.R().Get("/auth/refresh")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode(), resp.String())
	var body models.RefreshResponse
	require.NoError(t, json.Unmarshal(resp.Body(), &body))
	assert.Equal(t, models.StatusSuccess, body.Status)
	assert.NotEmpty(t, body.NewAccess)

	expiredAccess, err := theAuth.JWT().Encode(
		auth.NewTokenClaims(user.ID, auth.TokenTypeAccess, -time.Minute),
		auth.TokenTypeAccess,
	)
	require.NoError(t, err)
	refresh, err := theAuth.JWT().Issue(user.ID, auth.TokenTypeRefresh)
	require.NoError(t, err)
	expiredRefresh, err := theAuth.JWT().Encode(
		auth.NewTokenClaims(user.ID, auth.TokenTypeRefresh, -time.Minute),
		auth.TokenTypeRefresh,
	)
	require.NoError(t, err)

	stranger := uuid.New()
	strangerAccess, err := theAuth.JWT().Issue(stranger, auth.TokenTypeAccess)
	require.NoError(t, err)
	strangerRefresh, err := theAuth.JWT().Issue(stranger, auth.TokenTypeRefresh)
	require.NoError(t, err)

	cookies := func(access, refresh string) []*http.Cookie {
		result := []*http.Cookie{{Name: auth.AccessTokenCookieName, Value: access}}
		if refresh != "" {
			result = append(result, &http.Cookie{Name: auth.RefreshTokenCookieName, Value: refresh})
		}
		return result
	}

	t.Run("expired access token is rejected elsewhere", func(t *testing.T) {
		resp, err := resty.New().R().SetCookies(cookies(expiredAccess, refresh)).Get(server.URL + "/students")
		require.NoError(t, err)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode())
		assert.Equal(t, "Login timed out", decodeAppError(t, resp.Body()).Message)
	})

	type tTestCase struct {
		name    string
		cookies []*http.Cookie
		code    int
		message string
	}
	testCases := []tTestCase{
		{name: "expired access token", cookies: cookies(expiredAccess, refresh), code: http.StatusOK},
		{name: "no refresh token", cookies: cookies(expiredAccess, ""), code: http.StatusForbidden, message: "Refresh jwt token not found. Log in first!"},
		{name: "expired refresh token", cookies: cookies(expiredAccess, expiredRefresh), code: http.StatusForbidden, message: "Refresh token timed out"},
		{name: "garbage refresh token", cookies: cookies(expiredAccess, "garbage"), code: http.StatusUnauthorized, message: "Invalid refresh jwt tokens"},
		{name: "unknown user", cookies: cookies(strangerAccess, strangerRefresh), code: http.StatusNotFound, message: service.MsgUserNotFound},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			resp, err := resty.New().R().SetCookies(testCase.cookies).Get(server.URL + "/auth/refresh")
			require.NoError(t, err)
			assert.Equal(t, testCase.code, resp.StatusCode(), resp.String())
			if testCase.message != "" {
				assert.Equal(t, testCase.message, decodeAppError(t, resp.Body()).Message)
			}
		})
	}
}

func TestGetAuthlogout(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	client, _ := registerAndLogin(t, server.URL)

	resp, err := client.R().Get("/auth/logout")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `{"status":"success"}`, resp.String())
	for _, cookie := range resp.Cookies() {
		assert.Empty(t, cookie.Value)
		assert.Negative(t, cookie.MaxAge)
	}

	resp, err = client.R().Get("/students")
	require.NoError(t, err)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode())
}

func TestGetIndex(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	client, _ := registerAndLogin(t, server.URL)

	resp, err := client.R().Get("/")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.Contains(t, resp.Header().Get("Content-Type"), "text/html")
	assert.Contains(t, resp.String(), "<h1>Students</h1>")
}

func TestGetApiinternalstats(t *testing.T) {
	server, _, _ := setupTestRouter(t)
	client, _ := registerAndLogin(t, server.URL)
	addStudent(t, client, models.AddStudent{FullName: "John Smith", Email: "john@example.com", Age: 20, Courses: []string{"math"}})

	resp, err := resty.New().R().Get(server.URL + "/api/internal/stats")
	require.NoError(t, err)
	require.Equal(t, http.StatusOK, resp.StatusCode())
	assert.JSONEq(t, `{"students":1,"users":1}`, resp.String())

	type tTestCase struct {
		name         string
		proxyHeaders bool
		realIP       string
		wantCode     int
	}
	testCases := []tTestCase{
		{name: "spoofed x-real-ip", realIP: "10.1.2.3", wantCode: http.StatusForbidden},
		{name: "x-real-ip from a trusted proxy", proxyHeaders: true, realIP: "10.1.2.3", wantCode: http.StatusOK},
		{name: "untrusted address from a trusted proxy", proxyHeaders: true, realIP: "192.168.1.1", wantCode: http.StatusForbidden},
	}

	for _, testCase := range testCases {
		t.Run(testCase.name, func(t *testing.T) {
			checker, err := ipchecker.New("10.0.0.0/8", ipchecker.WithProxyHeaders(testCase.proxyHeaders))
			require.NoError(t, err)
			guarded := httptest.NewServer(New(
				service.New(memorystorage.New(), avatar.New("https://www.gravatar.com/avatar", "identicon")),
				newTestAuth(),
				checker,
			))
			defer guarded.Close()

			resp, err := resty.New().R().SetHeader("X-Real-IP", testCase.realIP).Get(guarded.URL + "/api/internal/stats")
			require.NoError(t, err)
			assert.Equal(t, testCase.wantCode, resp.StatusCode())
			if testCase.wantCode == http.StatusForbidden {
				assert.Equal(t, "Access is allowed from the trusted subnet only", decodeAppError(t, resp.Body()).Message)
			}
		})
	}
}

func TestGzip(t *testing.T) {
	server, _, theAuth := setupTestRouter(t)
	_, user := registerAndLogin(t, server.URL)
	access, err := theAuth.IssueAccessToken(user.ID)
	require.NoError(t, err)

	var compressed bytes.Buffer
	gzipWriter := gzip.NewWriter(&compressed)
	_, err = gzipWriter.Write([]byte(`{"fullName":"John Smith","email":"john@example.com","age":20,"courses":["math"]}`))
	require.NoError(t, err)
	require.NoError(t, gzipWriter.Close())

	request, err := http.NewRequest(http.MethodPost, server.URL+"/students", &compressed)
	require.NoError(t, err)
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Content-Encoding", "gzip")
	request.Header.Set("Accept-Encoding", "gzip")
	request.Header.Set("Authorization", "Bearer "+access)

	response, err := http.DefaultClient.Do(request)
	require.NoError(t, err)
	defer response.Body.Close()

	require.Equal(t, http.StatusOK, response.StatusCode)
	require.Equal(t, "gzip", response.Header.Get("Content-Encoding"))

	reader, err := gzip.NewReader(response.Body)
	require.NoError(t, err)
	body, err := io.ReadAll(reader)
	require.NoError(t, err)

	var student models.FullStudent
	require.NoError(t, json.Unmarshal(body, &student))
	assert.Equal(t, "John Smith", student.FullName)
}
