// Package auth provides JWT issuance and verification, the cookie-based
// authentication middleware, token refresh and password hashing.
//
// Two token classes are used: a short-lived access token that gates every
// protected route and a long-lived refresh token that can only be exchanged
// for a new access token.
package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/patric-chuzhbe/students/internal/apperror"
	"github.com/patric-chuzhbe/students/internal/logger"
)

// Cookie names carrying the tokens.
const (
	AccessTokenCookieName  = "access_token"
	RefreshTokenCookieName = "refresh_token"
)

// ContextKey is a custom type for storing values in context to avoid collisions.
type ContextKey string

// UserIDKey is the context key used to store and retrieve the authenticated user's ID.
const UserIDKey ContextKey = "userID"

// Auth wraps protected handlers and manages the token cookies.
type Auth struct {
	jwt *JWT

	// now is replaceable in tests.
	now func() time.Time
}

// New creates an Auth using the given token settings.
func New(jwt *JWT) *Auth {
	return &Auth{
		jwt: jwt,
		now: time.Now,
	}
}

// JWT exposes the token codec.
func (a *Auth) JWT() *JWT {
	return a.jwt
}

// UserIDFromContext returns the authenticated user's ID stored by the middleware.
func UserIDFromContext(ctx context.Context) (uuid.UUID, bool) {
	userID, ok := ctx.Value(UserIDKey).(uuid.UUID)
	return userID, ok
}

// WithUserID stores userID in ctx the same way the middleware does.
func WithUserID(ctx context.Context, userID uuid.UUID) context.Context {
	return context.WithValue(ctx, UserIDKey, userID)
}

// Authenticate is an HTTP middleware that only lets requests carrying a valid,
// unexpired access token through. The user ID is stored in the request context.
func (a *Auth) Authenticate(h http.Handler) http.Handler {
	return a.authenticate(h, false)
}

// AuthenticateAllowExpired works like Authenticate but accepts an expired
// access token. It guards the refresh route, whose whole purpose is to replace
// such a token.
func (a *Auth) AuthenticateAllowExpired(h http.Handler) http.Handler {
	return a.authenticate(h, true)
}

func (a *Auth) authenticate(h http.Handler, allowExpired bool) http.Handler {
	middleware := func(response http.ResponseWriter, request *http.Request) {
		userID, appErr := a.userIDFromAccessToken(request, allowExpired)
		if appErr != nil {
			logger.Log.Debugw(
				"request rejected by the auth middleware",
				"uri", request.RequestURI,
				"method", request.Method,
				zap.Error(appErr),
			)
			appErr.Write(response)

			return
		}

		h.ServeHTTP(response, request.WithContext(WithUserID(request.Context(), userID)))
	}

	return http.HandlerFunc(middleware)
}

func (a *Auth) userIDFromAccessToken(request *http.Request, allowExpired bool) (uuid.UUID, *apperror.Error) {
	tokenString := getTokenStringFromCookieOrAuthorizationHeader(request)
	if tokenString == "" {
		return uuid.Nil, apperror.New("", "Access token not found. Log in first!", apperror.TypeAuthorization)
	}

	claims, err := a.jwt.Decode(tokenString, TokenTypeAccess)
	if err != nil {
		return uuid.Nil, apperror.Wrap(err, "Invalid jwt access token", apperror.TypeAuthentication)
	}

	if !allowExpired && claims.Expired(a.now()) {
		return uuid.Nil, apperror.New("", "Login timed out", apperror.TypeAuthorization)
	}

	userID, err := claims.UserID()
	if err != nil {
		return uuid.Nil, apperror.Wrap(err, "Invalid jwt access token", apperror.TypeAuthentication)
	}

	return userID, nil
}

// Refresh validates the refresh token cookie of an already authenticated request
// and returns the user it was issued to.
func (a *Auth) Refresh(request *http.Request) (uuid.UUID, error) {
	cookie, err := request.Cookie(RefreshTokenCookieName)
	if err != nil || cookie.Value == "" {
		return uuid.Nil, apperror.New("", "Refresh jwt token not found. Log in first!", apperror.TypeAuthorization)
	}

	claims, err := a.jwt.Decode(cookie.Value, TokenTypeRefresh)
	if err != nil {
		return uuid.Nil, apperror.Wrap(err, "Invalid refresh jwt tokens", apperror.TypeAuthentication)
	}

	if claims.Expired(a.now()) {
		return uuid.Nil, apperror.New("", "Refresh token timed out", apperror.TypeAuthorization)
	}

	userID, ok := UserIDFromContext(request.Context())
	if !ok {
		return uuid.Nil, apperror.New("", "Can not find user's id", apperror.TypeAuthentication)
	}

	refreshUserID, err := claims.UserID()
	if err != nil {
		return uuid.Nil, apperror.Wrap(err, "Invalid refresh jwt tokens", apperror.TypeAuthentication)
	}
	if refreshUserID != userID {
		return uuid.Nil, apperror.New("", "Refresh token was issued to another user", apperror.TypeAuthorization)
	}

	return userID, nil
}

// IssueTokens creates an access and a refresh token for userID.
func (a *Auth) IssueTokens(userID uuid.UUID) (access, refresh string, err error) {
	access, err = a.jwt.Issue(userID, TokenTypeAccess)
	if err != nil {
		return "", "", err
	}

	refresh, err = a.jwt.Issue(userID, TokenTypeRefresh)
	if err != nil {
		return "", "", err
	}

	return access, refresh, nil
}

// IssueAccessToken creates a new access token for userID.
func (a *Auth) IssueAccessToken(userID uuid.UUID) (string, error) {
	return a.jwt.Issue(userID, TokenTypeAccess)
}

// SetAccessCookie attaches the access token cookie to the response.
func (a *Auth) SetAccessCookie(response http.ResponseWriter, token string) {
	http.SetCookie(response, newCookie(AccessTokenCookieName, token, a.jwt.Access.MaxAge))
}

// SetRefreshCookie attaches the refresh token cookie to the response.
func (a *Auth) SetRefreshCookie(response http.ResponseWriter, token string) {
	http.SetCookie(response, newCookie(RefreshTokenCookieName, token, a.jwt.Refresh.MaxAge))
}

// ClearCookies expires both token cookies.
func (a *Auth) ClearCookies(response http.ResponseWriter) {
	http.SetCookie(response, newCookie(RefreshTokenCookieName, "", -1))
	http.SetCookie(response, newCookie(AccessTokenCookieName, "", -1))
}

func newCookie(name, value string, maxAge time.Duration) *http.Cookie {
	seconds := int(maxAge / time.Second)
	if maxAge < 0 {
		seconds = -1
	}

	return &http.Cookie{
		Name:     name,
		Value:    value,
		Path:     "/",
		MaxAge:   seconds,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	}
}

func getTokenStringFromCookieOrAuthorizationHeader(request *http.Request) string {
	cookie, err := request.Cookie(AccessTokenCookieName)
	if err == nil && cookie.Value != "" {
		return cookie.Value
	}

	header := request.Header.Get("Authorization")
	if token, found := strings.CutPrefix(header, "Bearer "); found {
		return strings.TrimSpace(token)
	}

	return ""
}
