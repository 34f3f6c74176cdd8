// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package session

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/platform/middleware"
	requestutil "github.com/taibuivan/idgate/internal/platform/request"
	"github.com/taibuivan/idgate/internal/platform/respond"
	"github.com/taibuivan/idgate/internal/platform/validate"
)

// Request field names used in validation details.
const (
	fieldEmail        = "email"
	fieldLogin        = "login"
	fieldPassword     = "password"
	fieldEmailOrLogin = "emailOrLogin"
	fieldToken        = "token"
	fieldUserID       = "userId"
	fieldProvider     = "providerName"
)

// # Definitions & Constructors

// Handler implements the Auth service HTTP endpoints.
type Handler struct {
	authenticator *Authenticator
	manager       *Manager
	secureCookies bool
}

// NewHandler constructs a new [Handler]. secureCookies sets the Secure flag on session cookies.
func NewHandler(authenticator *Authenticator, manager *Manager, secureCookies bool) *Handler {
	return &Handler{authenticator: authenticator, manager: manager, secureCookies: secureCookies}
}

// Routes returns the public authentication routes. Only /me resolves the
// presented token up front, so a stale cookie never blocks signing in again.
//
// # Endpoints
//   - POST /local/signup : Registers a password credential (no session).
//   - POST /local/signin : Opens a session with a password.
//   - POST /rotate       : Rotates the current token.
//   - POST /logout       : Closes the current session.
//   - GET  /me           : Describes the current session.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Post("/local/signup", handler.signUp)
	router.Post("/local/signin", handler.signIn)
	router.Post("/rotate", handler.rotate)
	router.Post("/logout", handler.logout)

	router.Group(func(r chi.Router) {
		r.Use(middleware.Authenticate(handler.manager), middleware.RequireSession)
		r.Get("/me", handler.current)
	})

	return router
}

// InternalRoutes returns the service-to-service routes.
//
// # Endpoints
//   - POST /validate : Validates a token for the gateway.
//   - POST /purge    : Signs a user out of every device of one provider.
func (handler *Handler) InternalRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/validate", handler.validate)
	router.Post("/purge", handler.purge)

	return router
}

// # Request Payloads

type signUpRequest struct {
	Email    string  `json:"email"`
	Login    string  `json:"login"`
	Password string  `json:"password"`
	Name     *string `json:"name"`
	Surname  *string `json:"surname"`
}

type signInRequest struct {
	EmailOrLogin string `json:"emailOrLogin"`
	Password     string `json:"password"`
}

type validateRequest struct {
	Token string `json:"token"`
}

type purgeRequest struct {
	UserID       string `json:"userId"`
	ProviderName string `json:"providerName"`
}

// # Public Handlers

/*
signUp registers a local account.

POST /api/v1/auth/local/signup

Response:
  - 201: {id}: Owning user id; a verification email is on its way
  - 400: Validation failure
  - 409: Registration failed
*/
func (handler *Handler) signUp(writer http.ResponseWriter, request *http.Request) {
	var input signUpRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldEmail, input.Email).
		Email(fieldEmail, input.Email).
		Login(fieldLogin, input.Login).
		Password(fieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	outcome, err := handler.authenticator.SignUpLocal(request.Context(), SignUpInput{
		Email:    input.Email,
		Login:    input.Login,
		Password: input.Password,
		Name:     input.Name,
		Surname:  input.Surname,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Created(writer, map[string]string{"id": outcome.UserID})
}

/*
signIn opens a session with a password.

POST /api/v1/auth/local/signin

Response:
  - 200: Issued: Token and expiry, also set as a cookie
  - 401: Invalid login credentials
  - 403: Email address is not verified
*/
func (handler *Handler) signIn(writer http.ResponseWriter, request *http.Request) {
	var input signInRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldEmailOrLogin, input.EmailOrLogin).
		Required(fieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	issued, err := handler.authenticator.SignInLocal(request.Context(), SignInInput{
		EmailOrLogin: input.EmailOrLogin,
		Password:     input.Password,
	})
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	SetCookie(writer, issued, handler.secureCookies)
	respond.OK(writer, issued)
}

/*
rotate replaces the presented token.

POST /api/v1/auth/rotate

Response:
  - 200: Issued: The replacement token
  - 401: Invalid token
*/
func (handler *Handler) rotate(writer http.ResponseWriter, request *http.Request) {
	issued, err := handler.manager.RotateToken(request.Context(), requestutil.BearerToken(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	SetCookie(writer, issued, handler.secureCookies)
	respond.OK(writer, issued)
}

/*
logout closes the presented session. Repeating it succeeds.

POST /api/v1/auth/logout

Response:
  - 204: Session closed or already gone
*/
func (handler *Handler) logout(writer http.ResponseWriter, request *http.Request) {
	if err := handler.manager.Logout(request.Context(), requestutil.BearerToken(request)); err != nil {
		respond.Error(writer, request, err)
		return
	}

	ClearCookie(writer, handler.secureCookies)
	respond.NoContent(writer)
}

func (handler *Handler) current(writer http.ResponseWriter, request *http.Request) {
	claims, err := requestutil.RequiredSession(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]any{
		"userId":       claims.Subject,
		"deviceId":     claims.DeviceID,
		"providerName": claims.ProviderName,
		"expiresAt":    claims.ExpiresAt.Time,
	})
}

// # Internal Handlers

func (handler *Handler) validate(writer http.ResponseWriter, request *http.Request) {
	var input validateRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldToken, input.Token)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	claims, err := handler.manager.ValidateToken(request.Context(), input.Token)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, claims)
}

func (handler *Handler) purge(writer http.ResponseWriter, request *http.Request) {
	var input purgeRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.UUID(fieldUserID, input.UserID).
		OneOf(fieldProvider, input.ProviderName, "local", "google", "github")
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	deleted, err := handler.manager.DeleteAllProviderSessions(request.Context(), input.UserID, input.ProviderName)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, map[string]int64{"deleted": deleted})
}

// # Cookies

// SetCookie stores the session token in an HttpOnly cookie.
func SetCookie(writer http.ResponseWriter, issued *Issued, secure bool) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    issued.Token,
		Path:     constants.SessionCookiePath,
		Expires:  issued.ExpiresAt,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}

// ClearCookie expires the session cookie.
func ClearCookie(writer http.ResponseWriter, secure bool) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.SessionCookieName,
		Value:    "",
		Path:     constants.SessionCookiePath,
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   secure,
		SameSite: http.SameSiteLaxMode,
	})
}
