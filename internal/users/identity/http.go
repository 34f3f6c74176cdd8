// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import (
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"

	requestutil "github.com/taibuivan/idgate/internal/platform/request"
	"github.com/taibuivan/idgate/internal/platform/respond"
	"github.com/taibuivan/idgate/internal/platform/validate"
	"github.com/taibuivan/idgate/pkg/pagination"
)

// Request field names used in validation details.
const (
	fieldEmail        = "email"
	fieldLogin        = "login"
	fieldPassword     = "password"
	fieldToken        = "token"
	fieldProviderName = "providerName"
	fieldSub          = "sub"
	fieldEmailOrLogin = "emailOrLogin"
)

// # Definitions & Constructors

// Handler implements the Users service HTTP endpoints.
type Handler struct {
	service *Service
	webURL  string
}

// NewHandler constructs a new [Handler]. webURL receives the browser after email verification.
func NewHandler(service *Service, webURL string) *Handler {
	return &Handler{service: service, webURL: webURL}
}

// Routes returns the public, browser-facing routes.
//
// # Endpoints
//   - GET  /verify-email/{token} : Confirms an email and redirects to the web app.
//   - POST /forgot-password      : Mails a reset link.
//   - POST /reset-password       : Redeems a reset token.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/verify-email/{token}", handler.verifyEmail)
	router.Post("/forgot-password", handler.forgotPassword)
	router.Post("/reset-password", handler.resetPassword)

	return router
}

// InternalRoutes returns the service-to-service routes. They must not be exposed publicly.
//
// # Endpoints
//   - POST   /        : Reconciles a provider attempt.
//   - GET    /        : Lists users.
//   - POST   /lookup  : Resolves a local credential by email or login.
//   - GET    /{id}    : Returns one user.
//   - DELETE /{id}    : Deletes a user and its sessions.
func (handler *Handler) InternalRoutes() chi.Router {
	router := chi.NewRouter()

	router.Post("/", handler.createUser)
	router.Get("/", handler.listUsers)
	router.Post("/lookup", handler.lookup)
	router.Get("/{id}", handler.getUser)
	router.Delete("/{id}", handler.deleteUser)

	return router
}

// # Request Payloads

type forgotPasswordRequest struct {
	EmailOrLogin string `json:"emailOrLogin"`
}

type resetPasswordRequest struct {
	Token    string `json:"token"`
	Password string `json:"password"`
}

type lookupRequest struct {
	EmailOrLogin string `json:"emailOrLogin"`
}

// # Public Handlers

/*
verifyEmail confirms the address carried by the token.

GET /api/v1/users/verify-email/{token}

Response:
  - 302: Redirect to the web app with status=success or status=error
*/
func (handler *Handler) verifyEmail(writer http.ResponseWriter, request *http.Request) {
	status := "error"
	if handler.service.VerifyEmail(request.Context(), requestutil.Param(request, fieldToken)) {
		status = "success"
	}

	target := handler.webURL + "/email-verified?" + url.Values{"status": {status}}.Encode()
	http.Redirect(writer, request, target, http.StatusFound)
}

/*
forgotPassword mails a reset link to a local credential.

POST /api/v1/users/forgot-password

Response:
  - 204: Link sent
  - 404: No local credential matches
*/
func (handler *Handler) forgotPassword(writer http.ResponseWriter, request *http.Request) {
	var input forgotPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldEmailOrLogin, input.EmailOrLogin)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	if err := handler.service.ForgotPassword(request.Context(), input.EmailOrLogin); err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.NoContent(writer)
}

/*
resetPassword replaces a local password using a reset token.

POST /api/v1/users/reset-password

Response:
  - 200: ResetResult, with a warning when sessions could not all be purged
  - 401: Invalid, expired or replayed token
*/
func (handler *Handler) resetPassword(writer http.ResponseWriter, request *http.Request) {
	var input resetPasswordRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldToken, input.Token).
		Password(fieldPassword, input.Password)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	result, err := handler.service.ResetPassword(request.Context(), input.Token, input.Password)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if result.Warning != "" {
		respond.OKWithWarning(writer, result, result.Warning)
		return
	}
	respond.OK(writer, result)
}

// # Internal Handlers

func (handler *Handler) createUser(writer http.ResponseWriter, request *http.Request) {
	var input Attempt
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.OneOf(fieldProviderName, string(input.ProviderName), string(ProviderLocal), string(ProviderGoogle), string(ProviderGitHub)).
		Required(fieldEmail, input.Email).
		Email(fieldEmail, input.Email)
	if input.ProviderName.IsLocal() {
		validator.Login(fieldLogin, input.Login).
			Password(fieldPassword, input.Password)
	} else {
		validator.Required(fieldSub, input.Sub)
	}
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	outcome, err := handler.service.CreateUser(request.Context(), input)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, outcome)
}

func (handler *Handler) lookup(writer http.ResponseWriter, request *http.Request) {
	var input lookupRequest
	if err := requestutil.DecodeJSON(request, &input); err != nil {
		respond.Error(writer, request, validate.ErrInvalidJSON)
		return
	}

	validator := &validate.Validator{}
	validator.Required(fieldEmailOrLogin, input.EmailOrLogin)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	credential, err := handler.service.FindByEmailOrLogin(request.Context(), input.EmailOrLogin)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, credential)
}

func (handler *Handler) listUsers(writer http.ResponseWriter, request *http.Request) {
	users, meta, err := handler.service.ListUsers(request.Context(), pagination.FromRequest(request))
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.Paginated(writer, users, meta)
}

func (handler *Handler) getUser(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.Param(request, "id")

	validator := &validate.Validator{}
	validator.UUID("id", id)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	user, err := handler.service.GetUser(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	respond.OK(writer, user)
}

func (handler *Handler) deleteUser(writer http.ResponseWriter, request *http.Request) {
	id := requestutil.Param(request, "id")

	validator := &validate.Validator{}
	validator.UUID("id", id)
	if err := validator.Err(); err != nil {
		respond.Error(writer, request, err)
		return
	}

	warning, err := handler.service.DeleteUser(request.Context(), id)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	if warning != "" {
		respond.OKWithWarning(writer, map[string]string{"id": id}, warning)
		return
	}
	respond.NoContent(writer)
}
