// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package oauth

import (
	"context"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/taibuivan/idgate/internal/auth/session"
	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/platform/ctxutil"
	requestutil "github.com/taibuivan/idgate/internal/platform/request"
	"github.com/taibuivan/idgate/internal/platform/respond"
	"github.com/taibuivan/idgate/internal/platform/sec"
	"github.com/taibuivan/idgate/internal/users/identity"
)

// ErrInvalidState is returned when the callback state does not match the cookie.
var ErrInvalidState = apperr.Unauthorized("Invalid OAuth state")

// SignInFunc opens a session for a reconciled federated identity.
type SignInFunc func(context context.Context, attempt identity.Attempt) (*session.Issued, error)

// Handler runs the authorization-code redirect flow.
type Handler struct {
	providers     map[identity.ProviderName]*Provider
	signIn        SignInFunc
	webURL        string
	cookiePath    string
	secureCookies bool
}

/*
NewHandler constructs the OAuth handler.

Parameters:
  - providers: Enabled providers keyed by name
  - signIn: Usually [session.Authenticator.SignInExternal]
  - webURL: Where the browser lands after the callback
  - cookiePath: Path the handler is mounted under, scoping the state cookie
  - secureCookies: Sets the Secure flag on cookies
*/
func NewHandler(providers map[identity.ProviderName]*Provider, signIn SignInFunc, webURL, cookiePath string, secureCookies bool) *Handler {
	return &Handler{
		providers:     providers,
		signIn:        signIn,
		webURL:        webURL,
		cookiePath:    cookiePath,
		secureCookies: secureCookies,
	}
}

// Routes returns the external sign-in routes.
//
// # Endpoints
//   - GET /{provider}          : Redirects to the provider's consent page.
//   - GET /{provider}/callback : Completes sign-in and redirects to the web app.
func (handler *Handler) Routes() chi.Router {
	router := chi.NewRouter()

	router.Get("/{provider}", handler.start)
	router.Get("/{provider}/callback", handler.callback)

	return router
}

/*
start stores a fresh state in a cookie and redirects to the provider.

GET /api/v1/auth/external/{provider}

Response:
  - 302: Redirect to the consent page
  - 404: Unknown or disabled provider
*/
func (handler *Handler) start(writer http.ResponseWriter, request *http.Request) {
	provider, err := handler.provider(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	state, err := sec.RandomSecret(32)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	http.SetCookie(writer, &http.Cookie{
		Name:     constants.OAuthStateCookieName,
		Value:    state,
		Path:     handler.cookiePath,
		MaxAge:   int(constants.OAuthStateTTL / time.Second),
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})

	http.Redirect(writer, request, provider.AuthCodeURL(state), http.StatusFound)
}

/*
callback checks state, exchanges the code and opens a session.

GET /api/v1/auth/external/{provider}/callback

Response:
  - 302: Redirect to the web app with status=success or status=error
  - 404: Unknown or disabled provider
*/
func (handler *Handler) callback(writer http.ResponseWriter, request *http.Request) {
	provider, err := handler.provider(request)
	if err != nil {
		respond.Error(writer, request, err)
		return
	}

	handler.clearState(writer)

	issued, err := handler.complete(request, provider)
	if err != nil {
		ctxutil.GetLogger(request.Context()).WarnContext(request.Context(), "oauth_sign_in_failed",
			slog.String("provider", string(provider.Name())),
			slog.Any("error", err),
		)
		handler.redirect(writer, request, "error")
		return
	}

	session.SetCookie(writer, issued, handler.secureCookies)
	handler.redirect(writer, request, "success")
}

func (handler *Handler) complete(request *http.Request, provider *Provider) (*session.Issued, error) {
	query := request.URL.Query()
	if reason := query.Get("error"); reason != "" {
		return nil, apperr.Unauthorized("Provider denied access: " + reason)
	}

	cookie, err := request.Cookie(constants.OAuthStateCookieName)
	state := query.Get("state")
	if err != nil || state == "" || subtle.ConstantTimeCompare([]byte(cookie.Value), []byte(state)) != 1 {
		return nil, ErrInvalidState
	}

	attempt, err := provider.Exchange(request.Context(), query.Get("code"))
	if err != nil {
		return nil, err
	}

	return handler.signIn(request.Context(), *attempt)
}

// # Helpers

func (handler *Handler) provider(request *http.Request) (*Provider, error) {
	provider, ok := handler.providers[identity.ProviderName(requestutil.Param(request, "provider"))]
	if !ok {
		return nil, apperr.NotFound("Provider")
	}
	return provider, nil
}

func (handler *Handler) clearState(writer http.ResponseWriter) {
	http.SetCookie(writer, &http.Cookie{
		Name:     constants.OAuthStateCookieName,
		Value:    "",
		Path:     handler.cookiePath,
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   handler.secureCookies,
		SameSite: http.SameSiteLaxMode,
	})
}

func (handler *Handler) redirect(writer http.ResponseWriter, request *http.Request, status string) {
	target := handler.webURL + "/signed-in?" + url.Values{"status": {status}}.Encode()
	http.Redirect(writer, request, target, http.StatusFound)
}
