// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

// Package oauth turns Google and GitHub authorization codes into identity
// attempts for external sign-in.
//
// # Architecture
//
// A [Provider] wraps one [oauth2.Config] plus the profile endpoints of that
// provider. The [Handler] runs the browser redirect dance and hands the
// resulting attempt to the Auth service's [session.Authenticator].
package oauth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/github"
	"golang.org/x/oauth2/google"

	"github.com/taibuivan/idgate/internal/platform/apperr"
	"github.com/taibuivan/idgate/internal/platform/config"
	"github.com/taibuivan/idgate/internal/platform/constants"
	"github.com/taibuivan/idgate/internal/users/identity"
	"github.com/taibuivan/idgate/pkg/pointer"
)

// Default profile endpoints.
const (
	GoogleProfileURL = "https://www.googleapis.com/oauth2/v2/userinfo"
	GitHubProfileURL = "https://api.github.com/user"
	GitHubEmailsURL  = "https://api.github.com/user/emails"
)

var (
	// ErrExchangeFailed covers a rejected or unusable authorization code.
	ErrExchangeFailed = apperr.Unauthorized("Authorization code was rejected")

	// ErrUnverifiedEmail is returned when the provider cannot vouch for the email.
	ErrUnverifiedEmail = apperr.Forbidden("The provider account has no verified email")
)

// Options configures a [Provider].
type Options struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string

	// Endpoint, ProfileURL and EmailsURL override the provider defaults.
	Endpoint   *oauth2.Endpoint
	ProfileURL string
	EmailsURL  string
}

// Provider exchanges codes with one federated identity provider.
type Provider struct {
	name    identity.ProviderName
	config  *oauth2.Config
	profile func(context context.Context, client *http.Client) (*identity.Attempt, error)
}

// NewGoogle creates the Google provider.
func NewGoogle(options Options) *Provider {
	provider := &Provider{
		name:   identity.ProviderGoogle,
		config: newConfig(options, google.Endpoint, "openid", "email", "profile"),
	}
	profileURL := pointer.Or(options.ProfileURL, GoogleProfileURL)
	provider.profile = func(context context.Context, client *http.Client) (*identity.Attempt, error) {
		return fetchGoogle(context, client, profileURL)
	}
	return provider
}

// NewGitHub creates the GitHub provider.
func NewGitHub(options Options) *Provider {
	provider := &Provider{
		name:   identity.ProviderGitHub,
		config: newConfig(options, github.Endpoint, "read:user", "user:email"),
	}
	profileURL := pointer.Or(options.ProfileURL, GitHubProfileURL)
	emailsURL := pointer.Or(options.EmailsURL, GitHubEmailsURL)
	provider.profile = func(context context.Context, client *http.Client) (*identity.Attempt, error) {
		return fetchGitHub(context, client, profileURL, emailsURL)
	}
	return provider
}

/*
NewProviders builds every provider whose client ID is configured.

Parameters:
  - settings: config.OAuthConfig

Returns:
  - map[identity.ProviderName]*Provider: Enabled providers, possibly empty
*/
func NewProviders(settings config.OAuthConfig) map[identity.ProviderName]*Provider {
	providers := map[identity.ProviderName]*Provider{}

	if settings.GoogleClientID != "" {
		providers[identity.ProviderGoogle] = NewGoogle(Options{
			ClientID:     settings.GoogleClientID,
			ClientSecret: settings.GoogleClientSecret,
			RedirectURL:  settings.CallbackBaseURL + "/google/callback",
		})
	}
	if settings.GitHubClientID != "" {
		providers[identity.ProviderGitHub] = NewGitHub(Options{
			ClientID:     settings.GitHubClientID,
			ClientSecret: settings.GitHubClientSecret,
			RedirectURL:  settings.CallbackBaseURL + "/github/callback",
		})
	}

	return providers
}

// Name returns the provider this client talks to.
func (provider *Provider) Name() identity.ProviderName { return provider.name }

// AuthCodeURL returns the consent page URL carrying state.
func (provider *Provider) AuthCodeURL(state string) string {
	return provider.config.AuthCodeURL(state)
}

/*
Exchange trades an authorization code for the caller's provider profile.

Parameters:
  - ctx: context.Context
  - code: string

Returns:
  - *identity.Attempt: A federated attempt for the reconciliation engine
  - error: ErrExchangeFailed, ErrUnverifiedEmail or upstream failures
*/
func (provider *Provider) Exchange(ctx context.Context, code string) (*identity.Attempt, error) {
	token, err := provider.config.Exchange(ctx, code)
	if err != nil {
		var retrieveErr *oauth2.RetrieveError
		if errors.As(err, &retrieveErr) {
			return nil, ErrExchangeFailed
		}
		return nil, apperr.Upstream(fmt.Errorf("oauth_exchange_failed: %w", err))
	}

	profileCtx, cancel := context.WithTimeout(ctx, constants.OAuthProfileTimeout)
	defer cancel()

	attempt, err := provider.profile(profileCtx, provider.config.Client(profileCtx, token))
	if err != nil {
		return nil, err
	}
	attempt.ProviderName = provider.name

	return attempt, nil
}

// # Profile Fetching

type googleProfile struct {
	ID            string `json:"id"`
	Email         string `json:"email"`
	VerifiedEmail bool   `json:"verified_email"`
	GivenName     string `json:"given_name"`
	FamilyName    string `json:"family_name"`
	Picture       string `json:"picture"`
}

func fetchGoogle(ctx context.Context, client *http.Client, profileURL string) (*identity.Attempt, error) {
	var profile googleProfile
	if err := getJSON(ctx, client, profileURL, &profile); err != nil {
		return nil, err
	}

	if profile.Email == "" || !profile.VerifiedEmail {
		return nil, ErrUnverifiedEmail
	}

	return &identity.Attempt{
		Sub:     profile.ID,
		Email:   profile.Email,
		Name:    pointer.NonZero(profile.GivenName),
		Surname: pointer.NonZero(profile.FamilyName),
		Avatar:  pointer.NonZero(profile.Picture),
	}, nil
}

type githubProfile struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Name      string `json:"name"`
	AvatarURL string `json:"avatar_url"`
}

type githubEmail struct {
	Email    string `json:"email"`
	Primary  bool   `json:"primary"`
	Verified bool   `json:"verified"`
}

func fetchGitHub(ctx context.Context, client *http.Client, profileURL, emailsURL string) (*identity.Attempt, error) {
	var profile githubProfile
	if err := getJSON(ctx, client, profileURL, &profile); err != nil {
		return nil, err
	}

	// The public profile email is unverified; only the emails list carries the flag.
	var emails []githubEmail
	if err := getJSON(ctx, client, emailsURL, &emails); err != nil {
		return nil, err
	}

	email := primaryVerified(emails)
	if email == "" {
		return nil, ErrUnverifiedEmail
	}

	return &identity.Attempt{
		Sub:    strconv.FormatInt(profile.ID, 10),
		Email:  email,
		Name:   pointer.NonZero(pointer.Or(profile.Name, profile.Login)),
		Avatar: pointer.NonZero(profile.AvatarURL),
	}, nil
}

// primaryVerified prefers the primary address and falls back to any verified one.
func primaryVerified(emails []githubEmail) string {
	var found string
	for _, candidate := range emails {
		if !candidate.Verified {
			continue
		}
		if candidate.Primary {
			return candidate.Email
		}
		if found == "" {
			found = candidate.Email
		}
	}
	return found
}

func getJSON(ctx context.Context, client *http.Client, url string, target any) error {
	request, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("oauth_profile_request_failed: %w", err)
	}
	request.Header.Set("Accept", "application/json")

	response, err := client.Do(request)
	if err != nil {
		return apperr.Upstream(fmt.Errorf("oauth_profile_fetch_failed: %w", err))
	}
	defer func() { _ = response.Body.Close() }()

	if response.StatusCode != http.StatusOK {
		return apperr.Upstream(fmt.Errorf("oauth_profile_fetch_failed: status %d from %s", response.StatusCode, url))
	}

	if err := json.NewDecoder(response.Body).Decode(target); err != nil {
		return apperr.Upstream(fmt.Errorf("oauth_profile_decode_failed: %w", err))
	}
	return nil
}

// # Helpers

func newConfig(options Options, endpoint oauth2.Endpoint, scopes ...string) *oauth2.Config {
	if options.Endpoint != nil {
		endpoint = *options.Endpoint
	}
	return &oauth2.Config{
		ClientID:     options.ClientID,
		ClientSecret: options.ClientSecret,
		RedirectURL:  options.RedirectURL,
		Endpoint:     endpoint,
		Scopes:       scopes,
	}
}
