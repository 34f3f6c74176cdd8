// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package identity

import "time"

// # Providers

// ProviderName identifies a supported login method.
type ProviderName string

const (
	ProviderLocal  ProviderName = "local"
	ProviderGoogle ProviderName = "google"
	ProviderGitHub ProviderName = "github"
)

// Valid reports whether the name belongs to the seeded provider catalog.
func (name ProviderName) Valid() bool {
	switch name {
	case ProviderLocal, ProviderGoogle, ProviderGitHub:
		return true
	}
	return false
}

// IsLocal reports whether the provider is the password-based one.
func (name ProviderName) IsLocal() bool {
	return name == ProviderLocal
}

// Provider is one row of the read-only provider catalog.
type Provider struct {
	ID   string       `json:"id"`
	Name ProviderName `json:"name"`
}

// # Aggregates

// User is the identity root. Its credentials live in [UsersProvider] rows that
// reference it by id.
type User struct {
	ID        string    `json:"id"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// UsersProvider binds a user to one provider instance.
//
// For local credentials Sub equals the owning user id and Login is user-chosen.
// For federated credentials Sub is the provider subject and Login is
// "email:provider".
type UsersProvider struct {
	ID              string       `json:"id"`
	UserLocalID     string       `json:"userLocalId,omitempty"`
	ProviderLocalID string       `json:"providerLocalId"`
	ProviderName    ProviderName `json:"providerName"`

	Sub     string  `json:"sub"`
	Email   string  `json:"email"`
	Login   string  `json:"login"`
	Name    *string `json:"name,omitempty"`
	Surname *string `json:"surname,omitempty"`
	Avatar  *string `json:"avatar,omitempty"`

	// Password is a bcrypt digest and never serialized.
	Password string `json:"-"`

	EmailIsValidated bool      `json:"emailIsValidated"`
	CreatedAt        time.Time `json:"createdAt"`
	UpdatedAt        time.Time `json:"updatedAt"`
}

// UserView is a user together with every credential it owns.
type UserView struct {
	User
	Providers []UsersProvider `json:"providers"`
}

// # Inbound Attempts

// Attempt is a raw sign-up or sign-in request for one provider, before any
// identifiers or defaults are assigned.
type Attempt struct {
	ProviderName ProviderName `json:"providerName"`
	Sub          string       `json:"sub,omitempty"`
	Email        string       `json:"email"`
	Login        string       `json:"login,omitempty"`
	Name         *string      `json:"name,omitempty"`
	Surname      *string      `json:"surname,omitempty"`
	Avatar       *string      `json:"avatar,omitempty"`
	Password     string       `json:"password,omitempty"`

	// EmailIsValidated is honoured for local attempts only.
	EmailIsValidated bool `json:"emailIsValidated,omitempty"`
}

// Credential is what the Auth service needs to check a local password.
type Credential struct {
	ID               string `json:"id"`
	UserLocalID      string `json:"userLocalId"`
	PasswordHash     string `json:"passwordHash"`
	Email            string `json:"email"`
	EmailIsValidated bool   `json:"emailIsValidated"`
}
