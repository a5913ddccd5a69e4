// Package auth decides whether a connecting identity may exercise a
// capability. Identity extraction from the HTTP upgrade request is
// pluggable; login flows live outside this service.
package auth

import (
	"errors"
	"net/http"
)

// ErrUnauthorized is returned when no identity is present on a request
// that requires one.
var ErrUnauthorized = errors.New("auth: authentication required")

// ErrForbidden is returned when an identity is present but lacks the
// required capability.
var ErrForbidden = errors.New("auth: insufficient permissions")

// Identity is the authenticated caller of a gateway operation.
type Identity struct {
	UserID      string
	DisplayName string
}

// IdentityFunc extracts the caller's identity from an HTTP request.
// It returns ErrUnauthorized when the request carries no usable
// credentials.
type IdentityFunc func(r *http.Request) (Identity, error)

// HeaderIdentity reads the identity from trusted proxy headers
// (X-User-Id, X-User-Name). Deployments that terminate authentication
// upstream use this; the display name falls back to the user id.
func HeaderIdentity(r *http.Request) (Identity, error) {
	userID := r.Header.Get("X-User-Id")
	if userID == "" {
		return Identity{}, ErrUnauthorized
	}
	name := r.Header.Get("X-User-Name")
	if name == "" {
		name = userID
	}
	return Identity{UserID: userID, DisplayName: name}, nil
}

// Authorizer answers capability checks for an identity.
type Authorizer interface {
	// Authorize returns nil when the identity may exercise the
	// capability, ErrForbidden when it may not.
	Authorize(identity Identity, capability string) error
}

// RoleDirectory resolves the roles granted to a user.
type RoleDirectory interface {
	Roles(userID string) []string
}

// StaticRoles is a RoleDirectory backed by a fixed map. Users absent
// from the map hold the "player" role, matching a deployment where
// every authenticated account may play.
type StaticRoles map[string][]string

func (s StaticRoles) Roles(userID string) []string {
	if roles, ok := s[userID]; ok {
		return roles
	}
	return []string{"player"}
}
