/*
Package auth resolves the acting user of an HTTP request.

PURPOSE:
  The leave workflow needs to know who is calling and whether they may
  decide on requests. Identity comes from a Provider; the middleware puts
  the resolved Actor in the request context for handlers to read.

PROVIDERS:
  JWT:     HS256 bearer tokens carrying user_id and role claims
  Static:  one fixed identity, for local development only

ROLES:
  admin     may list all requests, view stats and approve/reject
  employee  may apply and read their own requests and balance
*/
package auth

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

var (
	ErrUnauthenticated = errors.New("authentication required")
	ErrForbidden       = errors.New("insufficient permissions")
)

// Role is what an actor is allowed to do.
type Role string

const (
	RoleAdmin    Role = "admin"
	RoleEmployee Role = "employee"
)

// ParseRole accepts admin or employee. "user" is read as employee.
func ParseRole(raw string) (Role, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "admin":
		return RoleAdmin, nil
	case "employee", "user":
		return RoleEmployee, nil
	}
	return "", fmt.Errorf("unknown role %q", raw)
}

// Actor is the authenticated caller.
type Actor interface {
	ID() int64
	Role() Role
}

// Identity is the plain Actor implementation.
type Identity struct {
	UserID   int64
	UserRole Role
}

func (i Identity) ID() int64  { return i.UserID }
func (i Identity) Role() Role { return i.UserRole }

// Provider authenticates a request.
type Provider interface {
	Authenticate(r *http.Request) (Actor, error)
}

// =============================================================================
// CONTEXT
// =============================================================================

type ctxKey struct{}

// WithActor returns ctx carrying a.
func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKey{}, a)
}

// FromContext returns the actor stored by Middleware.
func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKey{}).(Actor)
	return a, ok
}
