// Package actor carries the authenticated caller through a request.
package actor

import (
	"context"
	"strings"
)

type Role string

const (
	RoleClient  Role = "client"
	RoleGuru    Role = "guru"
	RoleAdmin   Role = "admin"
	RoleService Role = "service"
)

// ParseRole maps a claim value onto the closed role set.
func ParseRole(s string) (Role, bool) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleClient, RoleGuru, RoleAdmin, RoleService:
		return r, true
	default:
		return "", false
	}
}

type Actor struct {
	UserID string
	Email  string
	Roles  []Role
}

// New drops unknown role strings. A caller without roles is a client.
func New(userID, email string, roles []string) Actor {
	a := Actor{UserID: userID, Email: email}
	for _, raw := range roles {
		if r, ok := ParseRole(raw); ok && !a.Has(r) {
			a.Roles = append(a.Roles, r)
		}
	}
	if len(a.Roles) == 0 {
		a.Roles = []Role{RoleClient}
	}
	return a
}

func (a Actor) Has(role Role) bool {
	for _, r := range a.Roles {
		if r == role {
			return true
		}
	}
	return false
}

// HasAny reports whether a holds at least one of roles.
func (a Actor) HasAny(roles ...Role) bool {
	for _, r := range roles {
		if a.Has(r) {
			return true
		}
	}
	return false
}

type ctxKey int

const ctxKeyActor ctxKey = iota

func WithActor(ctx context.Context, a Actor) context.Context {
	return context.WithValue(ctx, ctxKeyActor, a)
}

func FromContext(ctx context.Context) (Actor, bool) {
	a, ok := ctx.Value(ctxKeyActor).(Actor)
	return a, ok
}
