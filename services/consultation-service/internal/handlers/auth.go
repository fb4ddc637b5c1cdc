package handlers

import (
	"net/http"

	"github.com/md-rashed-zaman/gurubook/libs/auth"
	"github.com/md-rashed-zaman/gurubook/services/consultation-service/internal/actor"
)

type TokenVerifier interface {
	Verify(raw string) (*auth.Claims, error)
}

// Auth turns bearer tokens into an actor on the request context.
type Auth struct {
	verifier TokenVerifier
}

func NewAuth(v TokenVerifier) *Auth {
	return &Auth{verifier: v}
}

// Require rejects requests without a valid token (401) or without one of
// roles (403). No roles means any authenticated caller.
func (a *Auth) Require(next http.HandlerFunc, roles ...actor.Role) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := auth.BearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "missing bearer token"})
			return
		}
		claims, err := a.verifier.Verify(raw)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "invalid token"})
			return
		}
		act := actor.New(claims.Subject, claims.Email, claims.Roles)
		if len(roles) > 0 && !act.HasAny(roles...) {
			writeJSON(w, http.StatusForbidden, errorResponse{Error: "forbidden", Message: "role not permitted"})
			return
		}
		next.ServeHTTP(w, r.WithContext(actor.WithActor(r.Context(), act)))
	})
}

// current is only called behind Require.
func current(r *http.Request) actor.Actor {
	a, _ := actor.FromContext(r.Context())
	return a
}
