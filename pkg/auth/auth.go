// Package auth carries the identity of the acting user through a request.
// Authentication itself happens upstream; this package only trusts the
// identity headers set by the fronting proxy and maps roles to capabilities.
package auth

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/hashicorp/go-hclog"
)

const (
	// ActorIDHeader carries the authenticated user's identifier.
	ActorIDHeader = "X-Actor-ID"

	// ActorRoleHeader carries the authenticated user's role.
	ActorRoleHeader = "X-Actor-Role"
)

// Role is a clinic role.
type Role string

const (
	RoleDirector   Role = "director"
	RoleSupervisor Role = "supervisor"
	RoleSecretary  Role = "secretaria"
	RoleStudent    Role = "estudiante"
	RoleAdmin      Role = "admin"
)

// ParseRole parses a role name, case-insensitively.
func ParseRole(s string) (Role, error) {
	switch r := Role(strings.ToLower(strings.TrimSpace(s))); r {
	case RoleDirector, RoleSupervisor, RoleSecretary, RoleStudent, RoleAdmin:
		return r, nil
	default:
		return "", fmt.Errorf("unknown role %q", s)
	}
}

// Actor is the identity acting on the core.
type Actor struct {
	ID   string
	Role Role
}

// Capabilities is the explicit permission set derived from a role.
type Capabilities struct {
	// AutoApprove means documents submitted by the actor skip review.
	AutoApprove bool

	// Review means the actor may approve or reject pending documents.
	Review bool
}

// CapabilitiesFor returns the capabilities granted to role.
func CapabilitiesFor(role Role) Capabilities {
	switch role {
	case RoleDirector, RoleSupervisor:
		return Capabilities{AutoApprove: true, Review: true}
	case RoleAdmin:
		return Capabilities{Review: true}
	default:
		return Capabilities{}
	}
}

// Capabilities returns the actor's capabilities.
func (a Actor) Capabilities() Capabilities {
	return CapabilitiesFor(a.Role)
}

type actorKey struct{}

// WithActor returns a copy of ctx carrying actor.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// GetActor returns the actor stored in ctx.
func GetActor(ctx context.Context) (Actor, bool) {
	actor, ok := ctx.Value(actorKey{}).(Actor)
	return actor, ok && actor.ID != ""
}

// Middleware reads the identity headers and stores the actor in the request
// context. Requests without a valid identity are rejected.
func Middleware(next http.Handler, log hclog.Logger) http.Handler {
	if log == nil {
		log = hclog.NewNullLogger()
	}

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(ActorIDHeader))
		if id == "" {
			log.Warn("request without actor identity",
				"method", r.Method,
				"path", r.URL.Path,
			)
			http.Error(w, "No authorization information in request",
				http.StatusUnauthorized)
			return
		}

		role, err := ParseRole(r.Header.Get(ActorRoleHeader))
		if err != nil {
			log.Warn("request with invalid actor role",
				"error", err,
				"actor", id,
				"path", r.URL.Path,
			)
			http.Error(w, "Invalid role", http.StatusUnauthorized)
			return
		}

		ctx := WithActor(r.Context(), Actor{ID: id, Role: role})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
