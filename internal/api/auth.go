package api

import (
	"context"
	"net/http"
	"strings"

	"wasteroute/internal/auth"
)

type ctxKeyPrincipal struct{}

// authenticate resolves the bearer token. Requests without one act as planners;
// a token that fails verification is rejected.
func (s *Server) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		p := auth.Principal{Subject: "anonymous", Role: auth.RolePlanner}
		authz := r.Header.Get("Authorization")
		if strings.HasPrefix(strings.ToLower(authz), "bearer ") && s.Auth != nil {
			pr, err := s.Auth.Verify(strings.TrimSpace(authz[len("Bearer "):]))
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer error="invalid_token"`)
				writeProblem(w, http.StatusUnauthorized, "Unauthorized", err.Error(), r.URL.Path)
				return
			}
			p = pr
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKeyPrincipal{}, p)))
	})
}

func principal(r *http.Request) auth.Principal {
	if p, ok := r.Context().Value(ctxKeyPrincipal{}).(auth.Principal); ok {
		return p
	}
	return auth.Principal{Role: auth.RolePlanner}
}

func requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if !principal(r).IsAdmin() {
			writeProblem(w, http.StatusForbidden, "Forbidden", "admin required", r.URL.Path)
			return
		}
		next(w, r)
	}
}
