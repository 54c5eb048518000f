// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	sigilerr "github.com/yunusgungor/tauri-windows-plugin-system/pkg/errors"
)

// AuthenticatedUser is the operator identity attached to a request once its
// bearer token has been validated. The UI shell authenticates as a single
// operator account; Permissions gates which command-surface operations it
// may call (e.g. an inspection-only token that cannot call grant_permission).
type AuthenticatedUser struct {
	ID          string
	Name        string
	Permissions []string
}

// NewAuthenticatedUser validates and constructs an AuthenticatedUser.
func NewAuthenticatedUser(id, name string, permissions []string) (*AuthenticatedUser, error) {
	if id == "" {
		return nil, sigilerr.New(sigilerr.CodeServerConfigInvalid, "authenticated user id must not be empty")
	}
	return &AuthenticatedUser{ID: id, Name: name, Permissions: permissions}, nil
}

// HasPermission reports whether the user's token was configured with perm.
func (u *AuthenticatedUser) HasPermission(perm string) bool {
	for _, p := range u.Permissions {
		if p == perm {
			return true
		}
	}
	return false
}

// TokenValidator resolves a bearer token to the operator it authenticates.
type TokenValidator interface {
	ValidateToken(ctx context.Context, token string) (*AuthenticatedUser, error)
}

type userContextKey struct{}

// UserFromContext returns the authenticated user attached by authMiddleware,
// if any. Handlers on unauthenticated deployments (no TokenValidator
// configured) will never find one and should treat the request as the
// implicit local operator.
func UserFromContext(ctx context.Context) (*AuthenticatedUser, bool) {
	u, ok := ctx.Value(userContextKey{}).(*AuthenticatedUser)
	return u, ok
}

// authMiddleware validates the Authorization: Bearer <token> header against
// validator and attaches the resulting AuthenticatedUser to the request
// context. A nil validator means authentication is disabled (explicitly
// opted into via empty config.Auth.Tokens) and every request passes
// through unauthenticated, matching the host's single-operator,
// localhost-only default deployment.
func authMiddleware(validator TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if validator == nil {
				next.ServeHTTP(w, r)
				return
			}

			header := r.Header.Get("Authorization")
			token, ok := strings.CutPrefix(header, "Bearer ")
			if !ok || token == "" {
				slog.Debug("rejecting request without bearer token", "path", r.URL.Path)
				http.Error(w, `{"error":"missing bearer token"}`, http.StatusUnauthorized)
				return
			}

			user, err := validator.ValidateToken(r.Context(), token)
			if err != nil || user == nil {
				slog.Debug("rejecting request with invalid bearer token", "path", r.URL.Path)
				http.Error(w, `{"error":"invalid bearer token"}`, http.StatusUnauthorized)
				return
			}

			ctx := context.WithValue(r.Context(), userContextKey{}, user)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
