// Package auth covers the two auth surfaces: basic-auth admin users with
// role-based permissions for workspace management, and short-lived bearer
// tokens issued to workspace API keys.
package auth

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"golang.org/x/crypto/bcrypt"
)

var (
	ErrUnauthorized    = errors.New("unauthorized")
	ErrForbidden       = errors.New("forbidden")
	ErrUserNotFound    = errors.New("user not found")
	ErrInvalidPassword = errors.New("invalid password")
)

type Role string

const (
	RoleAdmin  Role = "admin"
	RoleEditor Role = "editor"
	RoleViewer Role = "viewer"
)

type Permission string

const (
	PermissionWorkspaceRead   Permission = "workspace:read"
	PermissionWorkspaceWrite  Permission = "workspace:write"
	PermissionWorkspaceDelete Permission = "workspace:delete"
	PermissionCreditsRead     Permission = "credits:read"
	PermissionAdminManage     Permission = "admin:manage"
)

// Roles nest: every editor grant includes the viewer grants, every admin
// grant includes the editor grants. Deleting workspaces and managing admin
// accounts stay admin-only.
var grants = func() map[Role]map[Permission]bool {
	viewer := []Permission{PermissionWorkspaceRead, PermissionCreditsRead}
	editor := append([]Permission{PermissionWorkspaceWrite}, viewer...)
	admin := append([]Permission{PermissionWorkspaceDelete, PermissionAdminManage}, editor...)

	out := make(map[Role]map[Permission]bool, 3)
	for role, perms := range map[Role][]Permission{
		RoleViewer: viewer,
		RoleEditor: editor,
		RoleAdmin:  admin,
	} {
		set := make(map[Permission]bool, len(perms))
		for _, p := range perms {
			set[p] = true
		}
		out[role] = set
	}
	return out
}()

// Can reports whether the role holds the permission. Unknown roles hold
// nothing.
func (r Role) Can(p Permission) bool {
	return grants[r][p]
}

// dummyHash keeps Authenticate's timing flat for unknown usernames; the
// compare always runs against something.
var dummyHash, _ = HashPassword("adpulse-no-such-user")

// Authenticator validates admin credentials against the user repository.
type Authenticator struct {
	users AdminUserRepository
}

func NewAuthenticator(users AdminUserRepository) *Authenticator {
	return &Authenticator{users: users}
}

func (a *Authenticator) Authenticate(ctx context.Context, username, password string) (*AdminUser, error) {
	user, err := a.users.GetByUsername(ctx, username)
	if err != nil {
		bcrypt.CompareHashAndPassword([]byte(dummyHash), []byte(password))
		return nil, ErrUserNotFound
	}
	if !user.Enabled {
		return nil, ErrUnauthorized
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, ErrInvalidPassword
	}
	return user, nil
}

func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

type contextKey string

const userContextKey contextKey = "admin_user"

func WithUser(ctx context.Context, user *AdminUser) context.Context {
	return context.WithValue(ctx, userContextKey, user)
}

func UserFromContext(ctx context.Context) (*AdminUser, bool) {
	user, ok := ctx.Value(userContextKey).(*AdminUser)
	return user, ok
}

// RBACMiddleware guards the admin surface. RequireAuth resolves basic-auth
// credentials into a context user; RequirePermission checks that user's
// role grants.
type RBACMiddleware struct {
	auth *Authenticator
}

func NewRBACMiddleware(auth *Authenticator) *RBACMiddleware {
	return &RBACMiddleware{auth: auth}
}

func (m *RBACMiddleware) RequireAuth(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		username, password, ok := r.BasicAuth()
		if !ok {
			w.Header().Set("WWW-Authenticate", `Basic realm="adpulse admin"`)
			denyJSON(w, http.StatusUnauthorized, "authentication required")
			return
		}

		user, err := m.auth.Authenticate(r.Context(), username, password)
		if err != nil {
			denyJSON(w, http.StatusUnauthorized, "invalid credentials")
			return
		}

		next.ServeHTTP(w, r.WithContext(WithUser(r.Context(), user)))
	})
}

func (m *RBACMiddleware) RequirePermission(permission Permission) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, ok := UserFromContext(r.Context())
			if !ok {
				denyJSON(w, http.StatusUnauthorized, "authentication required")
				return
			}
			if !user.Role.Can(permission) {
				denyJSON(w, http.StatusForbidden, string(permission)+" permission required")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// denyJSON mirrors the public API's error envelope so admin clients see
// one shape everywhere.
func denyJSON(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"error": map[string]string{"message": message},
	})
}
