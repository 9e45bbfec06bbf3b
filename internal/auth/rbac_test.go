package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRoleCan(t *testing.T) {
	tests := []struct {
		name       string
		role       Role
		permission Permission
		want       bool
	}{
		{"admin can delete workspaces", RoleAdmin, PermissionWorkspaceDelete, true},
		{"admin can manage admins", RoleAdmin, PermissionAdminManage, true},
		{"editor can write workspaces", RoleEditor, PermissionWorkspaceWrite, true},
		{"editor cannot delete workspaces", RoleEditor, PermissionWorkspaceDelete, false},
		{"editor cannot manage admins", RoleEditor, PermissionAdminManage, false},
		{"viewer can read workspaces", RoleViewer, PermissionWorkspaceRead, true},
		{"viewer can read credits", RoleViewer, PermissionCreditsRead, true},
		{"viewer cannot write", RoleViewer, PermissionWorkspaceWrite, false},
		{"unknown role has nothing", Role("ghost"), PermissionWorkspaceRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.role.Can(tt.permission); got != tt.want {
				t.Errorf("%s.Can(%s) = %v, want %v", tt.role, tt.permission, got, tt.want)
			}
		})
	}
}

func TestRoleGrantsNest(t *testing.T) {
	// Editors hold everything viewers do, admins everything editors do.
	for _, p := range []Permission{PermissionWorkspaceRead, PermissionCreditsRead} {
		if !RoleEditor.Can(p) {
			t.Errorf("editor missing viewer grant %s", p)
		}
	}
	for _, p := range []Permission{PermissionWorkspaceRead, PermissionWorkspaceWrite, PermissionCreditsRead} {
		if !RoleAdmin.Can(p) {
			t.Errorf("admin missing editor grant %s", p)
		}
	}
}

func TestAuthenticate(t *testing.T) {
	repo := NewInMemoryAdminUserRepository()
	a := NewAuthenticator(repo)
	ctx := context.Background()

	user, err := a.Authenticate(ctx, "admin", "admin")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if user.Role != RoleAdmin {
		t.Errorf("role = %s, want admin", user.Role)
	}

	if _, err := a.Authenticate(ctx, "admin", "wrong"); err != ErrInvalidPassword {
		t.Errorf("expected ErrInvalidPassword, got %v", err)
	}

	if _, err := a.Authenticate(ctx, "nobody", "admin"); err != ErrUserNotFound {
		t.Errorf("expected ErrUserNotFound, got %v", err)
	}
}

func TestAuthenticate_DisabledUser(t *testing.T) {
	repo := NewInMemoryAdminUserRepository()
	ctx := context.Background()

	hash, _ := HashPassword("secret")
	repo.Create(ctx, &AdminUser{
		ID:           "u2",
		Username:     "suspended",
		PasswordHash: hash,
		Role:         RoleViewer,
		Enabled:      false,
	})

	a := NewAuthenticator(repo)
	if _, err := a.Authenticate(ctx, "suspended", "secret"); err != ErrUnauthorized {
		t.Errorf("expected ErrUnauthorized, got %v", err)
	}
}

func TestRequireAuth(t *testing.T) {
	repo := NewInMemoryAdminUserRepository()
	m := NewRBACMiddleware(NewAuthenticator(repo))

	var gotUser *AdminUser
	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotUser, _ = UserFromContext(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/workspaces", nil)
	req.SetBasicAuth("admin", "admin")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
	if gotUser == nil || gotUser.Username != "admin" {
		t.Errorf("expected admin user in context, got %+v", gotUser)
	}
}

func TestRequireAuth_MissingCredentials(t *testing.T) {
	m := NewRBACMiddleware(NewAuthenticator(NewInMemoryAdminUserRepository()))

	handler := m.RequireAuth(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler should not run without credentials")
	}))

	req := httptest.NewRequest(http.MethodGet, "/admin/workspaces", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
	if rec.Header().Get("WWW-Authenticate") == "" {
		t.Error("expected WWW-Authenticate challenge")
	}
}

func TestRequirePermission_Forbidden(t *testing.T) {
	m := NewRBACMiddleware(NewAuthenticator(NewInMemoryAdminUserRepository()))

	handler := m.RequirePermission(PermissionWorkspaceDelete)(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			t.Error("handler should not run for viewer")
		}),
	)

	req := httptest.NewRequest(http.MethodDelete, "/admin/workspaces/ws1", nil)
	req = req.WithContext(WithUser(req.Context(), &AdminUser{ID: "v", Role: RoleViewer}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	if rec.Code != http.StatusForbidden {
		t.Errorf("status = %d, want 403", rec.Code)
	}
}

func TestExtractBearerToken(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/v1/credits", nil)
	req.Header.Set("Authorization", "Bearer apt_abc123")

	if got := ExtractBearerToken(req); got != "apt_abc123" {
		t.Errorf("token = %q, want apt_abc123", got)
	}

	req.Header.Set("Authorization", "Basic xyz")
	if got := ExtractBearerToken(req); got != "" {
		t.Errorf("token = %q, want empty for basic auth", got)
	}
}
