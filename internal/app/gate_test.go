package app

import (
	"testing"

	"examhub/internal/auth"
)

func TestDecideGate(t *testing.T) {
	student := &auth.User{ID: 1, Role: "student"}
	instructor := &auth.User{ID: 2, Role: "instructor"}
	admin := &auth.User{ID: 3, Role: "admin"}

	tests := []struct {
		name string
		path string
		user *auth.User
		want gateDecision
	}{
		{"root is public", "/", nil, gateAllow},
		{"login is public", "/login", nil, gateAllow},
		{"otp verify is public", "/auth/verify-otp", nil, gateAllow},
		{"reset with token is public", "/reset-password/abc123", nil, gateAllow},
		{"metrics is public", "/metrics", nil, gateAllow},
		{"static assets are public", "/static/css/app.css", nil, gateAllow},
		{"anonymous exam list redirects", "/exams", nil, gateLogin},
		{"anonymous student page redirects", "/student/dashboard", nil, gateLogin},
		{"student reaches student surface", "/student/exams/5/take", student, gateAllow},
		{"student reaches own profile", "/profile", student, gateAllow},
		{"student reaches two factor toggle", "/profile/two-factor", student, gateAllow},
		{"student blocked from exams", "/exams", student, gateForbidden},
		{"student blocked from analytics", "/analytics/login-attempts", student, gateForbidden},
		{"instructor blocked from student surface", "/student/dashboard", instructor, gateForbidden},
		{"instructor reaches exams", "/exams/12/questions", instructor, gateAllow},
		{"admin reaches analytics", "/analytics/login-attempts", admin, gateAllow},
		{"admin blocked from student surface", "/student/exams/5/take", admin, gateForbidden},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := decideGate(tc.path, tc.user); got != tc.want {
				t.Fatalf("decideGate(%q) = %d, want %d", tc.path, got, tc.want)
			}
		})
	}
}

func TestIsPublicPath(t *testing.T) {
	if !isPublicPath("/reset-password") {
		t.Fatalf("expected /reset-password to be public")
	}
	if isPublicPath("/exams") {
		t.Fatalf("expected /exams to require a session")
	}
	if isPublicPath("/loginx") {
		t.Fatalf("prefix match must not leak beyond path segments")
	}
}
