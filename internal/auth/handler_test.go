package auth

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterRejectsPasswordMismatch(t *testing.T) {
	h := &Handler{}

	payload := []byte(`{"username":"newuser","email":"new@example.test","password":"Str0ng!pass","confirm_password":"Different1!","role":"student"}`)
	req := httptest.NewRequest(http.MethodPost, "/register", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	h.Register(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}

func TestResetPasswordRejectsMismatch(t *testing.T) {
	h := &Handler{}

	payload := []byte(`{"token":"sometoken","password":"Str0ng!pass","confirm_password":"Other1!pass"}`)
	req := httptest.NewRequest(http.MethodPost, "/reset-password/sometoken", bytes.NewReader(payload))
	w := httptest.NewRecorder()

	h.ResetPassword(w, req)

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d: %s", w.Code, w.Body.String())
	}
}
