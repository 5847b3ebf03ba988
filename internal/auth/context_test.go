// ABOUTME: Tests for auth context propagation
// ABOUTME: Covers WithAuth/FromContext round trips and the superuser check

package auth

import (
	"context"
	"testing"
)

func TestWithAuth_FromContext(t *testing.T) {
	authCtx := &AuthContext{UserID: "user-1", Username: "alice"}
	ctx := WithAuth(context.Background(), authCtx)

	got := FromContext(ctx)
	if got != authCtx {
		t.Fatalf("FromContext() = %v, want %v", got, authCtx)
	}
}

func TestFromContext_Missing(t *testing.T) {
	if got := FromContext(context.Background()); got != nil {
		t.Errorf("FromContext() = %v, want nil", got)
	}
}

func TestMustFromContext_Panics(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Error("MustFromContext() should panic without auth")
		}
	}()
	MustFromContext(context.Background())
}

func TestAuthContext_IsAdmin(t *testing.T) {
	var nilCtx *AuthContext
	if nilCtx.IsAdmin() {
		t.Error("nil AuthContext should not be admin")
	}
	if (&AuthContext{}).IsAdmin() {
		t.Error("regular user should not be admin")
	}
	if !(&AuthContext{IsSuperuser: true}).IsAdmin() {
		t.Error("superuser should be admin")
	}
}
