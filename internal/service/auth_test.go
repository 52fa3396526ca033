package service

import (
	"errors"
	"testing"
	"time"

	"chatbot-backend/internal/model"

	"github.com/golang-jwt/jwt/v5"
)

func TestSignAndResolveIdentity(t *testing.T) {
	auth := NewAuthService("test-secret")
	in := model.Identity{ID: "u1", BusinessID: "biz", Role: model.RoleStaff, DisplayName: "Anna", AvatarURL: "https://cdn/a.png"}

	token, err := auth.SignIdentity(in, time.Hour)
	if err != nil {
		t.Fatal(err)
	}
	got, err := auth.ResolveIdentity(token)
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if got != in {
		t.Fatalf("resolved %+v, want %+v", got, in)
	}
}

func TestResolveIdentityNormalizes(t *testing.T) {
	auth := NewAuthService("test-secret")

	tests := []struct {
		name     string
		role     model.Role
		display  string
		wantRole model.Role
		wantName string
	}{
		{"bot role is never granted", model.RoleBot, "Sneaky", model.RoleGuest, "Sneaky"},
		{"unknown role", model.Role("admin"), "X", model.RoleGuest, "X"},
		{"missing name", model.RoleUser, "", model.RoleUser, "Guest"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, err := auth.SignIdentity(model.Identity{ID: "u1", BusinessID: "biz", Role: tt.role, DisplayName: tt.display}, time.Hour)
			if err != nil {
				t.Fatal(err)
			}
			got, err := auth.ResolveIdentity(token)
			if err != nil {
				t.Fatal(err)
			}
			if got.Role != tt.wantRole || got.DisplayName != tt.wantName {
				t.Fatalf("got role %q name %q", got.Role, got.DisplayName)
			}
		})
	}
}

func TestResolveIdentityRejects(t *testing.T) {
	auth := NewAuthService("test-secret")
	other := NewAuthService("other-secret")

	noBusiness, _ := auth.SignIdentity(model.Identity{ID: "u1", Role: model.RoleUser}, time.Hour)
	foreign, _ := other.SignIdentity(model.Identity{ID: "u1", BusinessID: "biz"}, time.Hour)
	expired, _ := auth.SignIdentity(model.Identity{ID: "u1", BusinessID: "biz"}, -time.Minute)
	none := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "u1", "business_id": "biz"})
	unsigned, _ := none.SignedString(jwt.UnsafeAllowNoneSignatureType)

	for name, token := range map[string]string{
		"empty":          "",
		"garbage":        "not-a-token",
		"no business":    noBusiness,
		"wrong secret":   foreign,
		"expired":        expired,
		"unsigned token": unsigned,
	} {
		if _, err := auth.ResolveIdentity(token); !errors.Is(err, ErrInvalidToken) {
			t.Errorf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}
