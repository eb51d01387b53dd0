package provider

import (
	"context"
	"reflect"
	"testing"

	"carelog/internal/auth"
)

type stubProvider struct{ name string }

func (s stubProvider) Name() string                   { return s.name }
func (s stubProvider) AuthCodeURL(_, _ string) string { return "https://idp/" + s.name }
func (s stubProvider) ExchangeCode(context.Context, string, string) (*auth.Identity, error) {
	return &auth.Identity{Provider: s.name}, nil
}

func TestRegistry(t *testing.T) {
	r := NewRegistry(stubProvider{"keycloak"}, nil, stubProvider{"google"})

	if got := r.Names(); !reflect.DeepEqual(got, []string{"google", "keycloak"}) {
		t.Fatalf("Names() = %v", got)
	}
	p, err := r.Get("google")
	if err != nil || p.Name() != "google" {
		t.Fatalf("Get(google) = %v, %v", p, err)
	}
	if _, err := r.Get("github"); err == nil {
		t.Fatal("expected error for unknown provider")
	}
}
