package tenant

import (
	"context"
	"testing"
)

func TestPrincipalOwns(t *testing.T) {
	p := Principal{UserID: "u1", OrganizationID: "org-a", Role: RoleStaff}

	if !p.Owns("org-a") {
		t.Fatal("staff should own its organization")
	}

	if p.Owns("org-b") {
		t.Fatal("staff must not own another organization")
	}

	if Anonymous.Owns("") {
		t.Fatal("anonymous owns nothing")
	}
}

func TestContextRoundTrip(t *testing.T) {
	if _, ok := FromContext(context.Background()); ok {
		t.Fatal("empty context must not carry a principal")
	}

	want := Principal{UserID: "u1", OrganizationID: "org-a", Role: RoleAdmin}

	got, ok := FromContext(WithPrincipal(context.Background(), want))
	if !ok || got != want {
		t.Fatalf("got %+v, want %+v", got, want)
	}
}

func TestParseRole(t *testing.T) {
	cases := map[string]Role{"ADMIN": RoleAdmin, " staff ": RoleStaff, "public": RoleAnonymous, "whatever": RoleMember}
	for in, want := range cases {
		if got := ParseRole(in); got != want {
			t.Errorf("ParseRole(%q) = %v, want %v", in, got, want)
		}
	}
}
