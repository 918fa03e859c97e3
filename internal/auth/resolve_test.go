package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-resty/resty/v2"

	"agenda.org/internal/roles"
)

type fakeDirectory struct {
	admins  map[string]bool
	members map[string]bool
}

func (d *fakeDirectory) IsAdmin(_ context.Context, email string) (bool, error) {
	return d.admins[email], nil
}

func (d *fakeDirectory) IsOrganizationMember(_ context.Context, email string) (bool, error) {
	return d.members[email], nil
}

func TestResolveDirectoryTiers(t *testing.T) {
	dir := &fakeDirectory{
		admins:  map[string]bool{"root@example.com": true},
		members: map[string]bool{"builder@example.com": true},
	}
	r := NewResolver(dir, "roborregos", "@tec.mx")

	cases := []struct {
		email string
		want  roles.Role
	}{
		{"root@example.com", roles.Admin},
		{"builder@example.com", roles.OrganizationMember},
		{"student@tec.mx", roles.CommunityMember},
		{"anyone@gmail.com", roles.Authenticated},
		{"", roles.Authenticated},
	}
	for _, tc := range cases {
		got, err := r.Resolve(context.Background(), tc.email, "")
		if err != nil {
			t.Fatalf("Resolve(%q): %v", tc.email, err)
		}
		if got != tc.want {
			t.Errorf("Resolve(%q) = %s, want %s", tc.email, got, tc.want)
		}
	}
}

func TestResolveGitHubOrganization(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"login":"SomeOrg"},{"login":"RoBorregos"}]`))
	}))
	defer srv.Close()

	dir := &fakeDirectory{}
	r := NewResolver(dir, "roborregos", "@tec.mx", WithHTTPClient(resty.New()))

	got, err := r.Resolve(context.Background(), "dev@gmail.com", srv.URL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != roles.OrganizationMember {
		t.Fatalf("expected organizationMember via org listing, got %s", got)
	}
}

func TestResolveToleratesOrganizationLookupFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	}))
	defer srv.Close()

	r := NewResolver(&fakeDirectory{}, "roborregos", "@tec.mx")

	got, err := r.Resolve(context.Background(), "student@tec.mx", srv.URL)
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if got != roles.CommunityMember {
		t.Fatalf("failed lookup must fall through to community tier, got %s", got)
	}
}
