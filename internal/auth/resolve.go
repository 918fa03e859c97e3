package auth

import (
	"context"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"agenda.org/internal/obs"
	"agenda.org/internal/roles"
)

// DirectoryStore answers allowlist membership questions for role resolution.
type DirectoryStore interface {
	IsAdmin(ctx context.Context, email string) (bool, error)
	IsOrganizationMember(ctx context.Context, email string) (bool, error)
}

type githubOrganization struct {
	Login string `json:"login"`
}

// Resolver maps an identity-provider profile to one of the five role tiers.
// Resolution never hands out a role the directory cannot vouch for: an
// empty or unmatched profile lands on plain authenticated.
type Resolver struct {
	store           DirectoryStore
	http            *resty.Client
	organization    string
	communityDomain string
}

// ResolverOption configures Resolver behavior.
type ResolverOption func(*Resolver)

// WithHTTPClient overrides the outbound client (useful for tests).
func WithHTTPClient(client *resty.Client) ResolverOption {
	return func(r *Resolver) {
		if client != nil {
			r.http = client
		}
	}
}

// NewResolver constructs a Resolver. organization is the GitHub organization
// login whose members are granted organizationMember; communityDomain is the
// email suffix granted communityMember (e.g. "@tec.mx").
func NewResolver(store DirectoryStore, organization, communityDomain string, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		store:           store,
		http:            resty.New().SetTimeout(10 * time.Second),
		organization:    strings.TrimSpace(organization),
		communityDomain: strings.TrimSpace(communityDomain),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Resolve returns the role tier for a signed-in user. organizationsURL is
// the identity provider's listing of the user's organizations; it may be
// empty, and a failed lookup downgrades gracefully rather than failing the
// sign-in. Directory errors do fail resolution: granting a default role on
// a broken allowlist read could under- or over-privilege.
func (r *Resolver) Resolve(ctx context.Context, email, organizationsURL string) (roles.Role, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	if email == "" {
		return roles.Authenticated, nil
	}

	if r.store != nil {
		isAdmin, err := r.store.IsAdmin(ctx, email)
		if err != nil {
			return "", err
		}
		if isAdmin {
			return roles.Admin, nil
		}

		isMember, err := r.store.IsOrganizationMember(ctx, email)
		if err != nil {
			return "", err
		}
		if isMember {
			return roles.OrganizationMember, nil
		}
	}

	if r.organization != "" && organizationsURL != "" && r.inOrganization(ctx, organizationsURL) {
		return roles.OrganizationMember, nil
	}

	if r.communityDomain != "" && strings.HasSuffix(email, r.communityDomain) {
		return roles.CommunityMember, nil
	}

	return roles.Authenticated, nil
}

func (r *Resolver) inOrganization(ctx context.Context, organizationsURL string) bool {
	var orgs []githubOrganization
	resp, err := r.http.R().
		SetContext(ctx).
		SetResult(&orgs).
		Get(organizationsURL)
	if err != nil || !resp.IsSuccess() {
		obs.LogRequest(map[string]any{
			"level": "warn",
			"msg":   "organization lookup failed",
			"url":   organizationsURL,
			"err":   errString(err, resp),
		})
		return false
	}
	for _, org := range orgs {
		if strings.EqualFold(org.Login, r.organization) {
			return true
		}
	}
	return false
}

func errString(err error, resp *resty.Response) string {
	if err != nil {
		return err.Error()
	}
	if resp != nil {
		return resp.Status()
	}
	return "unknown"
}
