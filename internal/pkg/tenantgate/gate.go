// Package tenantgate holds the authorization predicates every mutating
// request passes through. All checks are read-only.
package tenantgate

import (
	"context"
	"strings"

	"github.com/medisched/medisched/app/models"
	"github.com/medisched/medisched/app/repository"
	"github.com/medisched/medisched/internal/pkg/apperrors"
)

// Principal is the authenticated caller as seen by the gate.
type Principal struct {
	UserID string
	Role   string
}

func (p Principal) IsAdmin() bool {
	return p.Role == models.ROLE_ADMIN
}

// Gate takes identity from the Principal and tenant roles from storage, so a
// token issued before a promotion stays usable afterwards.
type Gate struct {
	orgs  repository.OrganizationRepository
	users repository.UserRepository
}

func New(orgs repository.OrganizationRepository, users repository.UserRepository) *Gate {
	return &Gate{orgs: orgs, users: users}
}

// RequireAuthenticated fails with Unauthorized when there is no identity.
func (g *Gate) RequireAuthenticated(p Principal) error {
	if strings.TrimSpace(p.UserID) == "" {
		return apperrors.Unauthorized("authentication required")
	}
	return nil
}

// RequireAdmin checks the system-wide admin role.
func (g *Gate) RequireAdmin(p Principal) error {
	if err := g.RequireAuthenticated(p); err != nil {
		return err
	}
	if !p.IsAdmin() {
		return apperrors.Forbidden("admin role required")
	}
	return nil
}

// RequireRole passes when the caller's stored role is role and the caller is
// a member of orgID. ADMIN is tenant-independent and needs no membership when
// role is ADMIN.
func (g *Gate) RequireRole(ctx context.Context, p Principal, orgID, role string) error {
	if err := g.RequireAuthenticated(p); err != nil {
		return err
	}
	if role == models.ROLE_ADMIN {
		return g.RequireAdmin(p)
	}
	if strings.TrimSpace(orgID) == "" {
		return apperrors.Validation("organizationId is required")
	}
	current, err := g.storedRole(ctx, p)
	if err != nil {
		return err
	}
	if current != role {
		return apperrors.Forbidden("insufficient permissions")
	}
	ok, err := g.orgs.IsMember(ctx, orgID, p.UserID)
	if err != nil {
		return apperrors.Internal("membership lookup failed", err)
	}
	if !ok {
		return apperrors.Forbidden("not a member of this organization")
	}
	return nil
}

func (g *Gate) storedRole(ctx context.Context, p Principal) (string, error) {
	u, err := g.users.GetByID(ctx, p.UserID)
	if err != nil {
		if apperrors.Is(apperrors.FromStore(err, ""), apperrors.CodeNotFound) {
			return "", apperrors.Unauthorized("authentication required")
		}
		return "", apperrors.Internal("user lookup failed", err)
	}
	return u.Role, nil
}

// RequireMember passes for any membership in orgID, regardless of role.
func (g *Gate) RequireMember(ctx context.Context, p Principal, orgID string) error {
	if err := g.RequireAuthenticated(p); err != nil {
		return err
	}
	if strings.TrimSpace(orgID) == "" {
		return apperrors.Validation("organizationId is required")
	}
	ok, err := g.orgs.IsMember(ctx, orgID, p.UserID)
	if err != nil {
		return apperrors.Internal("membership lookup failed", err)
	}
	if !ok {
		return apperrors.Forbidden("not a member of this organization")
	}
	return nil
}

// RequireEnabledOrganization fails with NotFound for unknown organizations
// and Forbidden for disabled ones.
func (g *Gate) RequireEnabledOrganization(ctx context.Context, orgID string) (*models.Organization, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, apperrors.Validation("organizationId is required")
	}
	org, err := g.orgs.GetByID(ctx, orgID)
	if err != nil {
		return nil, apperrors.FromStore(err, "organization not found")
	}
	if !org.Enabled {
		return nil, apperrors.Forbidden("organization is not enabled, an active subscription is required")
	}
	return org, nil
}

// RequireOwnerOfEnabledOrganization runs the role check first and the
// enablement check second. Callers rely on this order for their error
// messages.
func (g *Gate) RequireOwnerOfEnabledOrganization(ctx context.Context, p Principal, orgID string) (*models.Organization, error) {
	if err := g.RequireRole(ctx, p, orgID, models.ROLE_OWNER); err != nil {
		return nil, err
	}
	return g.RequireEnabledOrganization(ctx, orgID)
}
