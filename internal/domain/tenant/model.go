package tenant

import (
	"time"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
)

// Tenant is a business using the point of sale. Every scoped row carries its ID.
type Tenant struct {
	ID   string `db:"id" json:"id"`
	Name string `db:"name" json:"name"`
	// Timezone decides where the business day starts for order numbering
	Timezone  string       `db:"timezone" json:"timezone"`
	Status    types.Status `db:"status" json:"status"`
	CreatedAt time.Time    `db:"created_at" json:"created_at"`
	UpdatedAt time.Time    `db:"updated_at" json:"updated_at"`
	CreatedBy string       `db:"created_by" json:"created_by"`
	UpdatedBy string       `db:"updated_by" json:"updated_by"`
}

// Location returns the business timezone, UTC when unset or invalid
func (t *Tenant) Location() *time.Location {
	if t == nil || t.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func (t *Tenant) Validate() error {
	if t.Name == "" {
		return ierr.NewError("tenant name is required").
			WithHint("Tenant name is required").
			Mark(ierr.ErrValidation)
	}
	if t.Timezone != "" {
		if _, err := time.LoadLocation(t.Timezone); err != nil {
			return ierr.WithError(err).
				WithHintf("Unknown timezone %s", t.Timezone).
				Mark(ierr.ErrValidation)
		}
	}
	return nil
}

// Membership grants a user roles inside one tenant
type Membership struct {
	TenantID string       `json:"tenant_id"`
	UserID   string       `json:"user_id"`
	Roles    []string     `json:"roles"`
	Status   types.Status `json:"status"`
}

// IsActive reports whether the membership may act on the tenant
func (m *Membership) IsActive() bool {
	return m != nil && m.Status == types.StatusPublished
}

func (m *Membership) Validate() error {
	if m.TenantID == "" || m.UserID == "" {
		return ierr.NewError("tenant_id and user_id are required").
			WithHint("Membership needs a tenant and a user").
			Mark(ierr.ErrValidation)
	}
	invalid := lo.Filter(m.Roles, func(r string, _ int) bool {
		return types.Role(r).Validate() != nil
	})
	if len(invalid) > 0 {
		return ierr.NewError("invalid membership roles").
			WithHint("Membership contains unknown roles").
			WithReportableDetails(map[string]any{"roles": invalid}).
			Mark(ierr.ErrValidation)
	}
	return nil
}
