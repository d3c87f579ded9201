package types

import (
	"fmt"

	"github.com/samber/lo"
)

// Role is a membership role inside a tenant
type Role string

const (
	RoleOwner   Role = "owner"
	RoleManager Role = "manager"
	RoleCashier Role = "cashier"
)

func (r Role) Validate() error {
	allowed := []Role{RoleOwner, RoleManager, RoleCashier}
	if !lo.Contains(allowed, r) {
		return fmt.Errorf("invalid role: %s", r)
	}
	return nil
}
