package rbac

import (
	"context"
	_ "embed"
	"encoding/json"
	"fmt"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
)

//go:embed roles.json
var defaultRoles []byte

// Entities and actions checked by the services
const (
	EntityOrder   = "order"
	EntityPayment = "payment"

	ActionRead     = "read"
	ActionWrite    = "write"
	ActionCancel   = "cancel"
	ActionComplete = "complete"
	ActionInitiate = "initiate"
	ActionSettle   = "settle"
	ActionRefund   = "refund"
)

// RBACService handles permission checks with set-based lookups
type RBACService struct {
	// role -> entity -> action
	permissions map[string]map[string]map[string]bool
	roles       map[string]*Role
}

// Role represents a role with metadata
type Role struct {
	ID          string              `json:"id"`
	Name        string              `json:"name"`
	Description string              `json:"description"`
	Permissions map[string][]string `json:"permissions"`
}

// NewRBACService loads the built-in role definitions
func NewRBACService() (*RBACService, error) {
	return NewRBACServiceFromJSON(defaultRoles)
}

// NewRBACServiceFromJSON parses role definitions keyed by role id
func NewRBACServiceFromJSON(data []byte) (*RBACService, error) {
	var rawConfig map[string]*Role
	if err := json.Unmarshal(data, &rawConfig); err != nil {
		return nil, fmt.Errorf("failed to parse role definitions: %w", err)
	}

	permissions := make(map[string]map[string]map[string]bool)
	for roleID, role := range rawConfig {
		role.ID = roleID
		permissions[roleID] = make(map[string]map[string]bool)
		for entity, actions := range role.Permissions {
			permissions[roleID][entity] = make(map[string]bool)
			for _, action := range actions {
				permissions[roleID][entity][action] = true
			}
		}
	}

	return &RBACService{
		permissions: permissions,
		roles:       rawConfig,
	}, nil
}

// HasPermission checks if any of the roles grant the action.
// No roles means no permission.
func (s *RBACService) HasPermission(roles []string, entity string, action string) bool {
	for _, role := range roles {
		if s.permissions[role] != nil &&
			s.permissions[role][entity] != nil &&
			s.permissions[role][entity][action] {
			return true
		}
	}
	return false
}

// Authorize checks the roles of the acting user in ctx
func (s *RBACService) Authorize(ctx context.Context, entity, action string) error {
	roles := types.GetRoles(ctx)
	if s.HasPermission(roles, entity, action) {
		return nil
	}
	return ierr.NewErrorf("roles %v may not %s %s", roles, action, entity).
		WithHintf("You do not have permission to %s this %s", action, entity).
		WithReportableDetails(map[string]any{
			"entity": entity,
			"action": action,
		}).
		Mark(ierr.ErrPermissionDenied)
}

// ValidateRole checks if role exists in definitions
func (s *RBACService) ValidateRole(roleName string) bool {
	_, exists := s.permissions[roleName]
	return exists
}

// GetRole returns a specific role with metadata
func (s *RBACService) GetRole(roleID string) (*Role, bool) {
	role, exists := s.roles[roleID]
	return role, exists
}
