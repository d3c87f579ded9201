package rbac

import (
	"context"
	"testing"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHasPermission(t *testing.T) {
	svc, err := NewRBACService()
	require.NoError(t, err)

	tests := []struct {
		name   string
		roles  []string
		entity string
		action string
		want   bool
	}{
		{"cashier writes orders", []string{"cashier"}, EntityOrder, ActionWrite, true},
		{"cashier completes orders", []string{"cashier"}, EntityOrder, ActionComplete, true},
		{"cashier initiates payments", []string{"cashier"}, EntityPayment, ActionInitiate, true},
		{"cashier cannot cancel", []string{"cashier"}, EntityOrder, ActionCancel, false},
		{"cashier cannot refund", []string{"cashier"}, EntityPayment, ActionRefund, false},
		{"manager cancels", []string{"manager"}, EntityOrder, ActionCancel, true},
		{"owner refunds", []string{"owner"}, EntityPayment, ActionRefund, true},
		{"any role grants", []string{"cashier", "manager"}, EntityPayment, ActionRefund, true},
		{"no roles", nil, EntityOrder, ActionRead, false},
		{"unknown role", []string{"auditor"}, EntityOrder, ActionRead, false},
		{"unknown entity", []string{"owner"}, "tenant", ActionRead, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, svc.HasPermission(tt.roles, tt.entity, tt.action))
		})
	}
}

func TestAuthorize(t *testing.T) {
	svc, err := NewRBACService()
	require.NoError(t, err)

	ctx := types.SetRoles(context.Background(), []string{string(types.RoleCashier)})
	assert.NoError(t, svc.Authorize(ctx, EntityOrder, ActionWrite))

	err = svc.Authorize(ctx, EntityPayment, ActionRefund)
	require.Error(t, err)
	assert.True(t, ierr.IsPermissionDenied(err))

	err = svc.Authorize(context.Background(), EntityOrder, ActionRead)
	assert.True(t, ierr.IsPermissionDenied(err))
}

func TestRoleDefinitions(t *testing.T) {
	svc, err := NewRBACService()
	require.NoError(t, err)

	for _, role := range []types.Role{types.RoleOwner, types.RoleManager, types.RoleCashier} {
		assert.True(t, svc.ValidateRole(string(role)), role)
	}
	assert.False(t, svc.ValidateRole("auditor"))

	role, ok := svc.GetRole("manager")
	require.True(t, ok)
	assert.Equal(t, "manager", role.ID)
	assert.Equal(t, "Manager", role.Name)

	_, err = NewRBACServiceFromJSON([]byte("{"))
	assert.Error(t, err)
}
