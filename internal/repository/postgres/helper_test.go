package postgres

import (
	"context"
	"testing"

	"github.com/counterpos/counterpos/internal/logger"
	"github.com/counterpos/counterpos/internal/types"
	"github.com/samber/lo"
	"github.com/stretchr/testify/assert"
)

func TestWhereBuilder(t *testing.T) {
	w := &whereBuilder{}
	w.tenant(types.TenantScope{TenantID: "tenant_a"})
	w.add("order_id = ?", "ord_1")
	w.in("payment_status", []string{"PENDING", "PROCESSING"})
	w.in("provider", nil)

	assert.Equal(t, " WHERE tenant_id = $1 AND order_id = $2 AND payment_status IN ($3, $4)", w.String())
	assert.Equal(t, []interface{}{"tenant_a", "ord_1", "PENDING", "PROCESSING"}, w.args)

	filter := types.NewDefaultQueryFilter()
	filter.Offset = lo.ToPtr(100)
	assert.Equal(t, " ORDER BY created_at DESC, id DESC LIMIT $5 OFFSET $6", w.page(filter))
	assert.Equal(t, []interface{}{"tenant_a", "ord_1", "PENDING", "PROCESSING", 50, 100}, w.args)
}

func TestWhereBuilder_Unscoped(t *testing.T) {
	w := &whereBuilder{}
	w.tenant(types.TenantScope{Caller: "expiry-sweep"})
	assert.Equal(t, "", w.String())

	page := w.page(types.QueryFilter{Order: lo.ToPtr(types.OrderAsc)})
	assert.Equal(t, " ORDER BY created_at ASC, id ASC", page)
	assert.Empty(t, w.args)
}

func TestResolveScope(t *testing.T) {
	log := logger.NewNopLogger()

	scope := resolveScope(types.SetTenantID(context.Background(), "tenant_a"), log, "order", "get")
	assert.Equal(t, "tenant_a", scope.TenantID)

	scope = resolveScope(types.WithSystemScope(context.Background(), "webhook"), log, "payment", "get")
	assert.True(t, scope.Unscoped())
	assert.Equal(t, "webhook", scope.Caller)
}
