package types

import (
	"fmt"

	"github.com/samber/lo"
)

const (
	DefaultPageLimit = 50
	MaxPageLimit     = 500

	OrderDesc = "desc"
	OrderAsc  = "asc"
)

// BaseFilter is the paging contract list queries share. Rows are always
// ordered by creation time, newest first unless asc is requested.
type BaseFilter interface {
	GetLimit() int
	GetOffset() int
	GetOrder() string
	IsUnlimited() bool
	Validate() error
}

// QueryFilter carries limit/offset paging bound from the query string
type QueryFilter struct {
	Limit  *int    `json:"limit,omitempty" form:"limit" validate:"omitempty,min=1,max=500"`
	Offset *int    `json:"offset,omitempty" form:"offset" validate:"omitempty,min=0"`
	Order  *string `json:"order,omitempty" form:"order" validate:"omitempty,oneof=asc desc"`
}

// NewDefaultQueryFilter returns the first page, newest first
func NewDefaultQueryFilter() *QueryFilter {
	return &QueryFilter{
		Limit:  lo.ToPtr(DefaultPageLimit),
		Offset: lo.ToPtr(0),
		Order:  lo.ToPtr(OrderDesc),
	}
}

// IsUnlimited is true for internal sweeps that page with no limit
func (f QueryFilter) IsUnlimited() bool {
	return f.Limit == nil
}

func (f QueryFilter) GetLimit() int {
	return lo.FromPtr(f.Limit)
}

func (f QueryFilter) GetOffset() int {
	return lo.FromPtr(f.Offset)
}

func (f QueryFilter) GetOrder() string {
	return lo.FromPtrOr(f.Order, OrderDesc)
}

func (f QueryFilter) Validate() error {
	switch {
	case f.Limit != nil && (*f.Limit < 1 || *f.Limit > MaxPageLimit):
		return fmt.Errorf("limit must be between 1 and %d", MaxPageLimit)
	case f.GetOffset() < 0:
		return fmt.Errorf("offset must not be negative")
	case f.GetOrder() != OrderAsc && f.GetOrder() != OrderDesc:
		return fmt.Errorf("order must be %s or %s", OrderAsc, OrderDesc)
	}
	return nil
}
