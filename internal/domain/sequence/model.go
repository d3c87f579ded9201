package sequence

import (
	"time"

	ierr "github.com/counterpos/counterpos/internal/errors"
	"github.com/counterpos/counterpos/internal/types"
)

// Key identifies one gapless numbering series
type Key struct {
	TenantID  string
	Scope     types.SequenceScope
	PeriodKey string
}

func (k Key) Validate() error {
	if k.TenantID == "" {
		return ierr.NewError("sequence tenant is required").
			WithHint("A tenant is required to allocate a number").
			Mark(ierr.ErrValidation)
	}
	if err := k.Scope.Validate(); err != nil {
		return ierr.WithError(err).
			WithHint("Unknown numbering scope").
			Mark(ierr.ErrValidation)
	}
	if k.PeriodKey == "" {
		return ierr.NewError("sequence period is required").
			WithHint("A period is required to allocate a number").
			Mark(ierr.ErrValidation)
	}
	return nil
}

func (k Key) String() string {
	return k.TenantID + "/" + string(k.Scope) + "/" + k.PeriodKey
}

// Sequence is the persisted counter of a series. LastNumber only ever grows
// by one per committed allocation.
type Sequence struct {
	TenantID   string              `db:"tenant_id" json:"tenant_id"`
	Scope      types.SequenceScope `db:"scope" json:"scope"`
	PeriodKey  string              `db:"period_key" json:"period_key"`
	LastNumber int64               `db:"last_number" json:"last_number"`
	CreatedAt  time.Time           `db:"created_at" json:"created_at"`
	UpdatedAt  time.Time           `db:"updated_at" json:"updated_at"`
}

func (s *Sequence) Key() Key {
	return Key{TenantID: s.TenantID, Scope: s.Scope, PeriodKey: s.PeriodKey}
}
