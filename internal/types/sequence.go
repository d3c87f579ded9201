package types

import (
	"fmt"
	"time"

	"github.com/samber/lo"
)

// SequenceScope names an independent numbering series inside a tenant
type SequenceScope string

const (
	// SequenceScopeOrder numbers orders, reset every business day
	SequenceScopeOrder SequenceScope = "order"
	// SequenceScopeInvoice numbers invoices, reset every calendar year
	SequenceScopeInvoice SequenceScope = "invoice"
)

func (s SequenceScope) Validate() error {
	if !lo.Contains([]SequenceScope{SequenceScopeOrder, SequenceScopeInvoice}, s) {
		return fmt.Errorf("invalid sequence scope: %s", s)
	}
	return nil
}

// DailyPeriodKey returns the period key for a business day in loc
func DailyPeriodKey(t time.Time, loc *time.Location) string {
	return t.In(locationOrUTC(loc)).Format("2006-01-02")
}

// YearlyPeriodKey returns the period key for a calendar year in loc
func YearlyPeriodKey(t time.Time, loc *time.Location) string {
	return t.In(locationOrUTC(loc)).Format("2006")
}

// FormatInvoiceNumber renders an allocated invoice number, e.g. INV-2024-00001
func FormatInvoiceNumber(prefix, periodKey string, number int64) string {
	return fmt.Sprintf("%s-%s-%05d", prefix, periodKey, number)
}

func locationOrUTC(loc *time.Location) *time.Location {
	if loc == nil {
		return time.UTC
	}
	return loc
}
