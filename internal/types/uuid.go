package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex ord_01HZX4Q9V0N9J5M0QK3Y7WJ2AB
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	UUID_PREFIX_TENANT          = "tenant"
	UUID_PREFIX_USER            = "user"
	UUID_PREFIX_ORDER           = "ord"
	UUID_PREFIX_ORDER_LINE_ITEM = "oli"
	UUID_PREFIX_PAYMENT         = "pay"
	UUID_PREFIX_CASH_RECEIPT    = "cash"
)
