// Package idempotency derives the keys sent to payment providers. Client keys
// are only unique inside a tenant, while a provider account is shared by all
// tenants, so keys are hashed together with the tenant before they leave.
package idempotency

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sort"
	"strings"
)

type Scope string

const (
	ScopeCheckout Scope = "checkout"
	ScopeRefund   Scope = "refund"
)

type Generator struct{}

func NewGenerator() *Generator {
	return &Generator{}
}

// CheckoutKey is the provider key for starting the payment a client key names
func (g *Generator) CheckoutKey(tenantID, clientKey string) string {
	return g.GenerateKey(ScopeCheckout, map[string]interface{}{
		"tenant_id": tenantID,
		"key":       clientKey,
	})
}

// RefundKey is the provider key for refunding a payment. A payment is refunded
// at most once, so every attempt for it shares the key whatever the amount.
func (g *Generator) RefundKey(paymentID string) string {
	return g.GenerateKey(ScopeRefund, map[string]interface{}{
		"payment_id": paymentID,
	})
}

// GenerateKey hashes params in key order under scope
func (g *Generator) GenerateKey(scope Scope, params map[string]interface{}) string {
	keys := make([]string, 0, len(params))
	for k := range params {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString(string(scope))
	for _, k := range keys {
		fmt.Fprintf(&b, "|%s=%v", k, params[k])
	}

	sum := sha256.Sum256([]byte(b.String()))
	return string(scope) + "-" + hex.EncodeToString(sum[:16])
}
