package domain

import (
	"crypto/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	paymentPrefix    = "PF"
	withdrawalPrefix = "WDR"
)

// NewPaymentReference generates a gateway-correlatable order id like
// PF01J8K2M3N4P5Q6R7S8T9V0WX. ULIDs sort by creation time, which keeps the
// gateway dashboard readable, and the monotonic entropy makes collisions
// within a millisecond impossible in one process.
func NewPaymentReference() string {
	return newReference(paymentPrefix)
}

// NewWithdrawalReference generates a withdrawal reference like WDR01J8....
func NewWithdrawalReference() string {
	return newReference(withdrawalPrefix)
}

func newReference(prefix string) string {
	t := time.Now().UTC()
	id := ulid.MustNew(ulid.Timestamp(t), ulid.Monotonic(rand.Reader, 0))
	return prefix + id.String()
}
