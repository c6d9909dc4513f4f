package rental

import (
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// NewOrderNumber builds a human-facing code like ORD-20250301-A1B2C3.
// Uniqueness is enforced by the orders.order_number index; stores retry on
// collision.
func NewOrderNumber(day time.Time) string {
	b := make([]byte, 3)
	_, _ = rand.Read(b)
	return fmt.Sprintf("ORD-%s-%s", day.Format("20060102"), strings.ToUpper(hex.EncodeToString(b)))
}
