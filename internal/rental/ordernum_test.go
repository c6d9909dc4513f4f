package rental

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewOrderNumber_Format(t *testing.T) {
	day := time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)
	re := regexp.MustCompile(`^ORD-20250301-[0-9A-F]{6}$`)
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		n := NewOrderNumber(day)
		assert.Regexp(t, re, n)
		seen[n] = true
	}
	// 100 draws from 16^6 should essentially never collide.
	assert.Greater(t, len(seen), 95)
}
