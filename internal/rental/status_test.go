package rental

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := [][2]Status{
		{StatusPlaced, StatusConfirmed},
		{StatusPlaced, StatusCancelled},
		{StatusConfirmed, StatusDelivered},
		{StatusDelivered, StatusClosed},
	}
	for _, tr := range allowed {
		assert.True(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}

	denied := [][2]Status{
		{StatusConfirmed, StatusCancelled}, // no cancellation after allocation
		{StatusConfirmed, StatusPlaced},
		{StatusDelivered, StatusConfirmed},
		{StatusClosed, StatusDelivered},
		{StatusCancelled, StatusPlaced},
		{StatusPlaced, StatusDelivered},
		{StatusPlaced, StatusClosed},
	}
	for _, tr := range denied {
		assert.False(t, CanTransition(tr[0], tr[1]), "%s -> %s", tr[0], tr[1])
	}
}

func TestIsTerminal(t *testing.T) {
	assert.True(t, IsTerminal(StatusClosed))
	assert.True(t, IsTerminal(StatusCancelled))
	assert.False(t, IsTerminal(StatusPlaced))
	assert.False(t, IsTerminal(StatusConfirmed))
	assert.False(t, IsTerminal(StatusDelivered))
}
