package shipments

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	allowed := []struct{ from, next Status }{
		{StatusDraft, StatusInTransit},
		{StatusInTransit, StatusArrived},
		{StatusArrived, StatusCleared},
		{StatusCleared, StatusDelivered},
		{StatusDraft, StatusCancelled},
		{StatusInTransit, StatusCancelled},
		{StatusArrived, StatusCancelled},
		{StatusCleared, StatusCancelled},
	}
	for _, tc := range allowed {
		assert.True(t, CanTransition(tc.from, tc.next), "%s -> %s", tc.from, tc.next)
	}

	blocked := []struct{ from, next Status }{
		{StatusDraft, StatusArrived},
		{StatusDraft, StatusDelivered},
		{StatusInTransit, StatusDraft},
		{StatusArrived, StatusInTransit},
		{StatusDelivered, StatusCancelled},
		{StatusDelivered, StatusDraft},
		{StatusCancelled, StatusInTransit},
	}
	for _, tc := range blocked {
		assert.False(t, CanTransition(tc.from, tc.next), "%s -> %s", tc.from, tc.next)
	}
}
