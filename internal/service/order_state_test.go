package service

import (
	"testing"

	"github.com/quantory/tokenmarket/internal/domain"
	"github.com/stretchr/testify/require"
)

func TestOrderTransitions(t *testing.T) {
	require.True(t, canTransitionOrder(domain.OrderStatusPending, domain.OrderStatusFilled))
	require.True(t, canTransitionOrder(domain.OrderStatusPending, domain.OrderStatusCanceled))
	require.True(t, canTransitionOrder(domain.OrderStatusPartial, domain.OrderStatusFilled))

	// Terminal states admit nothing.
	for _, terminal := range []string{
		domain.OrderStatusFilled, domain.OrderStatusCanceled, domain.OrderStatusExpired,
	} {
		require.False(t, canTransitionOrder(terminal, domain.OrderStatusPending))
		require.False(t, canTransitionOrder(terminal, domain.OrderStatusCanceled))
		require.False(t, isCancelable(terminal))
	}

	// Unknown statuses are rejected outright.
	require.False(t, canTransitionOrder("LIMBO", domain.OrderStatusFilled))

	// Status comparison is case and whitespace insensitive.
	require.True(t, canTransitionOrder(" pending ", "filled"))
	require.True(t, isCancelable("pending"))
}
