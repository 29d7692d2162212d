package service

import (
	"strings"

	"github.com/quantory/tokenmarket/internal/domain"
)

var orderTransitions = map[string]map[string]struct{}{
	domain.OrderStatusPending: {
		domain.OrderStatusPartial:  {},
		domain.OrderStatusFilled:   {},
		domain.OrderStatusCanceled: {},
		domain.OrderStatusExpired:  {},
	},
	domain.OrderStatusPartial: {
		domain.OrderStatusFilled:   {},
		domain.OrderStatusCanceled: {},
		domain.OrderStatusExpired:  {},
	},
	domain.OrderStatusFilled:   {},
	domain.OrderStatusCanceled: {},
	domain.OrderStatusExpired:  {},
}

func normalizeStatus(status string) string {
	return strings.ToUpper(strings.TrimSpace(status))
}

func canTransitionOrder(current, next string) bool {
	current = normalizeStatus(current)
	next = normalizeStatus(next)
	nextStates, ok := orderTransitions[current]
	if !ok {
		return false
	}
	_, ok = nextStates[next]
	return ok
}

func isCancelable(status string) bool {
	return canTransitionOrder(status, domain.OrderStatusCanceled)
}
