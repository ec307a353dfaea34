package orders

import "github.com/safar/storefront-api/internal/models"

var validNext = map[models.OrderStatus]map[models.OrderStatus]bool{
	models.OrderStatusPending:        {models.OrderStatusPaymentPending: true, models.OrderStatusReserved: true, models.OrderStatusCancelled: true},
	models.OrderStatusPaymentPending: {models.OrderStatusReserved: true, models.OrderStatusCancelled: true},
	models.OrderStatusReserved:       {models.OrderStatusProcessing: true, models.OrderStatusCancelled: true},
	models.OrderStatusProcessing:     {models.OrderStatusShipped: true},
	models.OrderStatusShipped:        {models.OrderStatusDelivered: true},
	models.OrderStatusDelivered:      {},
	models.OrderStatusCancelled:      {},
}

func CanTransition(from, to models.OrderStatus) bool {
	return validNext[from][to]
}

func IsTerminal(status models.OrderStatus) bool {
	next, ok := validNext[status]
	return ok && len(next) == 0
}

func ValidStatus(status models.OrderStatus) bool {
	_, ok := validNext[status]
	return ok
}
