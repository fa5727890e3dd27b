package domain

import "errors"

type OrderStatus string

// remember to add new statuses to the validOrderStatuses map and the transitions table
const (
	OrderStatusPending    OrderStatus = "pending"
	OrderStatusProcessing OrderStatus = "processing"
	OrderStatusShipped    OrderStatus = "shipped"
	OrderStatusDelivered  OrderStatus = "delivered"
	OrderStatusCancelled  OrderStatus = "cancelled"
	OrderStatusReturned   OrderStatus = "returned"
)

var validOrderStatuses = map[OrderStatus]struct{}{
	OrderStatusPending:    {},
	OrderStatusProcessing: {},
	OrderStatusShipped:    {},
	OrderStatusDelivered:  {},
	OrderStatusCancelled:  {},
	OrderStatusReturned:   {},
}

var transitions = map[OrderStatus]map[OrderStatus]bool{
	OrderStatusPending:    {OrderStatusProcessing: true, OrderStatusCancelled: true},
	OrderStatusProcessing: {OrderStatusShipped: true, OrderStatusCancelled: true},
	OrderStatusShipped:    {OrderStatusDelivered: true, OrderStatusCancelled: true},
	OrderStatusDelivered:  {OrderStatusReturned: true},
	OrderStatusCancelled:  {},
	OrderStatusReturned:   {},
}

func ToOrderStatus(s string) (OrderStatus, error) {
	status := OrderStatus(s)
	if _, ok := validOrderStatuses[status]; ok {
		return status, nil
	}

	return "", errors.New("invalid order status")
}

func OrderStatuses() []OrderStatus {
	result := make([]OrderStatus, 0, len(validOrderStatuses))
	for status := range validOrderStatuses {
		result = append(result, status)
	}
	return result
}

func CanTransition(from, to OrderStatus) bool {
	return transitions[from][to]
}

// RestoresStock reports whether moving an order from one status to another
// must give its reserved quantities back to stock.
func RestoresStock(from, to OrderStatus) bool {
	return to == OrderStatusCancelled && CanTransition(from, to)
}

func (s OrderStatus) IsTerminal() bool {
	return len(transitions[s]) == 0
}
