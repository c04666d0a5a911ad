package domain

type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPaid      OrderStatus = "paid"
	StatusShipped   OrderStatus = "shipped"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// transitions is the whole state machine: current status -> accepted next statuses.
// Re-issuing the current status is accepted for non-terminal states (tracking
// updates, duplicate admin clicks); terminal states have no row.
var transitions = map[OrderStatus]map[OrderStatus]bool{
	StatusPending: {StatusPending: true, StatusPaid: true, StatusCancelled: true},
	StatusPaid:    {StatusPaid: true, StatusShipped: true, StatusCancelled: true},
	StatusShipped: {StatusShipped: true, StatusDelivered: true, StatusCancelled: true},
}

func ParseOrderStatus(s string) (OrderStatus, bool) {
	st := OrderStatus(s)
	return st, st.Valid()
}

func (s OrderStatus) Valid() bool {
	switch s {
	case StatusPending, StatusPaid, StatusShipped, StatusDelivered, StatusCancelled:
		return true
	}
	return false
}

func (s OrderStatus) IsTerminal() bool {
	return s == StatusDelivered || s == StatusCancelled
}

func (s OrderStatus) String() string {
	return string(s)
}

func CanTransitionTo(from, to OrderStatus) bool {
	return transitions[from][to]
}
