package types

type OrderStatus string

type OrderType string

type CommissionType string

const (
	OrderWaiting   OrderStatus = "ORDER_WAITING"
	OrderExecuted  OrderStatus = "ORDER_EXECUTED"
	OrderCancelled OrderStatus = "ORDER_CANCELLED"

	TypeMarket OrderType = "MARKET"
	TypeLimit  OrderType = "LIMIT"

	// CommissionPercent charges a fraction of the execution price per
	// unit (stock-like), CommissionAbsolute a fixed amount per unit
	// (future-like).
	CommissionPercent  CommissionType = "PERC"
	CommissionAbsolute CommissionType = "ABS"
)
