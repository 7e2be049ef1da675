package engine

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"tradesim/types"
)

var ErrZeroSizeOrder = errors.New("order size must be non-zero")

// Order is an intent to change the held size of one instrument. Orders
// are owned by the broker: they are created through SubmitOrder and
// only transition inside the execution step.
type Order struct {
	instrument *Instrument
	size       decimal.Decimal
	limit      *decimal.Decimal // nil means market
	status     types.OrderStatus
	issueDate  time.Time
	execDate   time.Time
}

func newOrder(in *Instrument, size decimal.Decimal, limit *decimal.Decimal, issued time.Time) (*Order, error) {
	if size.IsZero() {
		return nil, fmt.Errorf("%s: %w", in.Ticker(), ErrZeroSizeOrder)
	}
	return &Order{
		instrument: in,
		size:       size,
		limit:      limit,
		status:     types.OrderWaiting,
		issueDate:  issued,
	}, nil
}

func (o *Order) Instrument() *Instrument { return o.instrument }

func (o *Order) Ticker() string { return o.instrument.Ticker() }

func (o *Order) Size() decimal.Decimal { return o.size }

// Limit returns the limit price and whether one was set.
func (o *Order) Limit() (decimal.Decimal, bool) {
	if o.limit == nil {
		return decimal.Decimal{}, false
	}
	return *o.limit, true
}

func (o *Order) Type() types.OrderType {
	if o.limit == nil {
		return types.TypeMarket
	}
	return types.TypeLimit
}

func (o *Order) Status() types.OrderStatus { return o.status }

func (o *Order) IssueDate() time.Time { return o.issueDate }

func (o *Order) ExecDate() time.Time { return o.execDate }

func (o *Order) isBuy() bool { return o.size.IsPositive() }

func (o *Order) cancel() { o.status = types.OrderCancelled }

func (o *Order) execute(on time.Time) {
	o.status = types.OrderExecuted
	o.execDate = on
}
