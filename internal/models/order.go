package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// OrderStatus is the order lifecycle state
type OrderStatus string

const (
	StatusPending   OrderStatus = "pending"
	StatusPreparing OrderStatus = "preparing"
	StatusReady     OrderStatus = "ready"
	StatusDelivered OrderStatus = "delivered"
	StatusCancelled OrderStatus = "cancelled"
)

// ActiveStatuses are the states in which an order still occupies a
// table and shows up on the kitchen display
var ActiveStatuses = []OrderStatus{StatusPending, StatusPreparing, StatusReady}

// IsActiveStatus reports whether the status is one of ActiveStatuses
func IsActiveStatus(s OrderStatus) bool {
	for _, active := range ActiveStatuses {
		if active == s {
			return true
		}
	}
	return false
}

// TaxRate is the fixed IVA rate applied to every order subtotal
var TaxRate = decimal.New(19, -2)

// allowedTransitions encodes the full transition table. Forward jumps
// from pending are permitted (staff may skip stages); the single
// allowed regression is preparing back to pending (kitchen reset).
var allowedTransitions = map[OrderStatus][]OrderStatus{
	StatusPending:   {StatusPreparing, StatusReady, StatusDelivered, StatusCancelled},
	StatusPreparing: {StatusPending, StatusReady, StatusDelivered, StatusCancelled},
	StatusReady:     {StatusDelivered, StatusCancelled},
	StatusDelivered: {},
	StatusCancelled: {},
}

// ValidStatus reports whether s is a known order status
func ValidStatus(s OrderStatus) bool {
	_, ok := allowedTransitions[s]
	return ok
}

// CanTransition reports whether an order may move from one status to
// another. Terminal states reject every target.
func CanTransition(from, to OrderStatus) bool {
	for _, allowed := range allowedTransitions[from] {
		if allowed == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether the status admits no further transitions
func IsTerminal(s OrderStatus) bool {
	return s == StatusDelivered || s == StatusCancelled
}

// Order is the aggregate root for one transaction
type Order struct {
	ID                  int64
	OrderNumber         string
	TableID             *int64
	Status              OrderStatus
	CustomerName        string
	CustomerPhone       string
	Notes               string
	Subtotal            decimal.Decimal
	Tax                 decimal.Decimal
	Total               decimal.Decimal
	SettlementPublished bool
	CreatedAt           time.Time
	StartedAt           *time.Time
	CompletedAt         *time.Time
	UpdatedAt           time.Time

	Items    []OrderItem
	Payments []Payment
}

// OrderItem is one line of an order. UnitPrice is snapshotted from the
// menu item at add-time; later menu price changes never touch it.
type OrderItem struct {
	ID           int64
	OrderID      int64
	MenuItemID   int64
	MenuItemName string
	Quantity     int
	UnitPrice    decimal.Decimal
	Subtotal     decimal.Decimal
	Notes        string
	CreatedAt    time.Time
}

// ComputeTotals derives subtotal, tax and total from line items
func ComputeTotals(items []OrderItem) (subtotal, tax, total decimal.Decimal) {
	subtotal = decimal.Zero
	for i := range items {
		subtotal = subtotal.Add(items[i].Subtotal)
	}
	subtotal = subtotal.Round(2)
	tax = subtotal.Mul(TaxRate).Round(2)
	total = subtotal.Add(tax)
	return subtotal, tax, total
}

// TotalPaid sums completed payments
func (o *Order) TotalPaid() decimal.Decimal {
	paid := decimal.Zero
	for i := range o.Payments {
		if o.Payments[i].Status == PaymentCompleted {
			paid = paid.Add(o.Payments[i].Amount)
		}
	}
	return paid
}

// RemainingAmount is what is still owed on the order
func (o *Order) RemainingAmount() decimal.Decimal {
	return o.Total.Sub(o.TotalPaid())
}

// IsFullyPaid reports whether completed payments cover the total
func (o *Order) IsFullyPaid() bool {
	return o.TotalPaid().GreaterThanOrEqual(o.Total)
}

// PaymentMethod enumerates accepted payment methods
type PaymentMethod string

const (
	PaymentCash     PaymentMethod = "cash"
	PaymentCard     PaymentMethod = "card"
	PaymentTransfer PaymentMethod = "transfer"
	PaymentConvenio PaymentMethod = "convenio"
)

// PaymentStatus is the state of one payment
type PaymentStatus string

const (
	PaymentPending   PaymentStatus = "pending"
	PaymentCompleted PaymentStatus = "completed"
	PaymentFailed    PaymentStatus = "failed"
)

// Payment is one payment against an order; an order may accumulate several
type Payment struct {
	ID                   int64
	OrderID              int64
	Method               PaymentMethod
	Amount               decimal.Decimal
	Status               PaymentStatus
	ConvenioCode         string
	ConvenioName         string
	TransactionReference string
	Notes                string
	CreatedAt            time.Time
	CompletedAt          *time.Time
}

// ValidatePayment checks a new payment against the order's remaining
// balance and the convenio code requirement.
func ValidatePayment(method PaymentMethod, amount decimal.Decimal, convenioCode string, remaining decimal.Decimal) error {
	switch method {
	case PaymentCash, PaymentCard, PaymentTransfer, PaymentConvenio:
	default:
		return ValidationError{Field: "payment_method", Message: "invalid payment method"}
	}
	if !amount.IsPositive() {
		return ValidationError{Field: "amount", Message: "must be greater than zero"}
	}
	if amount.GreaterThan(remaining) {
		return ValidationError{Field: "amount", Message: "exceeds remaining balance of " + remaining.StringFixed(2)}
	}
	if method == PaymentConvenio && convenioCode == "" {
		return ValidationError{Field: "convenio_code", Message: "required for convenio payments"}
	}
	return nil
}
