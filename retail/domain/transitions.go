package domain

var orderTransitions = map[OrderStatus][]OrderStatus{
	OrderPending:           {OrderPaid, OrderCancelled, OrderBackorder},
	OrderPaid:              {OrderFulfilled, OrderCancelled, OrderBackorder, OrderRefundRequested, OrderRefunded, OrderPartiallyRefunded},
	OrderBackorder:         {OrderPaid, OrderFulfilled, OrderCancelled},
	OrderFulfilled:         {OrderRefundRequested, OrderRefunded, OrderPartiallyRefunded},
	OrderRefundRequested:   {OrderRefunded, OrderPartiallyRefunded, OrderFulfilled, OrderCancelled},
	OrderPartiallyRefunded: {OrderRefunded, OrderPartiallyRefunded},
	OrderCancelled:         nil,
	OrderRefunded:          nil,
}

var paymentTransitions = map[PaymentStatus][]PaymentStatus{
	PaymentPending:           {PaymentAuthorized, PaymentCaptured, PaymentFailed, PaymentVoided},
	PaymentAuthorized:        {PaymentCaptured, PaymentVoided, PaymentFailed},
	PaymentCaptured:          {PaymentRefunded, PaymentPartiallyRefunded, PaymentDisputed, PaymentCompleted},
	PaymentCompleted:         {PaymentRefunded, PaymentPartiallyRefunded, PaymentDisputed},
	PaymentPartiallyRefunded: {PaymentRefunded, PaymentPartiallyRefunded},
	PaymentDisputed:          {PaymentCaptured, PaymentRefunded},
	PaymentFailed:            nil,
	PaymentVoided:            nil,
	PaymentRefunded:          nil,
}

var ticketTransitions = map[TicketStatus][]TicketStatus{
	TicketNew:             {TicketOpen, TicketPendingCustomer, TicketResolved, TicketClosed},
	TicketOpen:            {TicketPendingCustomer, TicketResolved, TicketClosed},
	TicketPendingCustomer: {TicketOpen, TicketResolved, TicketClosed},
	TicketResolved:        {TicketClosed, TicketOpen},
	TicketClosed:          {TicketOpen},
}

// CanTransitionOrder reports whether an order may move from one status to another.
// Re-applying the current status is always allowed.
func CanTransitionOrder(from, to OrderStatus) bool {
	return from == to || contains(orderTransitions[from], to)
}

func CanTransitionPayment(from, to PaymentStatus) bool {
	return from == to || contains(paymentTransitions[from], to)
}

func CanTransitionTicket(from, to TicketStatus) bool {
	return from == to || contains(ticketTransitions[from], to)
}

// Cancellable reports whether an order in status s may still be cancelled.
func (s OrderStatus) Cancellable() bool {
	switch s {
	case OrderPending, OrderPaid, OrderBackorder, OrderRefundRequested:
		return true
	default:
		return false
	}
}
