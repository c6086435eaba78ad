package types

type PaymentProvider string

const (
	PaymentProviderRazorpay PaymentProvider = "razorpay"
	PaymentProviderStripe   PaymentProvider = "stripe"
)

// PaymentStatus is the lifecycle state of a single payment attempt.
type PaymentStatus string

const (
	PaymentStatusCreated   PaymentStatus = "created"
	PaymentStatusCaptured  PaymentStatus = "captured"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusExpired   PaymentStatus = "expired"
	PaymentStatusCancelled PaymentStatus = "cancelled"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusCreated, PaymentStatusCaptured, PaymentStatusFailed, PaymentStatusExpired, PaymentStatusCancelled:
		return true
	}
	return false
}

func (s PaymentStatus) IsTerminal() bool {
	return s != PaymentStatusCreated
}

// CanTransitionTo reports whether a payment in status s may move to next.
// Captured is final. A closed attempt (failed, expired, cancelled) may still
// be captured when the gateway reports money was taken, but never moves to
// another closed state.
func (s PaymentStatus) CanTransitionTo(next PaymentStatus) bool {
	if s == next {
		return false
	}
	switch s {
	case PaymentStatusCreated:
		return next != PaymentStatusCreated
	case PaymentStatusCaptured:
		return false
	default:
		return next == PaymentStatusCaptured
	}
}
