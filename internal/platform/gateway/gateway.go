// Package gateway defines the payment gateway port and the normalized webhook
// events every provider adapter produces.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/shopspring/decimal"

	"github.com/fatflowers/plankeeper/pkg/types"
)

var (
	ErrInvalidSignature = errors.New("invalid gateway signature")
	ErrUnparseable      = errors.New("unparseable gateway payload")
	ErrUnavailable      = errors.New("payment gateway unavailable")
	ErrNotPaid          = errors.New("payment not completed at gateway")
	ErrUnknownProvider  = errors.New("unknown payment provider")
)

type LinkRequest struct {
	// Reference is our payment id, echoed back by the gateway.
	Reference   string
	UserID      string
	UserEmail   string
	PlanID      string
	PlanSlug    string
	PlanName    string
	Amount      decimal.Decimal
	Currency    string
	CallbackURL string
}

type Link struct {
	ID  string
	URL string
}

// ClientConfirmation is what the browser brings back after paying.
// ReferenceID and Status are only sent by some link flows.
type ClientConfirmation struct {
	LinkID      string `json:"link_id" binding:"required"`
	PaymentID   string `json:"payment_id"`
	Signature   string `json:"signature"`
	ReferenceID string `json:"reference_id"`
	Status      string `json:"status"`
}

// Event is one of PaymentPaid, LinkClosed or Unhandled.
type Event interface {
	isEvent()
}

// PaymentPaid reports money captured for a link. LinkID may be empty when
// the gateway only carried our Reference.
type PaymentPaid struct {
	LinkID    string
	Reference string
	PaymentID string
}

// LinkClosed reports that a link can no longer be paid.
type LinkClosed struct {
	LinkID string
	Status types.PaymentStatus
}

// Unhandled is an authenticated event type we do not act on.
type Unhandled struct{}

func (PaymentPaid) isEvent() {}
func (LinkClosed) isEvent()  {}
func (Unhandled) isEvent()   {}

// Envelope is a parsed, authenticated webhook delivery.
type Envelope struct {
	Provider types.PaymentProvider
	Type     string
	// ExternalID is the idempotency key; empty when the payload carried no
	// usable identifier.
	ExternalID string
	KeySource  types.KeySource
	Event      Event
}

func (e *Envelope) Class() types.EventClass {
	switch e.Event.(type) {
	case PaymentPaid:
		return types.EventClassPaid
	case LinkClosed:
		return types.EventClassLinkStatus
	default:
		return types.EventClassOther
	}
}

// LinkID returns the link the event refers to, if any.
func (e *Envelope) LinkID() string {
	switch ev := e.Event.(type) {
	case PaymentPaid:
		return ev.LinkID
	case LinkClosed:
		return ev.LinkID
	default:
		return ""
	}
}

// Gateway is implemented by each payment provider adapter.
type Gateway interface {
	Provider() types.PaymentProvider
	CreatePaymentLink(ctx context.Context, req *LinkRequest) (*Link, error)
	CancelPaymentLink(ctx context.Context, linkID string) error
	// VerifyClientPayment authenticates a browser confirmation and returns
	// the gateway payment id.
	VerifyClientPayment(ctx context.Context, req *ClientConfirmation) (string, error)
	VerifyWebhook(header http.Header, body []byte) error
	ParseWebhook(header http.Header, body []byte) (*Envelope, error)
}

// Call runs fn with a deadline. SDKs that take no context keep running in the
// background after a timeout; their result is discarded.
func Call[T any](ctx context.Context, timeout time.Duration, fn func() (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	type result struct {
		v   T
		err error
	}
	ch := make(chan result, 1)
	go func() {
		v, err := fn()
		ch <- result{v: v, err: err}
	}()
	select {
	case r := <-ch:
		return r.v, r.err
	case <-ctx.Done():
		var zero T
		return zero, fmt.Errorf("%w: %v", ErrUnavailable, ctx.Err())
	}
}
