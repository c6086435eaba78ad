package razorpay

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/types"
)

const (
	EventPaymentLinkPaid      = "payment_link.paid"
	EventOrderPaid            = "order.paid"
	EventPaymentCaptured      = "payment.captured"
	EventPaymentLinkExpired   = "payment_link.expired"
	EventPaymentLinkCancelled = "payment_link.cancelled"
)

type entity[T any] struct {
	Entity *T `json:"entity"`
}

type paymentEntity struct {
	ID      string            `json:"id"`
	OrderID string            `json:"order_id"`
	Status  string            `json:"status"`
	Notes   map[string]string `json:"notes"`
}

type paymentLinkEntity struct {
	ID          string `json:"id"`
	ReferenceID string `json:"reference_id"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
}

type webhookBody struct {
	// ID is not part of Razorpay's documented envelope, which carries the
	// event id in a header; some proxies copy it into the body.
	ID      string `json:"id"`
	Event   string `json:"event"`
	Payload struct {
		Payment     *entity[paymentEntity]     `json:"payment"`
		PaymentLink *entity[paymentLinkEntity] `json:"payment_link"`
	} `json:"payload"`
}

func (b *webhookBody) payment() *paymentEntity {
	if b.Payload.Payment == nil {
		return nil
	}
	return b.Payload.Payment.Entity
}

func (b *webhookBody) paymentLink() *paymentLinkEntity {
	if b.Payload.PaymentLink == nil {
		return nil
	}
	return b.Payload.PaymentLink.Entity
}

// ParseWebhook maps a verified Razorpay delivery onto a gateway event.
func (g *Gateway) ParseWebhook(header http.Header, body []byte) (*gateway.Envelope, error) {
	var b webhookBody
	if err := json.Unmarshal(body, &b); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnparseable, err)
	}
	if b.Event == "" {
		return nil, fmt.Errorf("%w: missing event", gateway.ErrUnparseable)
	}

	env := &gateway.Envelope{Provider: types.PaymentProviderRazorpay, Type: b.Event}
	pay, link := b.payment(), b.paymentLink()

	switch b.Event {
	case EventPaymentLinkPaid, EventOrderPaid, EventPaymentCaptured:
		ev := gateway.PaymentPaid{}
		if link != nil {
			ev.LinkID = link.ID
			ev.Reference = link.ReferenceID
		}
		if pay != nil {
			ev.PaymentID = pay.ID
			if ev.Reference == "" {
				ev.Reference = pay.Notes["payment_ref"]
			}
		}
		if ev.PaymentID == "" {
			return nil, fmt.Errorf("%w: %s without payment id", gateway.ErrUnparseable, b.Event)
		}
		if ev.LinkID == "" && ev.Reference == "" {
			return nil, fmt.Errorf("%w: %s without link id or reference", gateway.ErrUnparseable, b.Event)
		}
		env.Event = ev
	case EventPaymentLinkExpired, EventPaymentLinkCancelled:
		if link == nil || link.ID == "" {
			return nil, fmt.Errorf("%w: %s without payment link", gateway.ErrUnparseable, b.Event)
		}
		status := types.PaymentStatusExpired
		if b.Event == EventPaymentLinkCancelled {
			status = types.PaymentStatusCancelled
		}
		env.Event = gateway.LinkClosed{LinkID: link.ID, Status: status}
	default:
		env.Event = gateway.Unhandled{}
	}

	env.ExternalID, env.KeySource = idempotencyKey(header, &b)
	return env, nil
}

// idempotencyKey prefers the gateway event id and falls back to the id of the
// entity the event is about. An empty result means the caller must
// synthesize one.
func idempotencyKey(header http.Header, b *webhookBody) (string, types.KeySource) {
	if id := header.Get(HeaderEventID); id != "" {
		return id, types.KeySourceEventID
	}
	if b.ID != "" {
		return b.ID, types.KeySourceEventID
	}
	if p := b.payment(); p != nil && p.ID != "" {
		return b.Event + ":" + p.ID, types.KeySourceEntityID
	}
	if l := b.paymentLink(); l != nil && l.ID != "" {
		return b.Event + ":" + l.ID, types.KeySourceEntityID
	}
	return "", ""
}
