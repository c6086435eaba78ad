// Package gatewaytest provides an in-memory gateway for service tests.
package gatewaytest

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"

	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/types"
)

// Fake hands out sequential link ids and records cancellations. Webhook
// bodies are JSON-encoded FakeWebhook values.
type Fake struct {
	mu        sync.Mutex
	provider  types.PaymentProvider
	seq       int
	Created   []*gateway.LinkRequest
	Cancelled []string

	CreateErr  error
	CancelErr  error
	ConfirmErr error
	VerifyErr  error
}

func New(provider types.PaymentProvider) *Fake {
	return &Fake{provider: provider}
}

func (f *Fake) Provider() types.PaymentProvider { return f.provider }

func (f *Fake) CreatePaymentLink(_ context.Context, req *gateway.LinkRequest) (*gateway.Link, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return nil, f.CreateErr
	}
	f.seq++
	f.Created = append(f.Created, req)
	id := fmt.Sprintf("plink_%d", f.seq)
	return &gateway.Link{ID: id, URL: "https://pay.example.com/" + id}, nil
}

func (f *Fake) CancelPaymentLink(_ context.Context, linkID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CancelErr != nil {
		return f.CancelErr
	}
	f.Cancelled = append(f.Cancelled, linkID)
	return nil
}

// VerifyClientPayment accepts any confirmation whose signature is "ok".
func (f *Fake) VerifyClientPayment(_ context.Context, req *gateway.ClientConfirmation) (string, error) {
	if f.ConfirmErr != nil {
		return "", f.ConfirmErr
	}
	if req.Signature != "ok" {
		return "", gateway.ErrInvalidSignature
	}
	return req.PaymentID, nil
}

func (f *Fake) VerifyWebhook(header http.Header, _ []byte) error {
	if f.VerifyErr != nil {
		return f.VerifyErr
	}
	if header.Get("X-Fake-Signature") != "ok" {
		return gateway.ErrInvalidSignature
	}
	return nil
}

// FakeWebhook is the body format ParseWebhook understands.
type FakeWebhook struct {
	ID        string `json:"id"`
	Type      string `json:"type"`
	LinkID    string `json:"link_id"`
	Reference string `json:"reference"`
	PaymentID string `json:"payment_id"`
	Status    string `json:"status"`
}

func (w FakeWebhook) Body() []byte {
	b, _ := json.Marshal(w)
	return b
}

func (f *Fake) ParseWebhook(_ http.Header, body []byte) (*gateway.Envelope, error) {
	var w FakeWebhook
	if err := json.Unmarshal(body, &w); err != nil || w.Type == "" {
		return nil, gateway.ErrUnparseable
	}
	env := &gateway.Envelope{Provider: f.provider, Type: w.Type, ExternalID: w.ID, KeySource: types.KeySourceEventID}
	switch w.Type {
	case "paid":
		env.Event = gateway.PaymentPaid{LinkID: w.LinkID, Reference: w.Reference, PaymentID: w.PaymentID}
	case "closed":
		env.Event = gateway.LinkClosed{LinkID: w.LinkID, Status: types.PaymentStatus(w.Status)}
	default:
		env.Event = gateway.Unhandled{}
	}
	if env.ExternalID == "" {
		env.KeySource = ""
	}
	return env, nil
}

var _ gateway.Gateway = (*Fake)(nil)
