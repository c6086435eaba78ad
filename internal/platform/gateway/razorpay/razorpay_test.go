package razorpay

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/signature"
)

type fakeLinks struct {
	created   map[string]interface{}
	cancelled string
	err       error
	delay     time.Duration
}

func (f *fakeLinks) Create(data map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	if f.delay > 0 {
		time.Sleep(f.delay)
	}
	f.created = data
	if f.err != nil {
		return nil, f.err
	}
	return map[string]interface{}{"id": "plink_1", "short_url": "https://rzp.io/i/abc"}, nil
}

func (f *fakeLinks) Cancel(id string, _ map[string]interface{}, _ map[string]string) (map[string]interface{}, error) {
	f.cancelled = id
	return map[string]interface{}{"id": id, "status": "cancelled"}, f.err
}

func newTestGateway(links linkAPI) *Gateway {
	return &Gateway{
		links:         links,
		keySecret:     "key_secret",
		webhookSecret: "wh_secret",
		timeout:       50 * time.Millisecond,
		log:           zap.NewNop().Sugar(),
	}
}

func TestCreatePaymentLink(t *testing.T) {
	links := &fakeLinks{}
	g := newTestGateway(links)

	link, err := g.CreatePaymentLink(context.Background(), &gateway.LinkRequest{
		Reference:   "pay-ref",
		UserID:      "u1",
		UserEmail:   "u1@example.com",
		PlanID:      "plan-pro",
		PlanSlug:    "pro",
		PlanName:    "Pro",
		Amount:      decimal.RequireFromString("9.00"),
		Currency:    "usd",
		CallbackURL: "https://app.example.com/billing/return",
	})
	require.NoError(t, err)
	assert.Equal(t, "plink_1", link.ID)
	assert.Equal(t, "https://rzp.io/i/abc", link.URL)

	assert.EqualValues(t, 900, links.created["amount"])
	assert.Equal(t, "USD", links.created["currency"])
	assert.Equal(t, "pay-ref", links.created["reference_id"])
	notes := links.created["notes"].(map[string]interface{})
	assert.Equal(t, "u1", notes["user_id"])
	assert.Equal(t, "pay-ref", notes["payment_ref"])
}

func TestCreatePaymentLink_Unavailable(t *testing.T) {
	g := newTestGateway(&fakeLinks{err: errors.New("connection reset")})
	_, err := g.CreatePaymentLink(context.Background(), &gateway.LinkRequest{Amount: decimal.NewFromInt(9), Currency: "USD"})
	require.ErrorIs(t, err, gateway.ErrUnavailable)

	g = newTestGateway(&fakeLinks{delay: 200 * time.Millisecond})
	_, err = g.CreatePaymentLink(context.Background(), &gateway.LinkRequest{Amount: decimal.NewFromInt(9), Currency: "USD"})
	require.ErrorIs(t, err, gateway.ErrUnavailable)
}

func TestCancelPaymentLink(t *testing.T) {
	links := &fakeLinks{}
	require.NoError(t, newTestGateway(links).CancelPaymentLink(context.Background(), "plink_9"))
	assert.Equal(t, "plink_9", links.cancelled)
}

func TestVerifyClientPayment(t *testing.T) {
	g := newTestGateway(&fakeLinks{})
	ctx := context.Background()

	orderSig := signature.SignHex("key_secret", []byte("plink_1|pay_1"))
	id, err := g.VerifyClientPayment(ctx, &gateway.ClientConfirmation{LinkID: "plink_1", PaymentID: "pay_1", Signature: orderSig})
	require.NoError(t, err)
	assert.Equal(t, "pay_1", id)

	linkSig := signature.SignHex("key_secret", []byte("plink_1|ref_1|paid|pay_1"))
	_, err = g.VerifyClientPayment(ctx, &gateway.ClientConfirmation{LinkID: "plink_1", PaymentID: "pay_1", ReferenceID: "ref_1", Status: "paid", Signature: linkSig})
	require.NoError(t, err)

	_, err = g.VerifyClientPayment(ctx, &gateway.ClientConfirmation{LinkID: "plink_1", PaymentID: "pay_2", Signature: orderSig})
	require.ErrorIs(t, err, gateway.ErrInvalidSignature)

	_, err = g.VerifyClientPayment(ctx, &gateway.ClientConfirmation{LinkID: "plink_1"})
	require.ErrorIs(t, err, gateway.ErrInvalidSignature)
}

func TestVerifyWebhook(t *testing.T) {
	g := newTestGateway(&fakeLinks{})
	body := []byte(`{"event":"payment_link.paid"}`)
	h := http.Header{}
	h.Set(HeaderSignature, signature.SignHex("wh_secret", body))
	require.NoError(t, g.VerifyWebhook(h, body))

	h.Set(HeaderSignature, signature.SignHex("wrong", body))
	require.ErrorIs(t, g.VerifyWebhook(h, body), gateway.ErrInvalidSignature)

	require.ErrorIs(t, g.VerifyWebhook(http.Header{}, body), gateway.ErrInvalidSignature)
}
