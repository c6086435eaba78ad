// Package stripe adapts Stripe Checkout sessions to the gateway port. A
// checkout session plays the role of a payment link.
package stripe

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	stripesdk "github.com/stripe/stripe-go/v82"
	"github.com/stripe/stripe-go/v82/checkout/session"
	"github.com/stripe/stripe-go/v82/webhook"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/types"
)

const (
	HeaderSignature = "Stripe-Signature"

	EventSessionCompleted             = "checkout.session.completed"
	EventSessionAsyncPaymentSucceeded = "checkout.session.async_payment_succeeded"
	EventSessionAsyncPaymentFailed    = "checkout.session.async_payment_failed"
	EventSessionExpired               = "checkout.session.expired"

	paymentStatusPaid = "paid"
)

// sessionAPI is the subset of the checkout session resource we call.
type sessionAPI interface {
	New(params *stripesdk.CheckoutSessionParams) (*stripesdk.CheckoutSession, error)
	Get(id string, params *stripesdk.CheckoutSessionParams) (*stripesdk.CheckoutSession, error)
	Expire(id string, params *stripesdk.CheckoutSessionExpireParams) (*stripesdk.CheckoutSession, error)
}

type sdkSessions struct{}

func (sdkSessions) New(p *stripesdk.CheckoutSessionParams) (*stripesdk.CheckoutSession, error) {
	return session.New(p)
}

func (sdkSessions) Get(id string, p *stripesdk.CheckoutSessionParams) (*stripesdk.CheckoutSession, error) {
	return session.Get(id, p)
}

func (sdkSessions) Expire(id string, p *stripesdk.CheckoutSessionExpireParams) (*stripesdk.CheckoutSession, error) {
	return session.Expire(id, p)
}

type Gateway struct {
	sessions      sessionAPI
	webhookSecret string
	successURL    string
	cancelURL     string
	timeout       time.Duration
	log           *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Gateway {
	stripesdk.Key = cfg.Stripe.APIKey
	if cfg.Billing.GatewayTimeout > 0 {
		stripesdk.SetBackend(stripesdk.APIBackend, stripesdk.GetBackendWithConfig(stripesdk.APIBackend, &stripesdk.BackendConfig{
			HTTPClient: &http.Client{Timeout: cfg.Billing.GatewayTimeout},
		}))
	}
	if cfg.Stripe.APIKey == "" {
		log.Warnw("stripe api key missing; checkout creation will fail")
	}
	return &Gateway{
		sessions:      sdkSessions{},
		webhookSecret: cfg.Stripe.WebhookSecret,
		successURL:    cfg.Stripe.SuccessURL,
		cancelURL:     cfg.Stripe.CancelURL,
		timeout:       cfg.Billing.GatewayTimeout,
		log:           log,
	}
}

func (g *Gateway) Provider() types.PaymentProvider { return types.PaymentProviderStripe }

func (g *Gateway) CreatePaymentLink(ctx context.Context, req *gateway.LinkRequest) (*gateway.Link, error) {
	successURL := g.successURL
	if successURL == "" {
		successURL = req.CallbackURL
	}
	params := &stripesdk.CheckoutSessionParams{
		Mode:              stripesdk.String(string(stripesdk.CheckoutSessionModePayment)),
		SuccessURL:        stripesdk.String(withSessionID(successURL)),
		ClientReferenceID: stripesdk.String(req.Reference),
		LineItems: []*stripesdk.CheckoutSessionLineItemParams{{
			PriceData: &stripesdk.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripesdk.String(strings.ToLower(req.Currency)),
				UnitAmount: stripesdk.Int64(req.Amount.Shift(2).IntPart()),
				ProductData: &stripesdk.CheckoutSessionLineItemPriceDataProductDataParams{
					Name: stripesdk.String(fmt.Sprintf("%s plan", req.PlanName)),
				},
			},
			Quantity: stripesdk.Int64(1),
		}},
		Metadata: map[string]string{
			"user_id":     req.UserID,
			"plan_id":     req.PlanID,
			"plan_slug":   req.PlanSlug,
			"payment_ref": req.Reference,
		},
	}
	if g.cancelURL != "" {
		params.CancelURL = stripesdk.String(g.cancelURL)
	}
	if req.UserEmail != "" {
		params.CustomerEmail = stripesdk.String(req.UserEmail)
	}

	s, err := gateway.Call(ctx, g.timeout, func() (*stripesdk.CheckoutSession, error) {
		return g.sessions.New(params)
	})
	if err != nil {
		return nil, wrapSDKError("create checkout session", err)
	}
	return &gateway.Link{ID: s.ID, URL: s.URL}, nil
}

func (g *Gateway) CancelPaymentLink(ctx context.Context, linkID string) error {
	_, err := gateway.Call(ctx, g.timeout, func() (*stripesdk.CheckoutSession, error) {
		return g.sessions.Expire(linkID, &stripesdk.CheckoutSessionExpireParams{})
	})
	if err != nil {
		return wrapSDKError("expire checkout session", err)
	}
	return nil
}

// VerifyClientPayment asks Stripe for the session state; the browser carries
// no signature in this flow.
func (g *Gateway) VerifyClientPayment(ctx context.Context, req *gateway.ClientConfirmation) (string, error) {
	s, err := gateway.Call(ctx, g.timeout, func() (*stripesdk.CheckoutSession, error) {
		return g.sessions.Get(req.LinkID, nil)
	})
	if err != nil {
		return "", wrapSDKError("get checkout session", err)
	}
	if string(s.PaymentStatus) != paymentStatusPaid {
		return "", fmt.Errorf("%w: session %s is %s", gateway.ErrNotPaid, s.ID, s.PaymentStatus)
	}
	return paymentIDOf(s), nil
}

func (g *Gateway) VerifyWebhook(header http.Header, body []byte) error {
	_, err := webhook.ConstructEventWithOptions(body, header.Get(HeaderSignature), g.webhookSecret, webhook.ConstructEventOptions{
		IgnoreAPIVersionMismatch: true,
	})
	if err != nil {
		return fmt.Errorf("%w: %v", gateway.ErrInvalidSignature, err)
	}
	return nil
}

func (g *Gateway) ParseWebhook(_ http.Header, body []byte) (*gateway.Envelope, error) {
	var ev stripesdk.Event
	if err := json.Unmarshal(body, &ev); err != nil {
		return nil, fmt.Errorf("%w: %v", gateway.ErrUnparseable, err)
	}
	if ev.Type == "" {
		return nil, fmt.Errorf("%w: missing event type", gateway.ErrUnparseable)
	}
	env := &gateway.Envelope{Provider: types.PaymentProviderStripe, Type: string(ev.Type)}
	if ev.ID != "" {
		env.ExternalID, env.KeySource = ev.ID, types.KeySourceEventID
	}

	switch string(ev.Type) {
	case EventSessionCompleted, EventSessionAsyncPaymentSucceeded, EventSessionExpired, EventSessionAsyncPaymentFailed:
	default:
		env.Event = gateway.Unhandled{}
		return env, nil
	}

	if ev.Data == nil || len(ev.Data.Raw) == 0 {
		return nil, fmt.Errorf("%w: %s without session", gateway.ErrUnparseable, ev.Type)
	}
	var s stripesdk.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &s); err != nil || s.ID == "" {
		return nil, fmt.Errorf("%w: %s without session", gateway.ErrUnparseable, ev.Type)
	}
	if env.ExternalID == "" {
		env.ExternalID, env.KeySource = string(ev.Type)+":"+s.ID, types.KeySourceEntityID
	}

	switch string(ev.Type) {
	case EventSessionCompleted, EventSessionAsyncPaymentSucceeded:
		// completed fires before delayed methods settle; wait for
		// async_payment_succeeded in that case
		if string(s.PaymentStatus) != paymentStatusPaid {
			env.Event = gateway.Unhandled{}
			return env, nil
		}
		env.Event = gateway.PaymentPaid{LinkID: s.ID, Reference: s.ClientReferenceID, PaymentID: paymentIDOf(&s)}
	case EventSessionExpired:
		env.Event = gateway.LinkClosed{LinkID: s.ID, Status: types.PaymentStatusExpired}
	case EventSessionAsyncPaymentFailed:
		env.Event = gateway.LinkClosed{LinkID: s.ID, Status: types.PaymentStatusFailed}
	}
	return env, nil
}

func paymentIDOf(s *stripesdk.CheckoutSession) string {
	if s.PaymentIntent != nil && s.PaymentIntent.ID != "" {
		return s.PaymentIntent.ID
	}
	return s.ID
}

func withSessionID(u string) string {
	if u == "" || strings.Contains(u, "{CHECKOUT_SESSION_ID}") {
		return u
	}
	sep := "?"
	if strings.Contains(u, "?") {
		sep = "&"
	}
	return u + sep + "session_id={CHECKOUT_SESSION_ID}"
}

func wrapSDKError(op string, err error) error {
	if errors.Is(err, gateway.ErrUnavailable) {
		return fmt.Errorf("stripe %s: %w", op, err)
	}
	var se *stripesdk.Error
	if errors.As(err, &se) && se.HTTPStatusCode >= 400 && se.HTTPStatusCode < 500 {
		return fmt.Errorf("stripe %s: %w", op, err)
	}
	return fmt.Errorf("stripe %s: %w: %v", op, gateway.ErrUnavailable, err)
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config, log *zap.SugaredLogger) gateway.Gateway { return New(cfg, log) },
			fx.ResultTags(`group:"gateways"`),
		),
	),
)
