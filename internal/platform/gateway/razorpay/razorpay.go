// Package razorpay adapts Razorpay payment links to the gateway port.
package razorpay

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	razorpaysdk "github.com/razorpay/razorpay-go"
	"go.uber.org/fx"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/config"
	"github.com/fatflowers/plankeeper/pkg/signature"
	"github.com/fatflowers/plankeeper/pkg/types"
)

const (
	HeaderSignature = "X-Razorpay-Signature"
	HeaderEventID   = "X-Razorpay-Event-Id"
)

// linkAPI is the subset of the SDK payment link resource we call.
type linkAPI interface {
	Create(data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
	Cancel(id string, data map[string]interface{}, extraHeaders map[string]string) (map[string]interface{}, error)
}

type Gateway struct {
	links         linkAPI
	keySecret     string
	webhookSecret string
	timeout       time.Duration
	log           *zap.SugaredLogger
}

func New(cfg *config.Config, log *zap.SugaredLogger) *Gateway {
	if cfg.Razorpay.KeyID == "" || cfg.Razorpay.KeySecret == "" {
		log.Warnw("razorpay credentials missing; link creation will fail")
	}
	client := razorpaysdk.NewClient(cfg.Razorpay.KeyID, cfg.Razorpay.KeySecret)
	return &Gateway{
		links:         client.PaymentLink,
		keySecret:     cfg.Razorpay.KeySecret,
		webhookSecret: cfg.Razorpay.WebhookSecret,
		timeout:       cfg.Billing.GatewayTimeout,
		log:           log,
	}
}

func (g *Gateway) Provider() types.PaymentProvider { return types.PaymentProviderRazorpay }

func (g *Gateway) CreatePaymentLink(ctx context.Context, req *gateway.LinkRequest) (*gateway.Link, error) {
	data := map[string]interface{}{
		// amounts are in the currency's minor unit
		"amount":         req.Amount.Shift(2).IntPart(),
		"currency":       strings.ToUpper(req.Currency),
		"accept_partial": false,
		"reference_id":   req.Reference,
		"description":    fmt.Sprintf("%s plan", req.PlanName),
		"notify":         map[string]interface{}{"email": false, "sms": false},
		"notes": map[string]interface{}{
			"user_id":     req.UserID,
			"plan_id":     req.PlanID,
			"plan_slug":   req.PlanSlug,
			"payment_ref": req.Reference,
		},
	}
	if req.UserEmail != "" {
		data["customer"] = map[string]interface{}{"email": req.UserEmail}
	}
	if req.CallbackURL != "" {
		data["callback_url"] = req.CallbackURL
		data["callback_method"] = "get"
	}

	body, err := gateway.Call(ctx, g.timeout, func() (map[string]interface{}, error) {
		return g.links.Create(data, nil)
	})
	if err != nil {
		return nil, wrapSDKError("create payment link", err)
	}
	id, _ := body["id"].(string)
	url, _ := body["short_url"].(string)
	if id == "" || url == "" {
		return nil, fmt.Errorf("razorpay create payment link: missing id or short_url in response")
	}
	return &gateway.Link{ID: id, URL: url}, nil
}

func (g *Gateway) CancelPaymentLink(ctx context.Context, linkID string) error {
	_, err := gateway.Call(ctx, g.timeout, func() (map[string]interface{}, error) {
		return g.links.Cancel(linkID, nil, nil)
	})
	if err != nil {
		return wrapSDKError("cancel payment link", err)
	}
	return nil
}

// VerifyClientPayment checks the checkout signature. Payment link callbacks
// sign link|reference|status|payment; order callbacks sign link|payment.
func (g *Gateway) VerifyClientPayment(_ context.Context, req *gateway.ClientConfirmation) (string, error) {
	if req.LinkID == "" || req.PaymentID == "" || req.Signature == "" {
		return "", fmt.Errorf("%w: link_id, payment_id and signature are required", gateway.ErrInvalidSignature)
	}
	var msg string
	if req.ReferenceID != "" && req.Status != "" {
		msg = strings.Join([]string{req.LinkID, req.ReferenceID, req.Status, req.PaymentID}, "|")
	} else {
		msg = req.LinkID + "|" + req.PaymentID
	}
	if !signature.VerifyHex(g.keySecret, []byte(msg), req.Signature) {
		return "", gateway.ErrInvalidSignature
	}
	return req.PaymentID, nil
}

func (g *Gateway) VerifyWebhook(header http.Header, body []byte) error {
	if !signature.VerifyHex(g.webhookSecret, body, header.Get(HeaderSignature)) {
		return gateway.ErrInvalidSignature
	}
	return nil
}

func wrapSDKError(op string, err error) error {
	if errors.Is(err, gateway.ErrUnavailable) {
		return fmt.Errorf("razorpay %s: %w", op, err)
	}
	// the SDK reports API errors (4xx) and transport errors alike; treat both
	// as retryable from the caller's point of view
	return fmt.Errorf("razorpay %s: %w: %v", op, gateway.ErrUnavailable, err)
}

var Module = fx.Options(
	fx.Provide(
		fx.Annotate(
			func(cfg *config.Config, log *zap.SugaredLogger) gateway.Gateway { return New(cfg, log) },
			fx.ResultTags(`group:"gateways"`),
		),
	),
)
