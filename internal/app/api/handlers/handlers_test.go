package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fatflowers/plankeeper/internal/app/service/entitlement"
	"github.com/fatflowers/plankeeper/internal/app/service/ledger"
	"github.com/fatflowers/plankeeper/internal/app/service/plancatalog"
	"github.com/fatflowers/plankeeper/internal/app/service/planstate"
	"github.com/fatflowers/plankeeper/internal/app/service/statistics"
	"github.com/fatflowers/plankeeper/internal/app/service/webhook"
	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/internal/platform/gateway"
	"github.com/fatflowers/plankeeper/pkg/response"
	"github.com/fatflowers/plankeeper/pkg/types"
)

func init() { gin.SetMode(gin.TestMode) }

type envelope struct {
	Code    response.APIResponseCode `json:"code"`
	Message string                   `json:"message"`
	Data    json.RawMessage          `json:"data"`
}

func do(t *testing.T, r http.Handler, method, path string, body any) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		switch b := body.(type) {
		case string:
			buf.WriteString(b)
		default:
			require.NoError(t, json.NewEncoder(&buf).Encode(b))
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	var env envelope
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env), w.Body.String())
	return w, env
}

// asUser stands in for AuthMiddleware.
func asUser(id string) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("user_id", id)
		c.Next()
	}
}

type stubPlans struct {
	ensured    []string
	ensureErr  error
	selected   string
	selectErr  error
	confirmed  *gateway.ClientConfirmation
	confirmFor string
	confirmErr error
}

func (s *stubPlans) EnsureUser(_ context.Context, id, _ string) error {
	s.ensured = append(s.ensured, id)
	return s.ensureErr
}

func (s *stubPlans) Status(_ context.Context, userID string) (*planstate.State, error) {
	return &planstate.State{UserID: userID}, nil
}

func (s *stubPlans) SelectPlan(_ context.Context, userID, slug string, _ types.PaymentProvider) (*planstate.Selection, error) {
	s.selected = slug
	if s.selectErr != nil {
		return nil, s.selectErr
	}
	return &planstate.Selection{RedirectURL: "https://pay.example.com/plink_1", State: &planstate.State{UserID: userID}}, nil
}

func (s *stubPlans) DowngradeToFree(_ context.Context, userID string) (*planstate.State, error) {
	return &planstate.State{UserID: userID}, nil
}

func (s *stubPlans) ConfirmClientPayment(_ context.Context, userID string, _ types.PaymentProvider, req *gateway.ClientConfirmation) (*planstate.State, error) {
	s.confirmFor, s.confirmed = userID, req
	if s.confirmErr != nil {
		return nil, s.confirmErr
	}
	return &planstate.State{UserID: userID}, nil
}

type stubChecker struct {
	key types.FeatureKey
	req entitlement.Request
}

func (s *stubChecker) Check(_ context.Context, _ string, key types.FeatureKey, req entitlement.Request) (*entitlement.CheckResult, error) {
	s.key, s.req = key, req
	return &entitlement.CheckResult{Allowed: true, Feature: key, PlanSlug: "pro"}, nil
}

func userRouter(plans *stubPlans, checker *stubChecker) *gin.Engine {
	r := gin.New()
	g := r.Group("/api/v1")
	g.Use(asUser("u1"))
	RegisterUserRoutes(g, plans, checker, zap.NewNop().Sugar())
	return r
}

func TestUserRoutesEnsureUser(t *testing.T) {
	plans := &stubPlans{}
	r := userRouter(plans, &stubChecker{})

	_, env := do(t, r, http.MethodGet, "/api/v1/plan/status", nil)
	assert.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.Equal(t, []string{"u1"}, plans.ensured)

	plans.ensureErr = errors.New("db down")
	_, env = do(t, r, http.MethodGet, "/api/v1/plan/status", nil)
	assert.Equal(t, response.APIResponseCodeError, env.Code)
	assert.Equal(t, "unexpected error", env.Message)
}

func TestSelectPlan(t *testing.T) {
	cases := []struct {
		name string
		body any
		err  error
		code response.APIResponseCode
	}{
		{"ok", map[string]string{"plan": "pro"}, nil, response.APIResponseCodeOK},
		{"missing plan", map[string]string{}, nil, response.APIResponseCodeBadRequest},
		{"malformed", "{", nil, response.APIResponseCodeBadRequest},
		{"unknown plan", map[string]string{"plan": "gold"}, plancatalog.ErrPlanNotFound, response.APIResponseCodeNotFound},
		{"window closed", map[string]string{"plan": "pro"}, ledger.ErrRenewalWindowClosed, response.APIResponseCodeBadRequest},
		{"gateway down", map[string]string{"plan": "pro"}, gateway.ErrUnavailable, response.APIResponseCodeUnavailable},
		{"internal", map[string]string{"plan": "pro"}, errors.New("boom"), response.APIResponseCodeError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			plans := &stubPlans{selectErr: tc.err}
			_, env := do(t, userRouter(plans, &stubChecker{}), http.MethodPost, "/api/v1/plan/select", tc.body)
			assert.Equal(t, tc.code, env.Code)
			if tc.code == response.APIResponseCodeOK {
				var sel planstate.Selection
				require.NoError(t, json.Unmarshal(env.Data, &sel))
				assert.Equal(t, "https://pay.example.com/plink_1", sel.RedirectURL)
			}
		})
	}
}

func TestVerifyPayment(t *testing.T) {
	plans := &stubPlans{}
	r := userRouter(plans, &stubChecker{})

	_, env := do(t, r, http.MethodPost, "/api/v1/payment/verify", map[string]string{
		"provider": "razorpay", "link_id": "plink_1", "payment_id": "pay_1", "signature": "sig",
	})
	assert.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.Equal(t, "u1", plans.confirmFor)
	require.NotNil(t, plans.confirmed)
	assert.Equal(t, "plink_1", plans.confirmed.LinkID)
	assert.Equal(t, "sig", plans.confirmed.Signature)

	_, env = do(t, r, http.MethodPost, "/api/v1/payment/verify", map[string]string{"provider": "razorpay"})
	assert.Equal(t, response.APIResponseCodeBadRequest, env.Code)

	plans.confirmErr = fmt.Errorf("confirm: %w", ledger.ErrPaymentNotFound)
	_, env = do(t, r, http.MethodPost, "/api/v1/payment/verify", map[string]string{"link_id": "plink_9"})
	assert.Equal(t, response.APIResponseCodeNotFound, env.Code)
}

func TestCheckEntitlement(t *testing.T) {
	cases := []struct {
		name  string
		query string
		code  response.APIResponseCode
		req   entitlement.Request
	}{
		{"flag", "feature=analytics", response.APIResponseCodeOK, entitlement.Flag()},
		{"count", "feature=links&count=3", response.APIResponseCodeOK, entitlement.Count(3)},
		{"item", "feature=themes&item=dark", response.APIResponseCodeOK, entitlement.Item("dark")},
		{"unknown feature", "feature=teleport", response.APIResponseCodeBadRequest, entitlement.Request{}},
		{"negative count", "feature=links&count=-1", response.APIResponseCodeBadRequest, entitlement.Request{}},
		{"bad count", "feature=links&count=abc", response.APIResponseCodeBadRequest, entitlement.Request{}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			checker := &stubChecker{}
			_, env := do(t, userRouter(&stubPlans{}, checker), http.MethodGet, "/api/v1/entitlements/check?"+tc.query, nil)
			assert.Equal(t, tc.code, env.Code)
			if tc.code == response.APIResponseCodeOK {
				assert.Equal(t, tc.req, checker.req)
			}
		})
	}
}

type stubWebhooks struct{ err error }

func (s *stubWebhooks) Handle(_ context.Context, provider types.PaymentProvider, _ http.Header, _ []byte) (*webhook.Result, error) {
	if s.err != nil {
		return nil, s.err
	}
	return &webhook.Result{Outcome: webhook.OutcomeProcessed, ExternalID: "evt_1"}, nil
}

func TestPaymentWebhookStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"processed", nil, http.StatusOK},
		{"bad signature", gateway.ErrInvalidSignature, http.StatusBadRequest},
		{"unparseable", fmt.Errorf("razorpay: %w", gateway.ErrUnparseable), http.StatusBadRequest},
		{"unknown provider", gateway.ErrUnknownProvider, http.StatusBadRequest},
		{"in flight", webhook.ErrEventInFlight, http.StatusServiceUnavailable},
		{"gateway down", gateway.ErrUnavailable, http.StatusServiceUnavailable},
		{"internal", errors.New("boom"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			r := gin.New()
			RegisterWebhookRoutes(r.Group("/api/v1"), &stubWebhooks{err: tc.err}, zap.NewNop().Sugar())
			w, env := do(t, r, http.MethodPost, "/api/v1/payment/webhook/razorpay", `{"event":"payment_link.paid"}`)
			assert.Equal(t, tc.status, w.Code)
			if tc.err == nil {
				assert.Equal(t, response.APIResponseCodeOK, env.Code)
				assert.JSONEq(t, "null", string(env.Data))
			}
		})
	}
}

type stubAdmin struct {
	upserted *types.PlanSeed
	statsReq *statistics.Request
	scanReq  *types.ScanRequest
}

func (s *stubAdmin) Upsert(_ context.Context, seed *types.PlanSeed) (*models.Plan, error) {
	s.upserted = seed
	if seed.Slug == "" {
		return nil, plancatalog.ErrCatalogInvalid
	}
	return &models.Plan{ID: "p1", Slug: seed.Slug, Name: seed.Name, Price: seed.Price}, nil
}

func (s *stubAdmin) Compute(_ context.Context, req *statistics.Request) (*statistics.Response, error) {
	s.statsReq = req
	return &statistics.Response{Items: map[statistics.StatisticType][]statistics.DataPoint{}}, nil
}

type stubPaymentScan struct{ stub *stubAdmin }

func (s stubPaymentScan) Scan(_ context.Context, req *types.ScanRequest) (*types.ScanResponse[*models.Payment], error) {
	s.stub.scanReq = req
	return &types.ScanResponse[*models.Payment]{Items: []*models.Payment{{ID: "pay_1"}}, Total: 1}, nil
}

type stubWebhookScan struct{}

func (stubWebhookScan) Scan(context.Context, *types.ScanRequest) (*types.ScanResponse[*models.WebhookLog], error) {
	return nil, fmt.Errorf("scan: %w", errors.New("db down"))
}

func TestAdminRoutes(t *testing.T) {
	stub := &stubAdmin{}
	r := gin.New()
	RegisterAdminRoutes(r.Group("/api/v1/admin"), AdminServices{
		Payments: stubPaymentScan{stub: stub},
		Webhooks: stubWebhookScan{},
		Plans:    stub,
		Stats:    stub,
	}, zap.NewNop().Sugar())

	_, env := do(t, r, http.MethodPost, "/api/v1/admin/payments/list", map[string]any{"size": 10, "sort_by": "created_at"})
	assert.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.Equal(t, 10, stub.scanReq.Size)
	assert.Contains(t, string(env.Data), "pay_1")

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/webhook_logs/list", map[string]any{})
	assert.Equal(t, response.APIResponseCodeError, env.Code)

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/plans/upsert", map[string]any{
		"slug": "team", "name": "Team", "price": "19", "currency": "USD", "is_active": true,
		"features": map[string]any{"links": 100},
	})
	assert.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.Equal(t, "team", stub.upserted.Slug)
	var item PlanItem
	require.NoError(t, json.Unmarshal(env.Data, &item))
	assert.Equal(t, "p1", item.ID)

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/plans/upsert", map[string]any{"name": "nameless"})
	assert.Equal(t, response.APIResponseCodeBadRequest, env.Code)

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/statistics", map[string]any{"items": []string{"daily_revenue"}})
	assert.Equal(t, response.APIResponseCodeOK, env.Code)
	assert.Equal(t, []statistics.StatisticType{statistics.StatisticTypeDailyRevenue}, stub.statsReq.Items)

	_, env = do(t, r, http.MethodPost, "/api/v1/admin/statistics", map[string]any{})
	assert.Equal(t, response.APIResponseCodeBadRequest, env.Code)
}

func TestListPlans(t *testing.T) {
	r := gin.New()
	RegisterPublicPlanRoutes(r.Group("/api/v1"), planList{{ID: "p0", Slug: "free"}, {ID: "p1", Slug: "pro"}})
	_, env := do(t, r, http.MethodGet, "/api/v1/plans", nil)
	var items []PlanItem
	require.NoError(t, json.Unmarshal(env.Data, &items))
	require.Len(t, items, 2)
	assert.Equal(t, "pro", items[1].Slug)
}

type planList []*models.Plan

func (l planList) List() []*models.Plan { return l }
