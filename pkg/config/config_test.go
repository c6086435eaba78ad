package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/plankeeper/pkg/types"
)

func TestNew_DefaultsAndPlanSeeds(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte(`
env: dev
billing:
  callback_url: https://example.com/billing/return
plans:
  - slug: free
    name: Free
    price: 0
    currency: USD
    is_active: true
    features:
      links: 5
      themes: [light, dark]
      seo: false
  - slug: pro
    name: Pro
    price: "9.00"
    currency: USD
    is_active: true
    features:
      links: 1000
      allowedTemplates: ALL
      seo: true
`), 0o600))
	t.Setenv("APP_CONFIG_FILE", file)
	t.Setenv("APP_SCHEDULER_BATCH_SIZE", "50")

	cfg, err := New()
	require.NoError(t, err)

	assert.Equal(t, EnvDev, cfg.Env)
	assert.Equal(t, 30*24*time.Hour, cfg.Billing.Period())
	assert.Equal(t, 7*24*time.Hour, cfg.Billing.RenewalWindow())
	assert.Equal(t, 10*time.Second, cfg.Billing.GatewayTimeout)
	assert.Equal(t, "@every 1m", cfg.Scheduler.ExpirySpec)
	assert.Equal(t, 50, cfg.Scheduler.BatchSize)
	assert.Equal(t, "https://example.com/billing/return", cfg.Billing.CallbackURL)

	require.Len(t, cfg.Plans, 2)
	pro := cfg.Plans[1]
	assert.True(t, pro.Price.Equal(decimal.RequireFromString("9")))
	links, ok := pro.Features.Get(types.FeatureLinks)
	require.True(t, ok)
	assert.Equal(t, types.FeatureKindNumeric, links.Kind())
	assert.EqualValues(t, 1000, links.Limit())
	tpl, _ := pro.Features.Get(types.FeatureAllowedTemplate)
	assert.Equal(t, types.FeatureKindUnlimited, tpl.Kind())
	themes, _ := cfg.Plans[0].Features.Get(types.FeatureThemes)
	assert.True(t, themes.Contains("dark"))
}

func TestNew_RejectsSignatureBypassInProd(t *testing.T) {
	dir := t.TempDir()
	file := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(file, []byte("env: prod\nwebhook:\n  skip_signature_verify: true\n"), 0o600))
	t.Setenv("APP_CONFIG_FILE", file)

	_, err := New()
	require.Error(t, err)
}

func TestDefaultPlans_Valid(t *testing.T) {
	free := 0
	for _, p := range DefaultPlans() {
		require.NoError(t, p.Features.Validate(), p.Slug)
		if p.Price.IsZero() {
			free++
		}
	}
	assert.Equal(t, 1, free)
}
