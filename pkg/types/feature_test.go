package types

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFeatureValue_UnmarshalJSON(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		kind    FeatureKind
		wantErr bool
	}{
		{name: "numeric", in: `5`, kind: FeatureKindNumeric},
		{name: "unlimited sentinel", in: `"ALL"`, kind: FeatureKindUnlimited},
		{name: "allowed set", in: `["classic","bento"]`, kind: FeatureKindAllowedSet},
		{name: "boolean", in: `true`, kind: FeatureKindBoolean},
		{name: "other string", in: `"all"`, wantErr: true},
		{name: "fractional limit", in: `1.5`, wantErr: true},
		{name: "negative limit", in: `-1`, wantErr: true},
		{name: "mixed set", in: `["a",1]`, wantErr: true},
		{name: "object", in: `{}`, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var v FeatureValue
			err := json.Unmarshal([]byte(tt.in), &v)
			if tt.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.kind, v.Kind())
		})
	}
}

func TestFeatureMap_DecodesPlanRow(t *testing.T) {
	var m FeatureMap
	require.NoError(t, json.Unmarshal([]byte(`{"links":5,"allowedTemplates":["classic"],"themes":"ALL","seo":false}`), &m))
	require.NoError(t, m.Validate())

	links, ok := m.Get(FeatureLinks)
	require.True(t, ok)
	assert.EqualValues(t, 5, links.Limit())
	assert.True(t, m[FeatureAllowedTemplate].Contains("classic"))
	assert.False(t, m[FeatureAllowedTemplate].Contains("bento"))
	assert.Equal(t, FeatureKindUnlimited, m[FeatureThemes].Kind())

	out, err := json.Marshal(m[FeatureThemes])
	require.NoError(t, err)
	assert.JSONEq(t, `"ALL"`, string(out))
}

func TestFeatureMap_NormalizeAndValidate(t *testing.T) {
	m := FeatureMap{"allowedtemplates": AllowedSet("classic"), "LINKS": Numeric(1)}
	n, err := m.Normalize()
	require.NoError(t, err)
	assert.Contains(t, n, FeatureAllowedTemplate)
	assert.Contains(t, n, FeatureLinks)

	_, err = FeatureMap{"storage": Numeric(1)}.Normalize()
	require.Error(t, err)

	require.Error(t, FeatureMap{FeatureLinks: {}}.Validate())
}

func TestPaymentStatus_CanTransitionTo(t *testing.T) {
	tests := []struct {
		from, to PaymentStatus
		want     bool
	}{
		{PaymentStatusCreated, PaymentStatusCaptured, true},
		{PaymentStatusCreated, PaymentStatusExpired, true},
		{PaymentStatusCreated, PaymentStatusCreated, false},
		{PaymentStatusCaptured, PaymentStatusExpired, false},
		{PaymentStatusCaptured, PaymentStatusCaptured, false},
		{PaymentStatusExpired, PaymentStatusCaptured, true},
		{PaymentStatusExpired, PaymentStatusCancelled, false},
		{PaymentStatusFailed, PaymentStatusCreated, false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.from.CanTransitionTo(tt.to), "%s -> %s", tt.from, tt.to)
	}
}
