package types

import (
	"bytes"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// FeatureKey names a gated capability. The set is closed: a plan feature map
// may only carry these keys.
type FeatureKey string

const (
	FeatureLinks           FeatureKey = "links"
	FeaturePages           FeatureKey = "pages"
	FeatureAllowedTemplate FeatureKey = "allowedTemplates"
	FeatureThemes          FeatureKey = "themes"
	FeatureAnalytics       FeatureKey = "analytics"
	FeatureCustomQR        FeatureKey = "customQR"
	FeatureSEO             FeatureKey = "seo"
	FeatureRemoveWatermark FeatureKey = "removeWatermark"
	FeatureCustomBranding  FeatureKey = "customBranding"
)

var KnownFeatureKeys = []FeatureKey{
	FeatureLinks,
	FeaturePages,
	FeatureAllowedTemplate,
	FeatureThemes,
	FeatureAnalytics,
	FeatureCustomQR,
	FeatureSEO,
	FeatureRemoveWatermark,
	FeatureCustomBranding,
}

func (k FeatureKey) Known() bool {
	return slices.Contains(KnownFeatureKeys, k)
}

// ParseFeatureKey resolves s to a known key ignoring case. Config loaders
// lowercase map keys, so "allowedtemplates" must still resolve.
func ParseFeatureKey(s string) (FeatureKey, bool) {
	for _, k := range KnownFeatureKeys {
		if strings.EqualFold(string(k), s) {
			return k, true
		}
	}
	return FeatureKey(s), false
}

type FeatureKind int

const (
	FeatureKindNumeric FeatureKind = iota + 1
	FeatureKindUnlimited
	FeatureKindAllowedSet
	FeatureKindBoolean
)

func (k FeatureKind) String() string {
	switch k {
	case FeatureKindNumeric:
		return "numeric"
	case FeatureKindUnlimited:
		return "unlimited"
	case FeatureKindAllowedSet:
		return "allowed_set"
	case FeatureKindBoolean:
		return "boolean"
	default:
		return "invalid"
	}
}

// unlimitedSentinel is the wire form of an unlimited feature value.
const unlimitedSentinel = "ALL"

// FeatureValue is one of: a numeric limit, unlimited, a set of allowed items,
// or a boolean flag. The zero value is invalid and denies everything.
type FeatureValue struct {
	kind  FeatureKind
	limit int64
	items []string
	flag  bool
}

func Unlimited() FeatureValue { return FeatureValue{kind: FeatureKindUnlimited} }

func Numeric(limit int64) FeatureValue { return FeatureValue{kind: FeatureKindNumeric, limit: limit} }

func AllowedSet(items ...string) FeatureValue {
	return FeatureValue{kind: FeatureKindAllowedSet, items: slices.Clone(items)}
}

func Boolean(flag bool) FeatureValue { return FeatureValue{kind: FeatureKindBoolean, flag: flag} }

func (v FeatureValue) Kind() FeatureKind { return v.kind }

func (v FeatureValue) Limit() int64 { return v.limit }

func (v FeatureValue) Flag() bool { return v.flag }

func (v FeatureValue) Items() []string { return slices.Clone(v.items) }

// Contains reports whether item is in an allowed set.
func (v FeatureValue) Contains(item string) bool {
	return v.kind == FeatureKindAllowedSet && slices.Contains(v.items, item)
}

func (v FeatureValue) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case FeatureKindNumeric:
		return []byte(strconv.FormatInt(v.limit, 10)), nil
	case FeatureKindUnlimited:
		return json.Marshal(unlimitedSentinel)
	case FeatureKindAllowedSet:
		if v.items == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.items)
	case FeatureKindBoolean:
		return json.Marshal(v.flag)
	default:
		return nil, fmt.Errorf("feature value has no kind")
	}
}

func (v *FeatureValue) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 {
		return fmt.Errorf("empty feature value")
	}
	switch data[0] {
	case '"':
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		if s != unlimitedSentinel {
			return fmt.Errorf("unsupported feature string %q", s)
		}
		*v = Unlimited()
	case '[':
		var items []string
		if err := json.Unmarshal(data, &items); err != nil {
			return fmt.Errorf("allowed set must be a list of strings: %w", err)
		}
		*v = AllowedSet(items...)
	case 't', 'f':
		var b bool
		if err := json.Unmarshal(data, &b); err != nil {
			return err
		}
		*v = Boolean(b)
	default:
		n, err := strconv.ParseInt(string(data), 10, 64)
		if err != nil {
			return fmt.Errorf("numeric limit must be an integer: %w", err)
		}
		if n < 0 {
			return fmt.Errorf("numeric limit must not be negative: %d", n)
		}
		*v = Numeric(n)
	}
	return nil
}

// FeatureMap is the entitlement table of one plan.
type FeatureMap map[FeatureKey]FeatureValue

func (m FeatureMap) Get(key FeatureKey) (FeatureValue, bool) {
	v, ok := m[key]
	return v, ok
}

// Normalize rewrites keys to their canonical spelling.
func (m FeatureMap) Normalize() (FeatureMap, error) {
	out := make(FeatureMap, len(m))
	for k, v := range m {
		key, ok := ParseFeatureKey(string(k))
		if !ok {
			return nil, fmt.Errorf("unknown feature key %q", k)
		}
		out[key] = v
	}
	return out, nil
}

// Validate rejects keys outside the known set and values without a kind.
func (m FeatureMap) Validate() error {
	for k, v := range m {
		if !k.Known() {
			return fmt.Errorf("unknown feature key %q", k)
		}
		if v.kind == 0 {
			return fmt.Errorf("feature %q has no value", k)
		}
	}
	return nil
}
