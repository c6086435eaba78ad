package entitlement

import (
	"time"

	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/types"
)

// PlanLookup is the slice of the plan catalog the resolver reads.
type PlanLookup interface {
	Free() *models.Plan
	Get(id string) (*models.Plan, bool)
}

// EffectivePlan returns the plan whose features apply to u at now. A user
// with no plan, an unknown plan or a lapsed paid period is on the free plan,
// whether or not the sweep has caught up yet.
func EffectivePlan(u *models.User, plans PlanLookup, now time.Time) *models.Plan {
	if u == nil || u.PlanID == nil || u.Expired(now) {
		return plans.Free()
	}
	p, ok := plans.Get(*u.PlanID)
	if !ok {
		return plans.Free()
	}
	return p
}

type requestKind int

const (
	requestNone requestKind = iota
	requestCount
	requestItem
)

// Request is what the caller wants to use a feature for.
type Request struct {
	kind  requestKind
	count int64
	item  string
}

// Flag asks whether the feature is available at all.
func Flag() Request { return Request{kind: requestNone} }

// Count asks whether n units fit, n including the one being created.
func Count(n int64) Request { return Request{kind: requestCount, count: n} }

// Item asks whether one named item is in the allowed set.
func Item(name string) Request { return Request{kind: requestItem, item: name} }

// CanAccess decides a single feature check against plan. Missing features
// and mismatched request shapes deny.
func CanAccess(plan *models.Plan, key types.FeatureKey, req Request) bool {
	if plan == nil {
		return false
	}
	v, ok := plan.FeatureMap().Get(key)
	if !ok {
		return false
	}
	switch v.Kind() {
	case types.FeatureKindUnlimited:
		return true
	case types.FeatureKindBoolean:
		return v.Flag()
	case types.FeatureKindNumeric:
		switch req.kind {
		case requestCount:
			return req.count <= v.Limit()
		case requestNone:
			return v.Limit() > 0
		default:
			return false
		}
	case types.FeatureKindAllowedSet:
		if req.kind != requestItem {
			return false
		}
		return v.Contains(req.item)
	default:
		return false
	}
}
