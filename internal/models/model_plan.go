package models

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"

	"github.com/fatflowers/plankeeper/pkg/types"
)

// Plan is a catalog entry. Exactly one plan has a zero price; it is the
// fallback every expired user lands on.
type Plan struct {
	ID       string          `gorm:"column:id;type:uuid;primary_key" json:"id"`
	Slug     string          `gorm:"column:slug;type:varchar(64);not null;uniqueIndex:unique_plan_slug" json:"slug"`
	Name     string          `gorm:"column:name;type:varchar(128);not null" json:"name"`
	Price    decimal.Decimal `gorm:"column:price;type:numeric(12,2);not null" json:"price"`
	Currency string          `gorm:"column:currency;type:varchar(8);not null" json:"currency"`
	IsActive bool            `gorm:"column:is_active;not null" json:"is_active"`
	// Features maps each gated capability to its limit.
	Features  datatypes.JSONType[types.FeatureMap] `gorm:"column:features;type:jsonb" json:"features"`
	CreatedAt time.Time                            `json:"created_at"`
	UpdatedAt time.Time                            `json:"updated_at"`
}

func (Plan) TableName() string {
	return "plan"
}

func (p *Plan) IsFree() bool {
	return p != nil && p.Price.IsZero()
}

func (p *Plan) FeatureMap() types.FeatureMap {
	if p == nil {
		return nil
	}
	return p.Features.Data()
}
