package types

import (
	"gorm.io/gorm/clause"
)

type CommonFilterOperator string

const (
	CommonFilterOperatorEq    CommonFilterOperator = "eq"
	CommonFilterOperatorNotEq CommonFilterOperator = "not_eq"
	CommonFilterOperatorLt    CommonFilterOperator = "lt"
	CommonFilterOperatorLte   CommonFilterOperator = "lte"
	CommonFilterOperatorGt    CommonFilterOperator = "gt"
	CommonFilterOperatorGte   CommonFilterOperator = "gte"
	// CommonFilterOperatorRange is inclusive on both ends.
	CommonFilterOperatorRange CommonFilterOperator = "range"
	// CommonFilterOperatorDateRange is [Values[0], Values[1]).
	CommonFilterOperatorDateRange CommonFilterOperator = "date_range"
	CommonFilterOperatorIn        CommonFilterOperator = "in"
)

// CommonFilter is one condition of an admin list query. Field is a column
// name and must be checked against a whitelist before use.
type CommonFilter struct {
	Field    string               `json:"field"`
	Operator CommonFilterOperator `json:"operator"`
	Values   []any                `json:"values"`
}

// Build constructs a GORM expression. A filter without values, or with an
// unknown operator, matches everything.
func (f *CommonFilter) Build(builder clause.Builder) {
	if len(f.Values) == 0 {
		builder.WriteString("1=1")
		return
	}

	col := clause.Column{Name: f.Field}
	value := f.Values[0]

	switch f.Operator {
	case CommonFilterOperatorEq:
		clause.Eq{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorNotEq:
		clause.Neq{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorLt:
		clause.Lt{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorLte:
		clause.Lte{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorGt:
		clause.Gt{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorGte:
		clause.Gte{Column: col, Value: value}.Build(builder)
	case CommonFilterOperatorRange:
		if len(f.Values) < 2 {
			builder.WriteString("1=1")
			return
		}
		clause.And(clause.Gte{Column: col, Value: f.Values[0]}, clause.Lte{Column: col, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorDateRange:
		if len(f.Values) < 2 {
			builder.WriteString("1=1")
			return
		}
		clause.And(clause.Gte{Column: col, Value: f.Values[0]}, clause.Lt{Column: col, Value: f.Values[1]}).Build(builder)
	case CommonFilterOperatorIn:
		clause.IN{Column: col, Values: f.Values}.Build(builder)
	default:
		builder.WriteString("1=1")
	}
}

// ScanRequest is the admin list query shared by list endpoints.
type ScanRequest struct {
	Filters   []*CommonFilter `json:"filters"`
	From      int             `json:"from"`
	Size      int             `json:"size"`
	SortBy    string          `json:"sort_by"`
	SortOrder string          `json:"sort_order"`
}

type ScanResponse[T any] struct {
	Items []T   `json:"items"`
	Total int64 `json:"total"`
}
