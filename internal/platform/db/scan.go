package db

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/plankeeper/pkg/types"
)

const maxScanSize = 200

var ErrInvalidScan = errors.New("invalid scan request")

// filtersAnd combines multiple CommonFilter into a single clause.Expression.
type filtersAnd struct{ filters []*types.CommonFilter }

func (w filtersAnd) Build(builder clause.Builder) {
	if len(w.filters) == 0 {
		builder.WriteString("1=1")
		return
	}
	exprs := make([]clause.Expression, 0, len(w.filters))
	for _, f := range w.filters {
		exprs = append(exprs, f)
	}
	clause.And(exprs...).Build(builder)
}

// Scan runs a paginated, filtered listing of T. Only columns present in
// columns may be filtered or sorted on.
func Scan[T any](ctx context.Context, db *gorm.DB, req *types.ScanRequest, columns map[string]bool) (*types.ScanResponse[*T], error) {
	if req == nil {
		return nil, fmt.Errorf("nil request")
	}
	if req.Size <= 0 {
		req.Size = 10
	}
	if req.Size > maxScanSize {
		req.Size = maxScanSize
	}
	if req.From < 0 {
		req.From = 0
	}
	for _, f := range req.Filters {
		if f == nil || !columns[f.Field] {
			return nil, fmt.Errorf("%w: filter field %v", ErrInvalidScan, fieldName(f))
		}
	}
	if req.SortBy != "" && !columns[req.SortBy] {
		return nil, fmt.Errorf("%w: sort field %s", ErrInvalidScan, req.SortBy)
	}

	tx := db.WithContext(ctx).Model(new(T))
	if len(req.Filters) > 0 {
		tx = tx.Where(clause.Where{Exprs: []clause.Expression{filtersAnd{filters: req.Filters}}})
	}

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("failed to count rows: %w", err)
	}

	q := tx.Limit(req.Size)
	if req.From > 0 {
		q = q.Offset(req.From)
	}
	sortBy := req.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	q = q.Order(clause.OrderBy{Columns: []clause.OrderByColumn{{Column: clause.Column{Name: sortBy}, Desc: req.SortOrder != "asc"}}})

	var rows []*T
	if err := q.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("failed to list rows: %w", err)
	}
	return &types.ScanResponse[*T]{Items: rows, Total: total}, nil
}

func fieldName(f *types.CommonFilter) string {
	if f == nil {
		return "<nil>"
	}
	return f.Field
}
