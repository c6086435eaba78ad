package db_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/internal/platform/db"
	"github.com/fatflowers/plankeeper/internal/platform/db/dbtest"
	"github.com/fatflowers/plankeeper/pkg/types"
)

var userColumns = map[string]bool{"id": true, "email": true, "created_at": true}

func TestScan(t *testing.T) {
	gdb := dbtest.New(t)
	base := time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		require.NoError(t, gdb.Create(&models.User{
			ID:        fmt.Sprintf("u%d", i),
			Email:     fmt.Sprintf("u%d@example.com", i),
			CreatedAt: base.Add(time.Duration(i) * 24 * time.Hour),
		}).Error)
	}
	ctx := context.Background()

	cases := []struct {
		name  string
		req   *types.ScanRequest
		ids   []string
		total int64
	}{
		{"default sort is newest first", &types.ScanRequest{Size: 2}, []string{"u4", "u3"}, 5},
		{"offset", &types.ScanRequest{Size: 2, From: 4}, []string{"u0"}, 5},
		{"ascending", &types.ScanRequest{Size: 2, SortBy: "id", SortOrder: "asc"}, []string{"u0", "u1"}, 5},
		{"eq", &types.ScanRequest{Filters: []*types.CommonFilter{
			{Field: "email", Operator: types.CommonFilterOperatorEq, Values: []any{"u2@example.com"}},
		}}, []string{"u2"}, 1},
		{"in and not eq", &types.ScanRequest{SortBy: "id", SortOrder: "asc", Filters: []*types.CommonFilter{
			{Field: "id", Operator: types.CommonFilterOperatorIn, Values: []any{"u1", "u2", "u3"}},
			{Field: "id", Operator: types.CommonFilterOperatorNotEq, Values: []any{"u2"}},
		}}, []string{"u1", "u3"}, 2},
		{"date range is half open", &types.ScanRequest{SortBy: "id", SortOrder: "asc", Filters: []*types.CommonFilter{
			{Field: "created_at", Operator: types.CommonFilterOperatorDateRange, Values: []any{base.Add(24 * time.Hour), base.Add(72 * time.Hour)}},
		}}, []string{"u1", "u2"}, 2},
		{"empty values match all", &types.ScanRequest{Filters: []*types.CommonFilter{
			{Field: "id", Operator: types.CommonFilterOperatorEq},
		}, Size: 1}, []string{"u4"}, 5},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			res, err := db.Scan[models.User](ctx, gdb, tc.req, userColumns)
			require.NoError(t, err)
			assert.Equal(t, tc.total, res.Total)
			ids := make([]string, 0, len(res.Items))
			for _, u := range res.Items {
				ids = append(ids, u.ID)
			}
			assert.Equal(t, tc.ids, ids)
		})
	}
}

func TestScanRejectsUnknownColumns(t *testing.T) {
	gdb := dbtest.New(t)
	ctx := context.Background()

	_, err := db.Scan[models.User](ctx, gdb, &types.ScanRequest{SortBy: "plan_id"}, userColumns)
	assert.ErrorIs(t, err, db.ErrInvalidScan)

	_, err = db.Scan[models.User](ctx, gdb, &types.ScanRequest{Filters: []*types.CommonFilter{
		{Field: "id = id OR 1", Operator: types.CommonFilterOperatorEq, Values: []any{1}},
	}}, userColumns)
	assert.ErrorIs(t, err, db.ErrInvalidScan)

	_, err = db.Scan[models.User](ctx, gdb, &types.ScanRequest{Filters: []*types.CommonFilter{nil}}, userColumns)
	assert.ErrorIs(t, err, db.ErrInvalidScan)
}

func TestScanCapsSize(t *testing.T) {
	gdb := dbtest.New(t)
	req := &types.ScanRequest{Size: 10_000}
	_, err := db.Scan[models.User](context.Background(), gdb, req, userColumns)
	require.NoError(t, err)
	assert.Equal(t, 200, req.Size)
}
