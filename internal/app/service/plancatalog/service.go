package plancatalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/fatflowers/plankeeper/internal/models"
	"github.com/fatflowers/plankeeper/pkg/logctx"
	"github.com/fatflowers/plankeeper/pkg/tool"
	"github.com/fatflowers/plankeeper/pkg/types"
)

var (
	ErrPlanNotFound   = errors.New("plan not found")
	ErrCatalogInvalid = errors.New("plan catalog must contain exactly one zero-price plan")
)

// InvalidateChannel carries catalog change notices between instances.
const InvalidateChannel = "plankeeper:plan_catalog:invalidate"

type snapshot struct {
	byID   map[string]*models.Plan
	bySlug map[string]*models.Plan
	free   *models.Plan
	sorted []*models.Plan
}

// Service caches the plan catalog in memory. Returned plans are shared and
// must be treated as read-only.
type Service struct {
	db  *gorm.DB
	rdb *redis.Client
	log *zap.SugaredLogger

	mu   sync.RWMutex
	snap *snapshot
}

// NewService builds an empty catalog; call Reload before use. rdb may be nil.
func NewService(db *gorm.DB, rdb *redis.Client, log *zap.SugaredLogger) *Service {
	return &Service{db: db, rdb: rdb, log: log, snap: &snapshot{byID: map[string]*models.Plan{}, bySlug: map[string]*models.Plan{}}}
}

// Seed upserts plans by slug.
func (s *Service) Seed(ctx context.Context, seeds []*types.PlanSeed) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, seed := range seeds {
			if _, err := upsertPlan(ctx, tx, seed); err != nil {
				return err
			}
		}
		return checkCatalog(ctx, tx)
	})
}

// Upsert writes one plan, reloads the cache and tells other instances to
// reload theirs.
func (s *Service) Upsert(ctx context.Context, seed *types.PlanSeed) (*models.Plan, error) {
	if seed == nil || seed.Slug == "" {
		return nil, fmt.Errorf("plan slug is required")
	}
	features, err := seed.Features.Normalize()
	if err != nil {
		return nil, err
	}
	if err := features.Validate(); err != nil {
		return nil, err
	}
	seed.Features = features

	var plan *models.Plan
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if plan, err = upsertPlan(ctx, tx, seed); err != nil {
			return err
		}
		return checkCatalog(ctx, tx)
	})
	if err != nil {
		return nil, err
	}
	if err := s.Invalidate(ctx); err != nil {
		return nil, err
	}
	return plan, nil
}

func upsertPlan(ctx context.Context, tx *gorm.DB, seed *types.PlanSeed) (*models.Plan, error) {
	plan := &models.Plan{
		ID:       tool.GenerateUUIDV7(),
		Slug:     seed.Slug,
		Name:     seed.Name,
		Price:    seed.Price,
		Currency: seed.Currency,
		IsActive: seed.IsActive,
		Features: datatypes.NewJSONType(seed.Features),
	}
	err := tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "slug"}},
		DoUpdates: clause.AssignmentColumns([]string{"name", "price", "currency", "is_active", "features", "updated_at"}),
	}).Create(plan).Error
	if err != nil {
		return nil, fmt.Errorf("failed to upsert plan %s: %w", seed.Slug, err)
	}
	var stored models.Plan
	if err := tx.WithContext(ctx).Where("slug = ?", seed.Slug).First(&stored).Error; err != nil {
		return nil, fmt.Errorf("failed to reload plan %s: %w", seed.Slug, err)
	}
	return &stored, nil
}

func checkCatalog(ctx context.Context, tx *gorm.DB) error {
	var free int64
	if err := tx.WithContext(ctx).Model(&models.Plan{}).Where("price = 0").Count(&free).Error; err != nil {
		return fmt.Errorf("failed to count free plans: %w", err)
	}
	if free != 1 {
		return fmt.Errorf("%w: found %d", ErrCatalogInvalid, free)
	}
	return nil
}

// Reload replaces the cache with the current table contents.
func (s *Service) Reload(ctx context.Context) error {
	var plans []*models.Plan
	if err := s.db.WithContext(ctx).Order("price asc, slug asc").Find(&plans).Error; err != nil {
		return fmt.Errorf("failed to load plans: %w", err)
	}
	snap := &snapshot{
		byID:   make(map[string]*models.Plan, len(plans)),
		bySlug: make(map[string]*models.Plan, len(plans)),
		sorted: plans,
	}
	for _, p := range plans {
		snap.byID[p.ID] = p
		snap.bySlug[p.Slug] = p
		if p.IsFree() {
			if snap.free != nil {
				return fmt.Errorf("%w: %s and %s", ErrCatalogInvalid, snap.free.Slug, p.Slug)
			}
			snap.free = p
		}
	}
	if snap.free == nil {
		return fmt.Errorf("%w: found none", ErrCatalogInvalid)
	}

	s.mu.Lock()
	s.snap = snap
	s.mu.Unlock()
	logctx.FromCtx(ctx, s.log).Infow("plan catalog loaded", "plans", len(plans), "free_plan", snap.free.Slug)
	return nil
}

// Invalidate reloads locally and publishes a change notice.
func (s *Service) Invalidate(ctx context.Context) error {
	if err := s.Reload(ctx); err != nil {
		return err
	}
	if s.rdb == nil {
		return nil
	}
	if err := s.rdb.Publish(ctx, InvalidateChannel, tool.GenerateUUIDV7()).Err(); err != nil {
		// peers keep a stale catalog until their next reload
		logctx.FromCtx(ctx, s.log).Errorw("plan catalog invalidation publish failed", "err", err)
	}
	return nil
}

// Listen reloads the cache on every change notice until ctx is done.
func (s *Service) Listen(ctx context.Context) {
	if s.rdb == nil {
		return
	}
	sub := s.rdb.Subscribe(ctx, InvalidateChannel)
	defer sub.Close()
	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return
		case _, ok := <-ch:
			if !ok {
				return
			}
			if err := s.Reload(ctx); err != nil {
				s.log.Errorw("plan catalog reload after invalidation failed", "err", err)
			}
		}
	}
}

func (s *Service) Free() *models.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.snap.free
}

func (s *Service) Get(id string) (*models.Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.snap.byID[id]
	return p, ok
}

func (s *Service) GetBySlug(slug string) (*models.Plan, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.snap.bySlug[slug]
	return p, ok
}

// List returns active plans ordered by price.
func (s *Service) List() []*models.Plan {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Plan, 0, len(s.snap.sorted))
	for _, p := range s.snap.sorted {
		if p.IsActive {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Price.LessThan(out[j].Price) })
	return out
}
