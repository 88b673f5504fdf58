package ledger

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/meridian-wms/meridian-wms/internal/shared"
)

// TxStore exposes the transactional lot operations used by the service.
type TxStore interface {
	GetLotForUpdate(ctx context.Context, lotID int64) (Lot, error)
	SetRemaining(ctx context.Context, lotID int64, remaining float64) error
}

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	ListBySKULocation(ctx context.Context, skuID, locationID int64, activeOnly bool) ([]Lot, error)
	WithTx(ctx context.Context, fn func(context.Context, TxStore) error) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service coordinates lot reads and consumption.
type Service struct {
	repo   RepositoryPort
	audit  AuditPort
	cache  *redis.Client
	ttl    time.Duration
	group  singleflight.Group
	logger *slog.Logger
}

// NewService builds the Service. cache may be nil to disable caching.
func NewService(repo RepositoryPort, audit AuditPort, cache *redis.Client, ttl time.Duration, logger *slog.Logger) *Service {
	if ttl <= 0 {
		ttl = 30 * time.Second
	}
	return &Service{repo: repo, audit: audit, cache: cache, ttl: ttl, logger: logger}
}

// ListLots returns lots for a SKU+location ordered by FIFO sequence ascending.
// Concurrent identical queries collapse through singleflight; results are
// cached briefly in redis.
func (s *Service) ListLots(ctx context.Context, skuID, locationID int64, activeOnly bool) ([]Lot, error) {
	if skuID <= 0 || locationID <= 0 {
		return nil, fmt.Errorf("ledger: sku and location required")
	}
	if !activeOnly {
		// Audit/debug listing bypasses the cache, which only holds live lots.
		return s.repo.ListBySKULocation(ctx, skuID, locationID, false)
	}

	key := shared.LotCacheKey(skuID, locationID)
	if s.cache != nil {
		if raw, err := s.cache.Get(ctx, key).Bytes(); err == nil {
			var lots []Lot
			if err := json.Unmarshal(raw, &lots); err == nil {
				return lots, nil
			}
		}
	}

	result, err, _ := s.group.Do(key, func() (any, error) {
		lots, err := s.repo.ListBySKULocation(ctx, skuID, locationID, true)
		if err != nil {
			return nil, err
		}
		if s.cache != nil {
			if raw, err := json.Marshal(lots); err == nil {
				if err := s.cache.Set(ctx, key, raw, s.ttl).Err(); err != nil && s.logger != nil {
					s.logger.Warn("lot cache set", slog.Any("error", err))
				}
			}
		}
		return lots, nil
	})
	if err != nil {
		return nil, err
	}
	lots, _ := result.([]Lot)
	return lots, nil
}

// MarkConsumed decrements a lot's remaining quantity. Consumption beyond the
// remaining quantity is rejected; reversed lots cannot be consumed.
func (s *Service) MarkConsumed(ctx context.Context, lotID int64, qty float64, actorID int64) (Lot, error) {
	if qty <= 0 {
		return Lot{}, ErrInvalidQuantity
	}
	var updated Lot
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxStore) error {
		lot, err := tx.GetLotForUpdate(ctx, lotID)
		if err != nil {
			return err
		}
		if lot.Status != LotStatusActive {
			return fmt.Errorf("lot %d: %w", lotID, ErrLotReversed)
		}
		if qty > lot.RemainingQty {
			return fmt.Errorf("lot %d: %w", lotID, ErrInsufficientRemaining)
		}
		lot.RemainingQty -= qty
		if err := tx.SetRemaining(ctx, lotID, lot.RemainingQty); err != nil {
			return err
		}
		updated = lot
		return nil
	})
	if err != nil {
		return Lot{}, err
	}
	s.Invalidate(ctx, updated.SKUID, updated.LocationID)
	if s.audit != nil {
		_ = s.audit.Record(ctx, shared.AuditLog{
			ActorID:  actorID,
			Action:   "LOT_CONSUME",
			Entity:   "inventory_lot",
			EntityID: fmt.Sprintf("%d", lotID),
			Meta: map[string]any{
				"qty":       qty,
				"remaining": updated.RemainingQty,
			},
		})
	}
	return updated, nil
}

// Invalidate drops the cached lot listing for a SKU+location.
func (s *Service) Invalidate(ctx context.Context, skuID, locationID int64) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Del(ctx, shared.LotCacheKey(skuID, locationID)).Err(); err != nil && s.logger != nil {
		s.logger.Warn("lot cache invalidate", slog.Any("error", err))
	}
}
