// Package sequence issues FIFO sequence numbers per (SKU, location) pair.
// Numbers are strictly increasing per pair with no duplicates; gaps are
// tolerated. Issuance for the same pair serialises on the counter row lock,
// so commit order defines FIFO order; distinct pairs do not block each other.
package sequence

import (
	"context"
	"fmt"

	"github.com/meridian-wms/meridian-wms/internal/platform/db"
)

// Issuer abstracts sequence issuance for consumers and tests.
type Issuer interface {
	Next(ctx context.Context, skuID, locationID int64) (int64, error)
}

// Store issues sequence numbers from the fifo_sequences counter table.
// Construct it with the transaction that owns the surrounding post so the
// issued number commits or rolls back with the rest of the unit of work.
type Store struct {
	db db.DBTX
}

// NewStore constructs a Store bound to the given pool or transaction.
func NewStore(dbtx db.DBTX) *Store {
	return &Store{db: dbtx}
}

// Next returns the next sequence number for the pair. The upsert takes a row
// lock on the counter, which is held until the owning transaction commits.
func (s *Store) Next(ctx context.Context, skuID, locationID int64) (int64, error) {
	if skuID <= 0 || locationID <= 0 {
		return 0, fmt.Errorf("sequence: sku and location required")
	}
	const query = `
		INSERT INTO fifo_sequences (sku_id, location_id, last_seq)
		VALUES ($1, $2, 1)
		ON CONFLICT (sku_id, location_id)
		DO UPDATE SET last_seq = fifo_sequences.last_seq + 1
		RETURNING last_seq`
	var seq int64
	if err := s.db.QueryRow(ctx, query, skuID, locationID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("sequence: next for sku %d location %d: %w", skuID, locationID, err)
	}
	return seq, nil
}

// Current returns the highest sequence issued for the pair, zero when none.
func (s *Store) Current(ctx context.Context, skuID, locationID int64) (int64, error) {
	const query = `
		SELECT COALESCE(MAX(last_seq), 0) FROM fifo_sequences
		WHERE sku_id = $1 AND location_id = $2`
	var seq int64
	if err := s.db.QueryRow(ctx, query, skuID, locationID).Scan(&seq); err != nil {
		return 0, fmt.Errorf("sequence: current for sku %d location %d: %w", skuID, locationID, err)
	}
	return seq, nil
}
