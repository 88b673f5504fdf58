// Package masterdata provides the SKU and location master records consumed
// by the receiving ledger for existence checks.
package masterdata

import (
	"errors"
	"time"
)

// SKU represents a stock keeping unit.
type SKU struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	UOM       string    `json:"uom"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Location represents a warehouse location stock is received into.
type Location struct {
	ID        int64     `json:"id"`
	Code      string    `json:"code"`
	Name      string    `json:"name"`
	Active    bool      `json:"active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

var (
	// ErrSKUNotFound indicates the SKU does not exist or is inactive.
	ErrSKUNotFound = errors.New("masterdata: sku not found")
	// ErrLocationNotFound indicates the location does not exist or is inactive.
	ErrLocationNotFound = errors.New("masterdata: location not found")
	// ErrDuplicateCode indicates a code collision on create.
	ErrDuplicateCode = errors.New("masterdata: code already exists")
)
