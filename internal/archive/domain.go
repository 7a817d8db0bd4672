// Package archive moves finished orders into the archive and manages
// archived orders afterwards.
package archive

import (
	"fmt"
	"time"

	"github.com/sage-erp/pharmacy/internal/orders"
	"github.com/sage-erp/pharmacy/internal/shared"
)

var (
	// ErrNotFound indicates a missing archived order or receipt.
	ErrNotFound = fmt.Errorf("archive: %w", shared.ErrNotFound)
	// ErrValidation indicates bad input.
	ErrValidation = fmt.Errorf("archive: %w", shared.ErrValidation)
)

// ArchivedOrder is the frozen record of a finished order.
type ArchivedOrder struct {
	ID             int64            `json:"id"`
	ProviderName   string           `json:"providerName"`
	OrderCreatedAt time.Time        `json:"orderCreatedAt"`
	CreatedAt      time.Time        `json:"createdAt"`
	Receipts       []orders.Receipt `json:"receipts"`
}

// SweepResult summarises one sweep run.
type SweepResult struct {
	Archived []int64 `json:"archived"`
	Failed   []int64 `json:"failed"`
	Skipped  bool    `json:"skipped"`
}
