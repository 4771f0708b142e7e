// Package state persists per-indexer repair records across runs so
// cooldown windows and failure counters survive process restarts.
package state

import (
	"context"

	"github.com/rotatarr/rotatarr/internal/core/domain"
)

// Repository loads and saves the full repair-state document. The document
// is read once at cycle start and written once at cycle end; keys are
// indexer identities (stringified ids).
type Repository interface {
	Load(ctx context.Context) (map[string]domain.RepairState, error)
	Save(ctx context.Context, states map[string]domain.RepairState) error
}
