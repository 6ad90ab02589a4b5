// Package maintenance provides one-shot database tasks selected by flags.
package maintenance

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/woozymasta/mclookup/internal/config"
)

// Pruner deletes stale player rows.
type Pruner interface {
	PruneStalePlayers(ctx context.Context, before time.Time) (int64, error)
}

// Cycler runs one refresh cycle and reports refreshed player rows.
type Cycler interface {
	Cycle(ctx context.Context) int
}

// Run checks if any maintenance flags are set and executes the corresponding tasks.
// Returns true if a maintenance task was executed (indicating the program should exit).
func Run(ctx context.Context, cfg *config.Config, store Pruner, refresher Cycler) bool {
	ran := false

	if cfg.Storage.PrunePlayers > 0 {
		ran = true
		before := time.Now().Add(-cfg.Storage.PrunePlayers)
		log.Info().Time("before", before).Msg("Pruning players not seen since...")

		count, err := store.PruneStalePlayers(ctx, before)
		if err != nil {
			log.Error().Err(err).Msg("Failed to prune players")
		} else {
			log.Info().Int64("deleted", count).Msg("Prune finished")
		}
	}

	if cfg.Storage.RefreshOnce {
		ran = true
		log.Info().Msg("Running a single refresh cycle...")
		upserts := refresher.Cycle(ctx)
		log.Info().Int("upserts", upserts).Msg("Refresh finished")
	}

	return ran
}
