package syncer

import (
	"context"

	"github.com/denster32/dogtv-datacore/models"
)

// Planner classifies pulled changes against local states into a Plan.
type Planner interface {
	BuildPlan(ctx context.Context, pulled []models.ChangeEnvelope, local []models.RecordState) (Plan, error)
}

// Invalidator is the slice of the cache the engine needs: after a sync
// cycle commits, every touched record is evicted so no caller can read a
// value the cycle made stale.
type Invalidator interface {
	Remove(key string)
}
