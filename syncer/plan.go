package syncer

import (
	"context"

	"github.com/denster32/dogtv-datacore/models"
)

// Plan is the classified outcome of comparing one batch of pulled changes
// against the local record states. Every pulled envelope and every dirty
// local record lands in exactly one category.
type Plan struct {
	// Apply are remote changes the local side can take as-is: records we
	// have never seen, and fast-forwards of records with no local edits.
	Apply []models.ChangeEnvelope

	// Conflicts are records mutated on both sides since the last common
	// sync point. Each one must go through the resolver.
	Conflicts []Divergence

	// Push are the local states that must be offered to the replica:
	// dirty records not superseded by an incoming conflict.
	Push []models.RecordState
}

// Divergence pairs the local state with the remote change that collided
// with it.
type Divergence struct {
	Local  models.RecordState
	Remote models.ChangeEnvelope
}

// planner is the concrete implementation of the plan builder. It performs
// a purely in-memory comparison; no storage layer or logger is required
// because the operation is stateless and produces no side effects.
type planner struct{}

// NewPlanner constructs a plan builder ready for use.
func NewPlanner() Planner {
	return &planner{}
}

// BuildPlan implements Planner.
//
// It builds an O(1) lookup index from the local states, then makes two
// linear passes to classify every item into exactly one action category:
//
//   - Pass 1 (over pulled): handles every change the replica reported,
//     whether or not the record also exists locally.
//   - Pass 2 (over local): catches dirty records the replica did not
//     mention, which were therefore invisible in pass 1.
//
// ctx cancellation is checked at the start of each iteration so that
// callers can abort early when operating on large datasets.
func (p *planner) BuildPlan(
	ctx context.Context,
	pulled []models.ChangeEnvelope,
	local []models.RecordState,
) (Plan, error) {
	var plan Plan

	localIndex := make(map[string]models.RecordState, len(local))
	for _, ls := range local {
		localIndex[ls.ID] = ls
	}

	// ── Pass 1: iterate over pulled remote changes ───────────────────────────
	conflicted := make(map[string]struct{})
	for _, env := range pulled {
		if err := ctx.Err(); err != nil {
			return Plan{}, err
		}

		ls, existsLocally := localIndex[env.RecordID]

		if !existsLocally {
			if !env.Tombstone {
				// The replica has a live record this device has never
				// seen, apply it.
				plan.Apply = append(plan.Apply, env)
			}
			// env.Tombstone && !existsLocally: the record was created and
			// deleted remotely before this device ever synced it. No action.
			continue
		}

		if env.Version <= ls.Version {
			// Already at or past this change. Re-applying would be a
			// no-op anyway; skipping keeps retried pulls idempotent.
			continue
		}

		if !ls.Dirty {
			// Remote is strictly ahead and there is no local edit to
			// protect: fast-forward, tombstones included.
			plan.Apply = append(plan.Apply, env)
			continue
		}

		// Both sides mutated since the last common sync point.
		plan.Conflicts = append(plan.Conflicts, Divergence{Local: ls, Remote: env})
		conflicted[env.RecordID] = struct{}{}
	}

	// ── Pass 2: find dirty local records the replica did not mention ─────────
	for _, ls := range local {
		if err := ctx.Err(); err != nil {
			return Plan{}, err
		}

		if !ls.Dirty {
			continue
		}
		if _, isConflicted := conflicted[ls.ID]; isConflicted {
			// The resolver decides this record's fate; pushing it now
			// would race the resolution.
			continue
		}
		plan.Push = append(plan.Push, ls)
	}

	return plan, nil
}
