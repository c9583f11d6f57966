// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package syncer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/denster32/dogtv-datacore/logger"
	"github.com/denster32/dogtv-datacore/models"
	"github.com/denster32/dogtv-datacore/remote"
	"github.com/denster32/dogtv-datacore/store"
)

// Options tunes the engine. The zero value is usable; every field has a
// default applied by NewEngine.
type Options struct {
	// Timeout bounds each individual replica call.
	Timeout time.Duration

	// RetryBudget is the number of backoff retries after connectivity
	// failures before the engine settles into the offline state.
	RetryBudget int

	// BackoffMin and BackoffMax bound the exponential retry delay.
	BackoffMin time.Duration
	BackoffMax time.Duration

	// AutoRetry schedules retries after connectivity failures. Disable
	// in tests that drive Sync explicitly.
	AutoRetry bool

	// EventBuffer is the capacity of the event channel. When a slow
	// consumer lets it fill, oldest events are dropped.
	EventBuffer int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 15 * time.Second
	}
	if o.RetryBudget <= 0 {
		o.RetryBudget = 5
	}
	if o.BackoffMin <= 0 {
		o.BackoffMin = time.Second
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = 5 * time.Minute
	}
	if o.EventBuffer <= 0 {
		o.EventBuffer = 16
	}
	return o
}

// pendingConflict holds everything needed to finish a manual resolution.
type pendingConflict struct {
	conflict models.ConflictRecord
	local    models.Record
	remote   models.ChangeEnvelope
}

// Engine reconciles the local record store with a remote replica. Only one
// cycle is ever in flight per store: a Sync call arriving while a cycle
// runs does not start a second pass, it waits for and shares the in-flight
// result.
type Engine struct {
	records  *store.RecordStore
	replica  remote.Replica
	planner  Planner
	resolver *Resolver
	gate     *store.Gate
	cache    Invalidator
	opts     Options
	log      *logger.Logger

	mu         sync.Mutex
	status     models.SyncStatus
	done       chan struct{} // non-nil while a cycle is in flight
	lastErr    error
	closed     bool
	retries    int
	retryTimer *time.Timer
	failures   map[string]string // record ID -> last apply failure
	unresolved map[string]pendingConflict
	conflicts  []models.ConflictRecord

	events chan models.SyncEvent
}

// NewEngine wires an engine. gate must be the same Gate instance shared
// with the backup manager and integrity validator of this store; cache may
// be nil when no cache sits above the store.
func NewEngine(records *store.RecordStore, replica remote.Replica, resolver *Resolver, gate *store.Gate, cache Invalidator, opts Options, log *logger.Logger) *Engine {
	if log == nil {
		log = logger.Nop()
	}
	if gate == nil {
		gate = store.NewGate()
	}
	opts = opts.withDefaults()

	return &Engine{
		records:    records,
		replica:    replica,
		planner:    NewPlanner(),
		resolver:   resolver,
		gate:       gate,
		cache:      cache,
		opts:       opts,
		log:        log,
		status:     models.SyncIdle,
		failures:   make(map[string]string),
		unresolved: make(map[string]pendingConflict),
		events:     make(chan models.SyncEvent, opts.EventBuffer),
	}
}

// Status returns the engine's externally observable state.
func (e *Engine) Status() models.SyncStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.status
}

// Events returns the channel state transitions are emitted on. The channel
// is never closed; consumers select on it alongside their own lifetime.
func (e *Engine) Events() <-chan models.SyncEvent {
	return e.events
}

// Conflicts returns the audit log of every conflict ever detected,
// resolved or not.
func (e *Engine) Conflicts() []models.ConflictRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ConflictRecord, len(e.conflicts))
	copy(out, e.conflicts)
	return out
}

// Unresolved returns the conflicts awaiting a manual decision.
func (e *Engine) Unresolved() []models.ConflictRecord {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]models.ConflictRecord, 0, len(e.unresolved))
	for _, p := range e.unresolved {
		out = append(out, p.conflict)
	}
	return out
}

// Close stops retry scheduling. In-flight cycles finish normally.
func (e *Engine) Close() {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
}

// Sync runs one reconciliation cycle, or joins the one already running.
// The returned error is the cycle's terminal error, shared by every caller
// that coalesced into it.
func (e *Engine) Sync(ctx context.Context) error {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return ErrEngineClosed
	}
	if e.done != nil {
		// a cycle is in flight; its result will satisfy this request
		done := e.done
		e.mu.Unlock()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-done:
		}
		e.mu.Lock()
		defer e.mu.Unlock()
		return e.lastErr
	}

	done := make(chan struct{})
	e.done = done
	e.status = models.SyncSyncing
	if e.retryTimer != nil {
		e.retryTimer.Stop()
		e.retryTimer = nil
	}
	e.mu.Unlock()

	e.emit(models.SyncSyncing, nil, models.SyncStats{})

	stats, err := e.cycle(ctx)
	e.finish(err, stats)
	close(done)
	return err
}

// finish records the cycle outcome, transitions the state machine and
// schedules a retry when the failure was connectivity or a transient
// storage condition (busy database file, deadlock rollback).
func (e *Engine) finish(err error, stats models.SyncStats) {
	e.mu.Lock()
	e.done = nil
	e.lastErr = err

	switch {
	case err == nil:
		e.status = models.SyncCompleted
		e.retries = 0
	case errors.Is(err, remote.ErrUnavailable), errors.Is(err, store.ErrTransient):
		e.retries++
		if e.retries > e.opts.RetryBudget {
			e.status = models.SyncOffline
		} else {
			e.status = models.SyncFailed
		}
		if e.opts.AutoRetry && !e.closed {
			delay := backoffDelay(e.retries-1, e.opts.BackoffMin, e.opts.BackoffMax)
			e.retryTimer = time.AfterFunc(delay, func() {
				ctx, cancel := context.WithTimeout(context.Background(), 4*e.opts.Timeout)
				defer cancel()
				_ = e.Sync(ctx)
			})
			e.log.Info().Dur("delay", delay).Int("attempt", e.retries).Msg("sync retry scheduled")
		}
	default:
		e.status = models.SyncFailed
		e.retries = 0
	}
	status := e.status
	e.mu.Unlock()

	e.emit(status, err, stats)
}

func (e *Engine) emit(status models.SyncStatus, err error, stats models.SyncStats) {
	event := models.SyncEvent{Status: status, At: time.Now().UTC(), Stats: stats}
	if err != nil {
		event.Err = err.Error()
	}

	for {
		select {
		case e.events <- event:
			return
		default:
			// drop the oldest event rather than block the cycle
			select {
			case <-e.events:
			default:
			}
		}
	}
}

// cycle is one full pull/resolve/push pass.
func (e *Engine) cycle(ctx context.Context) (models.SyncStats, error) {
	var stats models.SyncStats

	cursor, err := e.records.Cursor(ctx)
	if err != nil {
		return stats, fmt.Errorf("load sync cursor: %w", err)
	}

	pullCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	result, err := e.replica.Pull(pullCtx, cursor)
	cancel()
	if err != nil {
		return stats, fmt.Errorf("pull changes: %w", err)
	}
	stats.Pulled = len(result.Changes)

	states, err := e.records.States(ctx)
	if err != nil {
		return stats, fmt.Errorf("load local states: %w", err)
	}

	plan, err := e.planner.BuildPlan(ctx, result.Changes, states)
	if err != nil {
		return stats, fmt.Errorf("build sync plan: %w", err)
	}

	touched := make(map[string]struct{})

	if err = e.applyPhase(ctx, plan, &stats, touched); err != nil {
		return stats, err
	}

	if err = e.pushPhase(ctx, &stats, touched); err != nil {
		return stats, err
	}

	if err = e.records.SetCursor(ctx, result.Next); err != nil {
		return stats, fmt.Errorf("advance sync cursor: %w", err)
	}

	// Invalidate after commit: a stale cache entry surviving a completed
	// cycle is a correctness bug, not an acceptable tradeoff.
	if e.cache != nil {
		for id := range touched {
			e.cache.Remove(id)
			stats.Invalidated++
		}
	}

	e.log.Debug().
		Int("pulled", stats.Pulled).
		Int("applied", stats.Applied).
		Int("pushed", stats.Pushed).
		Int("conflicts", stats.Conflicts).
		Int("failures", stats.Failures).
		Msg("sync cycle finished")

	return stats, nil
}

// applyPhase lands pulled changes and resolves conflicts under the store
// gate. Cancellation is honored between records, never mid-record.
func (e *Engine) applyPhase(ctx context.Context, plan Plan, stats *models.SyncStats, touched map[string]struct{}) error {
	e.gate.LockExclusive()
	defer e.gate.UnlockExclusive()

	for _, env := range plan.Apply {
		if err := ctx.Err(); err != nil {
			return err
		}

		applied, err := e.records.ApplyRemote(ctx, env)
		if err != nil {
			// per-record failures do not abort the batch; the change
			// will be pulled and retried next cycle
			e.recordFailure(env.RecordID, err)
			stats.Failures++
			continue
		}
		e.clearFailure(env.RecordID)
		if applied {
			stats.Applied++
			touched[env.RecordID] = struct{}{}
		}
	}

	for _, div := range plan.Conflicts {
		if err := ctx.Err(); err != nil {
			return err
		}

		local, err := e.records.Get(ctx, div.Local.ID)
		if err != nil {
			e.recordFailure(div.Local.ID, err)
			stats.Failures++
			continue
		}

		res := e.resolver.Resolve(local, div.Remote)
		stats.Conflicts++
		e.mu.Lock()
		e.conflicts = append(e.conflicts, res.Conflict)
		e.mu.Unlock()

		if !res.Resolved {
			e.mu.Lock()
			e.unresolved[res.Conflict.ID] = pendingConflict{conflict: res.Conflict, local: local, remote: div.Remote}
			e.mu.Unlock()
			e.log.Info().Str("record_id", local.ID).Str("conflict_id", res.Conflict.ID).Msg("conflict awaiting manual resolution")
			continue
		}

		if err = e.storeWinner(ctx, res); err != nil {
			e.recordFailure(div.Local.ID, err)
			stats.Failures++
			continue
		}
		e.clearFailure(div.Local.ID)
		touched[div.Local.ID] = struct{}{}
	}

	return nil
}

// storeWinner lands a resolved conflict winner locally. Winners that must
// supersede the remote version go through SaveResolved so the push phase
// picks them up.
func (e *Engine) storeWinner(ctx context.Context, res Resolution) error {
	if res.PushWinner {
		return e.records.SaveResolved(ctx, res.Winner)
	}
	_, err := e.records.ApplyRemote(ctx, res.Winner.Envelope())
	return err
}

// pushPhase offers dirty records to the replica and commits the acks.
func (e *Engine) pushPhase(ctx context.Context, stats *models.SyncStats, touched map[string]struct{}) error {
	dirty, err := e.records.DirtyRecords(ctx)
	if err != nil {
		return fmt.Errorf("load dirty records: %w", err)
	}

	// records parked behind a pending manual conflict stay local
	e.mu.Lock()
	parked := make(map[string]struct{}, len(e.unresolved))
	for _, p := range e.unresolved {
		parked[p.conflict.RecordID] = struct{}{}
	}
	e.mu.Unlock()

	changes := make([]models.ChangeEnvelope, 0, len(dirty))
	pushed := make(map[string]models.Record, len(dirty))
	for _, rec := range dirty {
		if _, isParked := parked[rec.ID]; isParked {
			continue
		}
		changes = append(changes, rec.Envelope())
		pushed[rec.ID] = rec
	}

	if len(changes) == 0 {
		return nil
	}

	pushCtx, cancel := context.WithTimeout(ctx, e.opts.Timeout)
	acks, err := e.replica.Push(pushCtx, changes)
	cancel()
	if err != nil {
		return fmt.Errorf("push changes: %w", err)
	}

	for _, ack := range acks {
		if err := ctx.Err(); err != nil {
			return err
		}

		rec, known := pushed[ack.RecordID]
		if !known {
			continue
		}

		if !ack.Applied {
			// the replica holds a newer version; the next pull will
			// bring it in and the planner will raise a conflict
			e.recordFailure(ack.RecordID, fmt.Errorf("push rejected: %s", ack.Reason))
			stats.Failures++
			continue
		}

		e.gate.LockExclusive()
		err = e.records.MarkSynced(ctx, ack.RecordID, rec.Version)
		if err == nil && rec.Tombstone {
			// deletion acknowledged; the tombstone may go for real now
			err = e.records.Purge(ctx, ack.RecordID)
		}
		e.gate.UnlockExclusive()
		if err != nil {
			e.recordFailure(ack.RecordID, err)
			stats.Failures++
			continue
		}

		e.clearFailure(ack.RecordID)
		stats.Pushed++
		touched[ack.RecordID] = struct{}{}
	}

	return nil
}

// Failures returns the per-record errors retained from the last cycles.
// Entries clear when the record finally applies or pushes.
func (e *Engine) Failures() map[string]string {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make(map[string]string, len(e.failures))
	for id, msg := range e.failures {
		out[id] = msg
	}
	return out
}

func (e *Engine) recordFailure(id string, err error) {
	e.log.Err(err).Str("record_id", id).Msg("record-level sync failure")
	e.mu.Lock()
	e.failures[id] = err.Error()
	e.mu.Unlock()
}

func (e *Engine) clearFailure(id string) {
	e.mu.Lock()
	delete(e.failures, id)
	e.mu.Unlock()
}

// ResolveManual finishes a conflict parked by PolicyManual. decision must
// be ResolutionUseLocal or ResolutionUseRemote; the resulting record is
// stored and, for local winners, queued for push.
func (e *Engine) ResolveManual(ctx context.Context, conflictID string, decision models.ResolutionKind) error {
	e.mu.Lock()
	pending, ok := e.unresolved[conflictID]
	e.mu.Unlock()
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownConflict, conflictID)
	}

	var res Resolution
	switch decision {
	case models.ResolutionUseLocal:
		winner := e.resolver.supersede(pending.local, pending.remote)
		res = Resolution{Winner: winner, PushWinner: true, Resolved: true}
	case models.ResolutionUseRemote:
		res = Resolution{Winner: pending.remote.Record(), Resolved: true}
	default:
		return ErrManualDecisionRequired
	}

	e.gate.LockExclusive()
	err := e.storeWinner(ctx, res)
	e.gate.UnlockExclusive()
	if err != nil {
		return err
	}

	resolved := pending.conflict
	resolved.Resolution = decision
	if decision == models.ResolutionUseLocal {
		resolved.WinnerDeviceID = pending.local.DeviceID
	} else {
		resolved.WinnerDeviceID = pending.remote.DeviceID
	}
	resolved.Timestamp = time.Now().UTC()

	e.mu.Lock()
	delete(e.unresolved, conflictID)
	e.conflicts = append(e.conflicts, resolved)
	e.mu.Unlock()

	if e.cache != nil {
		e.cache.Remove(pending.conflict.RecordID)
	}
	return nil
}
