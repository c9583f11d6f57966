// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package syncer

import (
	"encoding/json"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/google/uuid"

	"github.com/denster32/dogtv-datacore/logger"
	"github.com/denster32/dogtv-datacore/models"
)

// Policy selects how divergent record versions are reconciled.
type Policy int

const (
	// PolicyUseLocal keeps the local version and pushes it out.
	PolicyUseLocal Policy = iota + 1

	// PolicyUseRemote adopts the remote version.
	PolicyUseRemote

	// PolicyMerge combines both payloads field-by-field when the record's
	// data type has a merge function (a JSON overlay by default), falling
	// back to the deterministic tie-break when merging is impossible.
	PolicyMerge

	// PolicyManual declines to decide; conflicts are surfaced unresolved
	// for an explicit caller decision.
	PolicyManual
)

// String returns the configuration name of the policy.
func (p Policy) String() string {
	switch p {
	case PolicyUseLocal:
		return "useLocal"
	case PolicyUseRemote:
		return "useRemote"
	case PolicyMerge:
		return "merge"
	case PolicyManual:
		return "manual"
	default:
		return "unknown"
	}
}

// ParsePolicy maps a configuration string to a Policy.
func ParsePolicy(s string) (Policy, error) {
	switch s {
	case "useLocal":
		return PolicyUseLocal, nil
	case "useRemote":
		return PolicyUseRemote, nil
	case "merge":
		return PolicyMerge, nil
	case "manual":
		return PolicyManual, nil
	default:
		return 0, fmt.Errorf("unknown conflict policy %q", s)
	}
}

// MergeFunc combines two divergent payloads of the same record into one.
// winner is the payload of the tie-break winner, loser the other side's.
type MergeFunc func(winner, loser []byte) ([]byte, error)

// Resolution is the resolver's decision for one divergence.
type Resolution struct {
	// Winner is the record the local store should hold afterwards.
	// Unset when Resolved is false.
	Winner models.Record

	// PushWinner is true when the winning content originated locally
	// (useLocal or merge) and therefore must be offered to the replica
	// with a version that supersedes the remote one.
	PushWinner bool

	// Resolved is false only under PolicyManual.
	Resolved bool

	// Conflict is the audit entry. Produced for every invocation,
	// automatic or manual, so no conflict is ever silently absorbed.
	Conflict models.ConflictRecord
}

// Resolver decides conflicts between divergent record versions.
// Resolve is a pure decision: it never touches storage; applying the
// winner is the engine's job.
type Resolver struct {
	policy  Policy
	mergers map[models.DataType]MergeFunc
	log     *logger.Logger
}

// NewResolver constructs a Resolver with the given default policy.
func NewResolver(policy Policy, log *logger.Logger) *Resolver {
	if log == nil {
		log = logger.Nop()
	}
	return &Resolver{
		policy:  policy,
		mergers: make(map[models.DataType]MergeFunc),
		log:     log,
	}
}

// RegisterMerger installs a custom merge function for a data type,
// replacing the default JSON overlay used by PolicyMerge.
func (r *Resolver) RegisterMerger(dataType models.DataType, fn MergeFunc) {
	r.mergers[dataType] = fn
}

// Resolve decides between a local record and the remote change that
// collided with it.
func (r *Resolver) Resolve(local models.Record, remote models.ChangeEnvelope) Resolution {
	conflict := models.ConflictRecord{
		ID:            uuid.NewString(),
		RecordID:      local.ID,
		DataType:      local.DataType,
		LocalVersion:  local.Version,
		RemoteVersion: remote.Version,
		ConflictType:  models.VersionMismatch,
		Timestamp:     time.Now().UTC(),
	}

	// A locally corrupted payload never wins, whatever the policy says.
	if local.Hash != models.PayloadHash(local.Payload) {
		conflict.ConflictType = models.DataCorruption
		conflict.Resolution = models.ResolutionUseRemote
		conflict.WinnerDeviceID = remote.DeviceID
		r.log.Warn().Str("record_id", local.ID).Msg("local payload failed hash check; adopting remote")
		return Resolution{Winner: remote.Record(), Resolved: true, Conflict: conflict}
	}

	switch r.policy {
	case PolicyUseLocal:
		conflict.Resolution = models.ResolutionUseLocal
		conflict.WinnerDeviceID = local.DeviceID
		return Resolution{Winner: r.supersede(local, remote), PushWinner: true, Resolved: true, Conflict: conflict}

	case PolicyUseRemote:
		conflict.Resolution = models.ResolutionUseRemote
		conflict.WinnerDeviceID = remote.DeviceID
		return Resolution{Winner: remote.Record(), Resolved: true, Conflict: conflict}

	case PolicyManual:
		conflict.Resolution = models.ResolutionManual
		return Resolution{Resolved: false, Conflict: conflict}

	default: // PolicyMerge
		return r.merge(local, remote, conflict)
	}
}

// merge combines both payloads, with the tie-break winner's fields taking
// precedence. When no merge is possible the tie-break winner is adopted
// wholesale.
func (r *Resolver) merge(local models.Record, remote models.ChangeEnvelope, conflict models.ConflictRecord) Resolution {
	localWins := tieBreak(local, remote)

	merger, ok := r.mergers[local.DataType]
	if !ok {
		merger = mergeJSONObjects
	}

	var merged []byte
	var err error
	if localWins {
		merged, err = merger(local.Payload, remote.Payload)
	} else {
		merged, err = merger(remote.Payload, local.Payload)
	}
	if err != nil {
		// Payloads that cannot merge fall back to a whole-record winner;
		// the deterministic tie-break keeps both replicas converging on
		// the same one.
		conflict.ConflictType = models.MergeConflict
		if localWins {
			conflict.Resolution = models.ResolutionUseLocal
			conflict.WinnerDeviceID = local.DeviceID
			return Resolution{Winner: r.supersede(local, remote), PushWinner: true, Resolved: true, Conflict: conflict}
		}
		conflict.Resolution = models.ResolutionUseRemote
		conflict.WinnerDeviceID = remote.DeviceID
		return Resolution{Winner: remote.Record(), Resolved: true, Conflict: conflict}
	}

	conflict.Resolution = models.ResolutionMerge
	if localWins {
		conflict.WinnerDeviceID = local.DeviceID
	} else {
		conflict.WinnerDeviceID = remote.DeviceID
	}
	winner := r.supersede(local, remote)
	winner.Payload = merged
	winner.Hash = models.PayloadHash(merged)
	return Resolution{Winner: winner, PushWinner: true, Resolved: true, Conflict: conflict}
}

// supersede returns the local record lifted to a version strictly above
// both sides, so the replica accepts it on the next push instead of
// rejecting it as stale.
func (r *Resolver) supersede(local models.Record, remote models.ChangeEnvelope) models.Record {
	winner := local
	if remote.Version > winner.Version {
		winner.Version = remote.Version
	}
	winner.Version++
	winner.Timestamp = time.Now().UTC()
	return winner
}

// tieBreak reports whether the local side wins the deterministic
// (timestamp, deviceID) comparison. Two replicas resolving the same
// conflict independently converge on the same winner.
func tieBreak(local models.Record, remote models.ChangeEnvelope) bool {
	if !local.Timestamp.Equal(remote.Timestamp) {
		return local.Timestamp.After(remote.Timestamp)
	}
	return local.DeviceID > remote.DeviceID
}

// mergeJSONObjects is the default MergeFunc: both payloads must decode as
// JSON objects; the loser's fields are overlaid underneath the winner's,
// so every winner field survives and loser-only fields are preserved.
func mergeJSONObjects(winner, loser []byte) ([]byte, error) {
	var dst, src map[string]any
	if err := json.Unmarshal(winner, &dst); err != nil {
		return nil, fmt.Errorf("winner payload is not a JSON object: %w", err)
	}
	if err := json.Unmarshal(loser, &src); err != nil {
		return nil, fmt.Errorf("loser payload is not a JSON object: %w", err)
	}
	if dst == nil || src == nil {
		return nil, fmt.Errorf("cannot merge null JSON payloads")
	}

	if err := mergo.Merge(&dst, src); err != nil {
		return nil, fmt.Errorf("error merging payloads: %w", err)
	}

	merged, err := json.Marshal(dst)
	if err != nil {
		return nil, fmt.Errorf("encode merged payload: %w", err)
	}
	return merged, nil
}
