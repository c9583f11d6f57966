package remote

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"sync"

	"github.com/denster32/dogtv-datacore/models"
)

// MemoryReplica is an in-process Replica holding the authoritative record
// set behind optimistic version checks. It backs the bundled HTTP handler
// and serves as the reference replica in tests.
type MemoryReplica struct {
	mu      sync.Mutex
	seq     int64
	records map[string]models.Record
	lastSeq map[string]int64
}

// NewMemoryReplica constructs an empty replica.
func NewMemoryReplica() *MemoryReplica {
	return &MemoryReplica{
		records: make(map[string]models.Record),
		lastSeq: make(map[string]int64),
	}
}

func parseCursor(c models.SyncCursor) (int64, error) {
	if c == "" {
		return 0, nil
	}
	n, err := strconv.ParseInt(string(c), 10, 64)
	if err != nil || n < 0 {
		return 0, fmt.Errorf("%w: malformed cursor %q", ErrBadRequest, c)
	}
	return n, nil
}

// Pull implements Replica. Changes are reported as the current state of
// every record touched after the cursor, ordered by the sequence of their
// latest change, so re-pulling the same cursor is idempotent.
func (r *MemoryReplica) Pull(_ context.Context, since models.SyncCursor) (PullResult, error) {
	n, err := parseCursor(since)
	if err != nil {
		return PullResult{}, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	type change struct {
		seq int64
		env models.ChangeEnvelope
	}
	var changes []change
	for id, seq := range r.lastSeq {
		if seq > n {
			rec := r.records[id]
			changes = append(changes, change{seq: seq, env: rec.Envelope()})
		}
	}
	sort.Slice(changes, func(i, j int) bool { return changes[i].seq < changes[j].seq })

	result := PullResult{Next: models.SyncCursor(strconv.FormatInt(r.seq, 10))}
	for _, c := range changes {
		result.Changes = append(result.Changes, c.env)
	}
	return result, nil
}

// Push implements Replica. Each envelope is checked against the stored
// version independently; a stale push yields a Conflict ack instead of an
// error so the rest of the batch still lands.
func (r *MemoryReplica) Push(_ context.Context, changes []models.ChangeEnvelope) ([]models.Ack, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	acks := make([]models.Ack, 0, len(changes))
	for _, env := range changes {
		current, exists := r.records[env.RecordID]
		if exists && current.Version >= env.Version {
			acks = append(acks, models.Ack{
				RecordID: env.RecordID,
				Version:  current.Version,
				Applied:  false,
				Conflict: true,
				Reason:   "stale version",
			})
			continue
		}

		rec := env.Record()
		r.seq++
		r.records[env.RecordID] = rec
		r.lastSeq[env.RecordID] = r.seq
		acks = append(acks, models.Ack{
			RecordID: env.RecordID,
			Version:  env.Version,
			Applied:  true,
		})
	}
	return acks, nil
}

// Record returns the replica's current copy of a record, for tests and
// handlers that need to inspect state.
func (r *MemoryReplica) Record(id string) (models.Record, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.records[id]
	return rec, ok
}

// Seed installs a record bypassing version checks, advancing the change
// log as if it had been pushed.
func (r *MemoryReplica) Seed(rec models.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seq++
	r.records[rec.ID] = rec
	r.lastSeq[rec.ID] = r.seq
}
