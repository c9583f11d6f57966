package syncer

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/denster32/dogtv-datacore/mock"
	"github.com/denster32/dogtv-datacore/models"
	"github.com/denster32/dogtv-datacore/remote"
	"github.com/denster32/dogtv-datacore/store"
)

type fakeCache struct {
	mu      sync.Mutex
	removed []string
}

func (c *fakeCache) Remove(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.removed = append(c.removed, key)
}

func (c *fakeCache) keys() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.removed))
	copy(out, c.removed)
	return out
}

func newTestEngine(t *testing.T, replica remote.Replica, policy Policy, opts Options) (*Engine, *store.RecordStore, *fakeCache) {
	t.Helper()

	kv, err := store.NewFileStore(":memory:", nil)
	require.NoError(t, err)
	records := store.NewRecordStore(kv, "device-local", nil)
	cache := &fakeCache{}

	engine := NewEngine(records, replica, NewResolver(policy, nil), store.NewGate(), cache, opts, nil)
	t.Cleanup(engine.Close)
	return engine, records, cache
}

func seededRemote(t *testing.T, payload []byte, version int64, ts time.Time) (*remote.MemoryReplica, models.Record) {
	t.Helper()
	replica := remote.NewMemoryReplica()
	rec := models.Record{
		ID:        "rec-remote",
		DataType:  models.ContentState,
		Payload:   payload,
		Version:   version,
		DeviceID:  "device-remote",
		Hash:      models.PayloadHash(payload),
		Timestamp: ts,
	}
	replica.Seed(rec)
	return replica, rec
}

func TestEngine_Sync_PullsAppliesAndPushes(t *testing.T) {
	ctx := context.Background()
	replica, seeded := seededRemote(t, []byte(`{"scene":"ocean"}`), 2, time.Now().UTC())
	engine, records, cache := newTestEngine(t, replica, PolicyMerge, Options{})

	local, err := records.SaveLocal(ctx, "rec-local", models.Preferences, []byte(`{"volume":0.7}`))
	require.NoError(t, err)

	require.NoError(t, engine.Sync(ctx))
	assert.Equal(t, models.SyncCompleted, engine.Status())

	// the seeded remote record landed locally
	got, err := records.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.Payload, got.Payload)
	assert.Equal(t, seeded.Version, got.Version)

	// the dirty local record reached the replica and is clean now
	pushed, ok := replica.Record(local.ID)
	require.True(t, ok)
	assert.Equal(t, local.Payload, pushed.Payload)
	dirty, err := records.DirtyRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)

	// the cursor advanced past everything pulled
	cursor, err := records.Cursor(ctx)
	require.NoError(t, err)
	assert.NotEmpty(t, cursor)

	assert.ElementsMatch(t, []string{seeded.ID, local.ID}, cache.keys())
}

func TestEngine_Sync_SecondCycleIsANoOp(t *testing.T) {
	ctx := context.Background()
	replica, seeded := seededRemote(t, []byte(`{"scene":"forest"}`), 1, time.Now().UTC())
	engine, records, _ := newTestEngine(t, replica, PolicyMerge, Options{})

	require.NoError(t, engine.Sync(ctx))
	before, err := records.Get(ctx, seeded.ID)
	require.NoError(t, err)

	require.NoError(t, engine.Sync(ctx))

	after, err := records.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, before, after)
	assert.Empty(t, engine.Failures())
}

func TestEngine_Sync_ConflictMergesAndPushesWinner(t *testing.T) {
	ctx := context.Background()
	// remote mutation predates the local one, so local fields win the merge
	replica, seeded := seededRemote(t, []byte(`{"brightness":0.5}`), 2, time.Now().UTC().Add(-time.Minute))
	engine, records, _ := newTestEngine(t, replica, PolicyMerge, Options{})

	_, err := records.SaveLocal(ctx, seeded.ID, seeded.DataType, []byte(`{"volume":0.7}`))
	require.NoError(t, err)

	require.NoError(t, engine.Sync(ctx))

	conflicts := engine.Conflicts()
	require.Len(t, conflicts, 1)
	assert.Equal(t, models.ResolutionMerge, conflicts[0].Resolution)

	// the merged record superseded both sides and reached the replica
	pushed, ok := replica.Record(seeded.ID)
	require.True(t, ok)
	assert.Equal(t, int64(3), pushed.Version)

	var merged map[string]any
	require.NoError(t, json.Unmarshal(pushed.Payload, &merged))
	assert.Equal(t, 0.7, merged["volume"])
	assert.Equal(t, 0.5, merged["brightness"])

	// local and remote converged
	local, err := records.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, pushed.Payload, local.Payload)
	dirty, err := records.DirtyRecords(ctx)
	require.NoError(t, err)
	assert.Empty(t, dirty)
}

func TestEngine_Sync_ManualPolicyParksConflict(t *testing.T) {
	ctx := context.Background()
	replica, seeded := seededRemote(t, []byte(`{"brightness":0.5}`), 2, time.Now().UTC())
	engine, records, _ := newTestEngine(t, replica, PolicyManual, Options{})

	local, err := records.SaveLocal(ctx, seeded.ID, seeded.DataType, []byte(`{"volume":0.7}`))
	require.NoError(t, err)

	require.NoError(t, engine.Sync(ctx))
	assert.Equal(t, models.SyncCompleted, engine.Status())

	unresolved := engine.Unresolved()
	require.Len(t, unresolved, 1)
	assert.Equal(t, seeded.ID, unresolved[0].RecordID)

	// neither side moved: local kept its edit, replica was not pushed to
	kept, err := records.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, local.Payload, kept.Payload)
	remoteRec, ok := replica.Record(seeded.ID)
	require.True(t, ok)
	assert.Equal(t, seeded.Version, remoteRec.Version)
}

func TestEngine_ResolveManual_UseLocal(t *testing.T) {
	ctx := context.Background()
	replica, seeded := seededRemote(t, []byte(`{"brightness":0.5}`), 2, time.Now().UTC())
	engine, records, _ := newTestEngine(t, replica, PolicyManual, Options{})

	local, err := records.SaveLocal(ctx, seeded.ID, seeded.DataType, []byte(`{"volume":0.7}`))
	require.NoError(t, err)
	require.NoError(t, engine.Sync(ctx))

	unresolved := engine.Unresolved()
	require.Len(t, unresolved, 1)

	require.NoError(t, engine.ResolveManual(ctx, unresolved[0].ID, models.ResolutionUseLocal))
	assert.Empty(t, engine.Unresolved())

	// the decided winner supersedes the remote version and ships on the
	// next cycle
	require.NoError(t, engine.Sync(ctx))
	pushed, ok := replica.Record(seeded.ID)
	require.True(t, ok)
	assert.Equal(t, local.Payload, pushed.Payload)
	assert.Equal(t, int64(3), pushed.Version)
}

func TestEngine_ResolveManual_UseRemote(t *testing.T) {
	ctx := context.Background()
	replica, seeded := seededRemote(t, []byte(`{"brightness":0.5}`), 2, time.Now().UTC())
	engine, records, _ := newTestEngine(t, replica, PolicyManual, Options{})

	_, err := records.SaveLocal(ctx, seeded.ID, seeded.DataType, []byte(`{"volume":0.7}`))
	require.NoError(t, err)
	require.NoError(t, engine.Sync(ctx))

	unresolved := engine.Unresolved()
	require.Len(t, unresolved, 1)

	require.NoError(t, engine.ResolveManual(ctx, unresolved[0].ID, models.ResolutionUseRemote))

	got, err := records.Get(ctx, seeded.ID)
	require.NoError(t, err)
	assert.Equal(t, seeded.Payload, got.Payload)
	assert.Equal(t, seeded.Version, got.Version)
}

func TestEngine_ResolveManual_Validation(t *testing.T) {
	ctx := context.Background()
	engine, _, _ := newTestEngine(t, remote.NewMemoryReplica(), PolicyManual, Options{})

	err := engine.ResolveManual(ctx, "no-such-conflict", models.ResolutionUseLocal)
	require.ErrorIs(t, err, ErrUnknownConflict)
}

func TestEngine_Sync_DeletionPropagatesAndPurges(t *testing.T) {
	ctx := context.Background()
	replica := remote.NewMemoryReplica()
	engine, records, _ := newTestEngine(t, replica, PolicyMerge, Options{})

	_, err := records.SaveLocal(ctx, "rec-gone", models.Session, []byte(`{"position":120}`))
	require.NoError(t, err)
	require.NoError(t, engine.Sync(ctx))

	_, err = records.SoftDelete(ctx, "rec-gone")
	require.NoError(t, err)
	require.NoError(t, engine.Sync(ctx))

	// the replica learned the tombstone and the acked local copy is gone
	remoteRec, ok := replica.Record("rec-gone")
	require.True(t, ok)
	assert.True(t, remoteRec.Tombstone)
	_, err = records.Get(ctx, "rec-gone")
	require.ErrorIs(t, err, store.ErrRecordNotFound)
}

func TestEngine_Sync_ConnectivityFailureGoesOfflineAfterBudget(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	replica := mock.NewMockReplica(ctrl)
	replica.EXPECT().Pull(gomock.Any(), gomock.Any()).
		Return(remote.PullResult{}, remote.ErrUnavailable).Times(3)

	engine, _, _ := newTestEngine(t, replica, PolicyMerge, Options{RetryBudget: 2})

	for i := 0; i < 2; i++ {
		err := engine.Sync(ctx)
		require.ErrorIs(t, err, remote.ErrUnavailable)
		assert.Equal(t, models.SyncFailed, engine.Status())
	}

	err := engine.Sync(ctx)
	require.ErrorIs(t, err, remote.ErrUnavailable)
	assert.Equal(t, models.SyncOffline, engine.Status())
}

func TestEngine_Sync_TransientStoreFailureCountsTowardBackoff(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)

	// a busy database file is retryable, same as lost connectivity
	busy := fmt.Errorf("%w: database is locked", store.ErrTransient)
	kv := mock.NewMockDurableStore(ctrl)
	kv.EXPECT().Get(gomock.Any(), "meta/cursor").Return(nil, busy).Times(3)

	records := store.NewRecordStore(kv, "device-local", nil)
	engine := NewEngine(records, remote.NewMemoryReplica(), NewResolver(PolicyMerge, nil), store.NewGate(), nil, Options{RetryBudget: 2}, nil)
	t.Cleanup(engine.Close)

	for i := 0; i < 2; i++ {
		err := engine.Sync(ctx)
		require.ErrorIs(t, err, store.ErrTransient)
		assert.Equal(t, models.SyncFailed, engine.Status())
	}

	err := engine.Sync(ctx)
	require.ErrorIs(t, err, store.ErrTransient)
	assert.Equal(t, models.SyncOffline, engine.Status())
}

func TestEngine_Sync_RecoveryResetsRetryCount(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	replica := mock.NewMockReplica(ctrl)
	gomock.InOrder(
		replica.EXPECT().Pull(gomock.Any(), gomock.Any()).
			Return(remote.PullResult{}, remote.ErrUnavailable),
		replica.EXPECT().Pull(gomock.Any(), gomock.Any()).
			Return(remote.PullResult{Next: "0"}, nil),
	)

	engine, _, _ := newTestEngine(t, replica, PolicyMerge, Options{})

	require.ErrorIs(t, engine.Sync(ctx), remote.ErrUnavailable)
	require.NoError(t, engine.Sync(ctx))
	assert.Equal(t, models.SyncCompleted, engine.Status())
}

func TestEngine_Sync_AuthFailureIsNotRetried(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	replica := mock.NewMockReplica(ctrl)
	replica.EXPECT().Pull(gomock.Any(), gomock.Any()).
		Return(remote.PullResult{}, remote.ErrUnauthorized)

	engine, _, _ := newTestEngine(t, replica, PolicyMerge, Options{AutoRetry: true})

	err := engine.Sync(ctx)
	require.ErrorIs(t, err, remote.ErrUnauthorized)
	assert.Equal(t, models.SyncFailed, engine.Status())
}

// blockingReplica parks every Pull until released, to hold a cycle open.
type blockingReplica struct {
	release chan struct{}
	pulls   int
	mu      sync.Mutex
}

func (r *blockingReplica) Pull(ctx context.Context, _ models.SyncCursor) (remote.PullResult, error) {
	r.mu.Lock()
	r.pulls++
	r.mu.Unlock()
	select {
	case <-r.release:
	case <-ctx.Done():
		return remote.PullResult{}, ctx.Err()
	}
	return remote.PullResult{Next: "0"}, nil
}

func (r *blockingReplica) Push(_ context.Context, _ []models.ChangeEnvelope) ([]models.Ack, error) {
	return nil, nil
}

func TestEngine_Sync_ConcurrentCallsCoalesce(t *testing.T) {
	replica := &blockingReplica{release: make(chan struct{})}
	engine, _, _ := newTestEngine(t, replica, PolicyMerge, Options{})

	const callers = 8
	var wg sync.WaitGroup
	errs := make([]error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs[i] = engine.Sync(context.Background())
		}(i)
	}

	// let every caller reach the engine before releasing the cycle
	require.Eventually(t, func() bool {
		return engine.Status() == models.SyncSyncing
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	close(replica.release)
	wg.Wait()

	for i := 0; i < callers; i++ {
		assert.NoError(t, errs[i])
	}
	replica.mu.Lock()
	defer replica.mu.Unlock()
	assert.Equal(t, 1, replica.pulls)
}

func TestEngine_Sync_EmitsLifecycleEvents(t *testing.T) {
	ctx := context.Background()
	replica, _ := seededRemote(t, []byte(`{"scene":"fireplace"}`), 1, time.Now().UTC())
	engine, _, _ := newTestEngine(t, replica, PolicyMerge, Options{})

	require.NoError(t, engine.Sync(ctx))

	first := <-engine.Events()
	assert.Equal(t, models.SyncSyncing, first.Status)

	second := <-engine.Events()
	assert.Equal(t, models.SyncCompleted, second.Status)
	assert.Equal(t, 1, second.Stats.Pulled)
	assert.Equal(t, 1, second.Stats.Applied)
	assert.Empty(t, second.Err)
}

func TestEngine_Sync_AfterCloseFails(t *testing.T) {
	engine, _, _ := newTestEngine(t, remote.NewMemoryReplica(), PolicyMerge, Options{})
	engine.Close()

	err := engine.Sync(context.Background())
	require.ErrorIs(t, err, ErrEngineClosed)
}

func TestEngine_Sync_PushRejectionRecordedAsFailure(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	replica := mock.NewMockReplica(ctrl)
	replica.EXPECT().Pull(gomock.Any(), gomock.Any()).
		Return(remote.PullResult{Next: "0"}, nil)
	replica.EXPECT().Push(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ context.Context, changes []models.ChangeEnvelope) ([]models.Ack, error) {
			require.Len(t, changes, 1)
			return []models.Ack{{
				RecordID: changes[0].RecordID,
				Applied:  false,
				Conflict: true,
				Reason:   "stale version",
			}}, nil
		})

	engine, records, _ := newTestEngine(t, replica, PolicyMerge, Options{})
	_, err := records.SaveLocal(ctx, "rec-stale", models.Preferences, []byte(`{}`))
	require.NoError(t, err)

	// a rejected push is not a cycle failure; the record stays dirty and
	// the failure is surfaced per record
	require.NoError(t, engine.Sync(ctx))
	failures := engine.Failures()
	assert.Contains(t, failures, "rec-stale")

	dirty, err := records.DirtyRecords(ctx)
	require.NoError(t, err)
	require.Len(t, dirty, 1)
}
