package backup

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/denster32/dogtv-datacore/mock"
	"github.com/denster32/dogtv-datacore/models"
	"github.com/denster32/dogtv-datacore/store"
)

func newTestManager(t *testing.T, retention int) (*Manager, store.DurableStore) {
	t.Helper()

	kv, err := store.NewFileStore(":memory:", nil)
	require.NoError(t, err)
	storage, err := NewFSStorage(t.TempDir())
	require.NoError(t, err)

	return NewManager(kv, storage, store.NewGate(), "device-test", retention, nil), kv
}

func TestManager_CreateAndRestore_RoundTrip(t *testing.T) {
	ctx := context.Background()
	m, kv := newTestManager(t, 0)

	require.NoError(t, kv.Put(ctx, "a", []byte("1")))
	require.NoError(t, kv.Put(ctx, "b", []byte("2")))

	point, err := m.Create(ctx)
	require.NoError(t, err)
	assert.True(t, point.IsComplete)
	assert.Equal(t, 2, point.KeyCount)
	assert.NotEmpty(t, point.Checksum)
	assert.Positive(t, point.Size)

	// mutate everything after the snapshot
	require.NoError(t, kv.Put(ctx, "a", []byte("changed")))
	require.NoError(t, kv.Delete(ctx, "b"))
	require.NoError(t, kv.Put(ctx, "c", []byte("3")))

	require.NoError(t, m.Restore(ctx, point))

	a, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("1"), a)
	b, err := kv.Get(ctx, "b")
	require.NoError(t, err)
	assert.Equal(t, []byte("2"), b)
	_, err = kv.Get(ctx, "c")
	require.ErrorIs(t, err, store.ErrKeyNotFound)
}

func TestManager_Create_CapturesDataTypes(t *testing.T) {
	ctx := context.Background()
	m, kv := newTestManager(t, 0)

	records := store.NewRecordStore(kv, "device-test", nil)
	_, err := records.SaveLocal(ctx, "p-1", models.Preferences, []byte(`{"volume":0.7}`))
	require.NoError(t, err)
	_, err = records.SaveLocal(ctx, "s-1", models.Session, []byte(`{"position":10}`))
	require.NoError(t, err)

	point, err := m.Create(ctx)
	require.NoError(t, err)
	assert.Equal(t, []models.DataType{models.Preferences, models.Session}, point.DataTypes)
}

func TestManager_Create_ReadFailureStoresNothing(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	kv := mock.NewMockDurableStore(ctrl)
	kv.EXPECT().List(ctx).Return([]string{"a", "b"}, nil)
	kv.EXPECT().Get(ctx, "a").Return([]byte("1"), nil)
	kv.EXPECT().Get(ctx, "b").Return(nil, errors.New("disk error"))

	storage, err := NewFSStorage(t.TempDir())
	require.NoError(t, err)
	m := NewManager(kv, storage, store.NewGate(), "device-test", 0, nil)

	_, err = m.Create(ctx)
	require.ErrorIs(t, err, ErrBackupFailed)

	handles, err := storage.List(ctx)
	require.NoError(t, err)
	assert.Empty(t, handles)
}

func TestManager_Create_StorageFailureYieldsNoPoint(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	storage := mock.NewMockStorage(ctrl)
	storage.EXPECT().Store(ctx, gomock.Any()).Return("", errors.New("volume full"))

	kv, err := store.NewFileStore(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, "a", []byte("1")))

	m := NewManager(kv, storage, store.NewGate(), "device-test", 0, nil)

	_, err = m.Create(ctx)
	require.ErrorIs(t, err, ErrBackupFailed)
}

func TestManager_Restore_ChecksumMismatchLeavesStoreUntouched(t *testing.T) {
	ctx := context.Background()
	m, kv := newTestManager(t, 0)

	require.NoError(t, kv.Put(ctx, "a", []byte("1")))
	point, err := m.Create(ctx)
	require.NoError(t, err)

	require.NoError(t, kv.Put(ctx, "a", []byte("after")))

	tampered := point
	tampered.Checksum = "0000"
	err = m.Restore(ctx, tampered)
	require.ErrorIs(t, err, ErrRestoreFailed)

	a, err := kv.Get(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, []byte("after"), a)
}

func TestManager_Restore_UnknownHandle(t *testing.T) {
	ctx := context.Background()
	m, _ := newTestManager(t, 0)

	err := m.Restore(ctx, models.RestorePoint{Handle: "nope.snap"})
	require.ErrorIs(t, err, ErrRestoreFailed)
	require.ErrorIs(t, err, ErrSnapshotNotFound)
}

func TestManager_Restore_WriteFailureRollsBack(t *testing.T) {
	ctx := context.Background()

	// capture a real snapshot first
	kv, err := store.NewFileStore(":memory:", nil)
	require.NoError(t, err)
	require.NoError(t, kv.Put(ctx, "a", []byte("snap")))
	storage, err := NewFSStorage(t.TempDir())
	require.NoError(t, err)
	m := NewManager(kv, storage, store.NewGate(), "device-test", 0, nil)
	point, err := m.Create(ctx)
	require.NoError(t, err)

	// restore into a store whose writes fail; the pre-image must survive
	ctrl := gomock.NewController(t)
	failing := mock.NewMockDurableStore(ctrl)
	failing.EXPECT().List(gomock.Any()).Return([]string{"x"}, nil).AnyTimes()
	failing.EXPECT().Get(gomock.Any(), "x").Return([]byte("pre"), nil).AnyTimes()
	failing.EXPECT().Put(gomock.Any(), "a", gomock.Any()).Return(errors.New("disk error"))
	failing.EXPECT().Delete(gomock.Any(), "x").Return(nil).AnyTimes()
	// rollback writes the pre-image back
	failing.EXPECT().Put(gomock.Any(), "x", []byte("pre")).Return(nil)

	m2 := NewManager(failing, storage, store.NewGate(), "device-test", 0, nil)
	err = m2.Restore(ctx, point)
	require.ErrorIs(t, err, ErrRestoreFailed)
}

func TestManager_Points_NewestFirst(t *testing.T) {
	ctx := context.Background()
	m, kv := newTestManager(t, 0)

	require.NoError(t, kv.Put(ctx, "a", []byte("1")))
	first, err := m.Create(ctx)
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	require.NoError(t, kv.Put(ctx, "b", []byte("2")))
	second, err := m.Create(ctx)
	require.NoError(t, err)

	points, err := m.Points(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, second.ID, points[0].ID)
	assert.Equal(t, first.ID, points[1].ID)
}

func TestManager_Create_RetentionPrunesOldest(t *testing.T) {
	ctx := context.Background()
	m, kv := newTestManager(t, 2)

	var newest []string
	for i := 0; i < 4; i++ {
		require.NoError(t, kv.Put(ctx, "a", []byte{byte(i)}))
		point, err := m.Create(ctx)
		require.NoError(t, err)
		newest = append(newest, point.ID)
		time.Sleep(2 * time.Millisecond)
	}

	points, err := m.Points(ctx)
	require.NoError(t, err)
	require.Len(t, points, 2)
	assert.Equal(t, newest[3], points[0].ID)
	assert.Equal(t, newest[2], points[1].ID)
}

func TestEntriesChecksum_Deterministic(t *testing.T) {
	a := map[string][]byte{"k1": []byte("v1"), "k2": []byte("v2")}
	b := map[string][]byte{"k2": []byte("v2"), "k1": []byte("v1")}
	assert.Equal(t, entriesChecksum(a), entriesChecksum(b))

	// length prefixes keep concatenation ambiguity out
	c := map[string][]byte{"k": []byte("1v1")}
	d := map[string][]byte{"k1": []byte("v1")}
	assert.NotEqual(t, entriesChecksum(c), entriesChecksum(d))
}
