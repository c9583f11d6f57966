package backup

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/denster32/dogtv-datacore/mock"
	"github.com/denster32/dogtv-datacore/models"
	"github.com/denster32/dogtv-datacore/store"
)

func TestManager_Export(t *testing.T) {
	ctx := context.Background()
	m, kv := newTestManager(t, 0)

	records := store.NewRecordStore(kv, "device-test", nil)
	_, err := records.SaveLocal(ctx, "pref-1", models.Preferences, []byte(`{"volume":0.7}`))
	require.NoError(t, err)
	_, err = records.SaveLocal(ctx, "session-1", models.Session, []byte(`{"position":10}`))
	require.NoError(t, err)
	_, err = records.SoftDelete(ctx, "session-1")
	require.NoError(t, err)

	var buf bytes.Buffer
	require.NoError(t, m.Export(ctx, &buf))

	var doc struct {
		DeviceID string          `json:"device_id"`
		Records  []models.Record `json:"records"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &doc))

	assert.Equal(t, "device-test", doc.DeviceID)
	require.Len(t, doc.Records, 1, "tombstones stay out of exports")
	assert.Equal(t, "pref-1", doc.Records[0].ID)
	assert.JSONEq(t, `{"volume":0.7}`, string(doc.Records[0].Payload))
}

func TestManager_Export_ReadFailureWritesNothing(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	kv := mock.NewMockDurableStore(ctrl)
	kv.EXPECT().List(ctx).Return([]string{"record/a"}, nil)
	kv.EXPECT().Get(ctx, "record/a").Return(nil, assert.AnError)

	m := NewManager(kv, nil, store.NewGate(), "device-test", 0, nil)

	var buf bytes.Buffer
	err := m.Export(ctx, &buf)
	require.ErrorIs(t, err, ErrExportFailed)
	assert.Zero(t, buf.Len())
}

func TestManager_Export_UndecodableRecordFails(t *testing.T) {
	ctx := context.Background()
	m, kv := newTestManager(t, 0)

	require.NoError(t, kv.Put(ctx, "record/broken", []byte("not json")))

	var buf bytes.Buffer
	err := m.Export(ctx, &buf)
	require.ErrorIs(t, err, ErrExportFailed)
}
