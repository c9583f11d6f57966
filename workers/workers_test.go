// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

package workers

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/denster32/dogtv-datacore/models"
)

// mockWorker tracks how many times Run was called.
type mockWorker struct {
	runCount int
}

func (m *mockWorker) Run() {
	m.runCount++
}

func TestWorkers_Run_AllWorkersAreCalled(t *testing.T) {
	w1 := &mockWorker{}
	w2 := &mockWorker{}
	w3 := &mockWorker{}

	New(w1, w2, w3).Run()

	for i, w := range []*mockWorker{w1, w2, w3} {
		assert.Equal(t, 1, w.runCount, "worker[%d]", i)
	}
}

func TestWorkers_Run_Empty(t *testing.T) {
	// must not panic with no workers
	New().Run()
	(&Workers{}).Run()
}

type countingSyncer struct {
	calls atomic.Int32
}

func (s *countingSyncer) Sync(context.Context) error {
	s.calls.Add(1)
	return nil
}

func TestSyncJob_TicksUntilStopped(t *testing.T) {
	syncer := &countingSyncer{}
	job := NewSyncJob(syncer, 10*time.Millisecond, nil)

	job.Start(context.Background())
	require.Eventually(t, func() bool {
		return syncer.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	job.Stop()
	settled := syncer.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, syncer.calls.Load(), "no ticks after Stop")
}

func TestSyncJob_StopWithoutStartIsSafe(t *testing.T) {
	job := NewSyncJob(&countingSyncer{}, time.Minute, nil)
	job.Stop()
	job.Stop()
}

func TestSyncJob_RestartReplacesPreviousRun(t *testing.T) {
	syncer := &countingSyncer{}
	job := NewSyncJob(syncer, 10*time.Millisecond, nil)
	defer job.Stop()

	job.Start(context.Background())
	job.Start(context.Background())

	require.Eventually(t, func() bool {
		return syncer.calls.Load() >= 1
	}, time.Second, 5*time.Millisecond)
}

func TestSyncJob_ParentContextCancelStopsJob(t *testing.T) {
	syncer := &countingSyncer{}
	job := NewSyncJob(syncer, 10*time.Millisecond, nil)
	defer job.Stop()

	ctx, cancel := context.WithCancel(context.Background())
	job.Start(ctx)
	cancel()

	time.Sleep(30 * time.Millisecond)
	settled := syncer.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, syncer.calls.Load())
}

type countingBackuper struct {
	calls atomic.Int32
}

func (b *countingBackuper) Create(context.Context) (models.RestorePoint, error) {
	b.calls.Add(1)
	return models.RestorePoint{}, nil
}

func TestBackupJob_TicksUntilStopped(t *testing.T) {
	backuper := &countingBackuper{}
	job := NewBackupJob(backuper, 10*time.Millisecond, nil)

	job.Start(context.Background())
	require.Eventually(t, func() bool {
		return backuper.calls.Load() >= 2
	}, time.Second, 5*time.Millisecond)

	job.Stop()
	settled := backuper.calls.Load()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, settled, backuper.calls.Load(), "no sweeps after Stop")
}
