package workers

import (
	"context"
	"sync"
	"time"

	"github.com/denster32/dogtv-datacore/logger"
	"github.com/denster32/dogtv-datacore/models"
)

// Backuper is the slice of the backup manager the job drives.
type Backuper interface {
	Create(ctx context.Context) (models.RestorePoint, error)
}

// BackupJob creates a snapshot every interval. The job is idle until
// Start (or Run) is called.
type BackupJob struct {
	manager  Backuper
	interval time.Duration
	log      *logger.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewBackupJob creates a BackupJob. If interval is zero or negative it
// defaults to 24 hours.
func NewBackupJob(manager Backuper, interval time.Duration, log *logger.Logger) *BackupJob {
	if interval <= 0 {
		interval = 24 * time.Hour
	}
	if log == nil {
		log = logger.Nop()
	}
	return &BackupJob{manager: manager, interval: interval, log: log}
}

// Run implements Worker.
func (j *BackupJob) Run() {
	j.Start(context.Background())
}

// Start stops any previously running job, then launches a background
// goroutine that snapshots every interval. The goroutine exits when ctx
// is cancelled or Stop is called.
func (j *BackupJob) Start(ctx context.Context) {
	j.Stop()

	j.mu.Lock()
	jobCtx, cancel := context.WithCancel(ctx)
	j.cancel = cancel
	j.wg.Add(1)
	j.mu.Unlock()

	go func() {
		defer j.wg.Done()
		t := time.NewTicker(j.interval)
		defer t.Stop()

		for {
			select {
			case <-jobCtx.Done():
				return
			case <-t.C:
				if _, err := j.manager.Create(jobCtx); err != nil {
					j.log.Err(err).Msg("scheduled backup failed")
				}
			}
		}
	}()
}

// Stop cancels the background goroutine and blocks until it has fully
// exited. Safe to call when the job is not running.
func (j *BackupJob) Stop() {
	j.mu.Lock()
	cancel := j.cancel
	j.cancel = nil
	j.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	j.wg.Wait()
}
