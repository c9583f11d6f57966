// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Rasul Khiriev

// Package datacore assembles the cache, durable store, sync engine,
// backup manager and integrity validator into one embeddable core. An
// integrating application builds a Core from config.Options and talks to
// the components it needs; everything below shares one store and one
// coordination gate.
package datacore

import (
	"context"
	"fmt"

	"github.com/denster32/dogtv-datacore/backup"
	"github.com/denster32/dogtv-datacore/cache"
	"github.com/denster32/dogtv-datacore/config"
	"github.com/denster32/dogtv-datacore/integrity"
	"github.com/denster32/dogtv-datacore/logger"
	"github.com/denster32/dogtv-datacore/migrations"
	"github.com/denster32/dogtv-datacore/models"
	"github.com/denster32/dogtv-datacore/remote"
	"github.com/denster32/dogtv-datacore/store"
	"github.com/denster32/dogtv-datacore/syncer"
	"github.com/denster32/dogtv-datacore/workers"
)

// Core is the assembled data layer.
type Core struct {
	// Records is the record-semantics view of the durable store.
	Records *store.RecordStore

	// Cache is the bounded read cache over record payloads, invalidated
	// by the sync engine.
	Cache *cache.Cache[string, models.Record]

	// Engine reconciles the store with the remote replica. Nil when no
	// remote is configured.
	Engine *syncer.Engine

	// Backups creates and restores whole-store snapshots.
	Backups *backup.Manager

	// Integrity scans the store for structural damage.
	Integrity *integrity.Validator

	// Jobs are the background tickers (sync, backup). Idle until Run.
	Jobs *workers.Workers

	store   store.DurableStore
	gate    *store.Gate
	log     *logger.Logger
	syncJob *workers.SyncJob
	bakJob  *workers.BackupJob
}

// New builds a Core from validated options. The returned core owns its
// store; call Close when done.
func New(ctx context.Context, cfg *config.Options, log *logger.Logger) (*Core, error) {
	if log == nil {
		log = logger.Nop()
	}

	kv, err := openStore(ctx, cfg, log)
	if err != nil {
		return nil, err
	}

	gate := store.NewGate()
	records := store.NewRecordStore(kv, cfg.Device.ID, log)

	readCache := cache.New(cache.Options[string, models.Record]{
		MaxEntries: cfg.Cache.MaxEntries,
		MaxBytes:   cfg.Cache.MaxBytes,
		Cost:       func(rec models.Record) int64 { return int64(len(rec.Payload)) },
	})

	storage, err := backup.NewFSStorage(cfg.Backup.Dir)
	if err != nil {
		return nil, err
	}
	backups := backup.NewManager(kv, storage, gate, cfg.Device.ID, cfg.Backup.Retention, log)
	validator := integrity.NewValidator(kv, gate, log)

	core := &Core{
		Records:   records,
		Cache:     readCache,
		Backups:   backups,
		Integrity: validator,
		store:     kv,
		gate:      gate,
		log:       log,
	}

	var jobs []workers.Worker
	if cfg.Remote.BaseURL != "" {
		policy, err := syncer.ParsePolicy(cfg.Sync.Policy)
		if err != nil {
			return nil, err
		}
		replica := remote.NewHTTPReplica(remote.HTTPClientConfig{
			BaseURL: cfg.Remote.BaseURL,
			Token:   cfg.Remote.Token,
			Timeout: cfg.Remote.Timeout,
		})
		core.Engine = syncer.NewEngine(records, replica, syncer.NewResolver(policy, log), gate, readCache, syncer.Options{
			Timeout:     cfg.Sync.Timeout,
			RetryBudget: cfg.Sync.RetryBudget,
			BackoffMin:  cfg.Sync.BackoffMin,
			BackoffMax:  cfg.Sync.BackoffMax,
			AutoRetry:   true,
		}, log)

		core.syncJob = workers.NewSyncJob(core.Engine, cfg.Sync.Interval, log)
		jobs = append(jobs, core.syncJob)
	}
	if cfg.Backup.Interval > 0 {
		core.bakJob = workers.NewBackupJob(backups, cfg.Backup.Interval, log)
		jobs = append(jobs, core.bakJob)
	}
	core.Jobs = workers.New(jobs...)

	return core, nil
}

// openStore picks the durable store backend per the configured driver.
func openStore(ctx context.Context, cfg *config.Options, log *logger.Logger) (store.DurableStore, error) {
	switch cfg.Storage.Driver {
	case config.DriverFile:
		return store.NewFileStore(cfg.Storage.Path, log)
	case config.DriverSQLite:
		return store.OpenSQL(ctx, migrations.DialectSQLite, cfg.Storage.DSN, log)
	case config.DriverPostgres:
		return store.OpenSQL(ctx, migrations.DialectPostgres, cfg.Storage.DSN, log)
	default:
		return nil, fmt.Errorf("unknown storage driver %q", cfg.Storage.Driver)
	}
}

// Close stops the background jobs and the sync engine, and releases the
// store when it holds external resources.
func (c *Core) Close() error {
	if c.syncJob != nil {
		c.syncJob.Stop()
	}
	if c.bakJob != nil {
		c.bakJob.Stop()
	}
	if c.Engine != nil {
		c.Engine.Close()
	}
	c.Cache.RemoveAll()

	if closer, ok := c.store.(interface{ Close() error }); ok {
		return closer.Close()
	}
	return nil
}
