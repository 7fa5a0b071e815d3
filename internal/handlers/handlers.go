package handlers

import (
	"time"

	"media-ingest/internal/database"
	"media-ingest/internal/pipeline"
	"media-ingest/internal/quota"
	"media-ingest/internal/startup"
)

type Handlers struct {
	scheduler    *pipeline.Scheduler
	db           *database.Database
	gate         quota.Gate
	concurrency  int
	defaultQuota int
	startTime    time.Time
}

func New(scheduler *pipeline.Scheduler, db *database.Database, gate quota.Gate, config *startup.Config) *Handlers {
	return &Handlers{
		scheduler:    scheduler,
		db:           db,
		gate:         gate,
		concurrency:  config.BatchConcurrency,
		defaultQuota: config.QuotaDefaultLimit,
		startTime:    time.Now(),
	}
}
