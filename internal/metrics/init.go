package metrics

// InitializeMetrics pre-populates expected label combinations so that every
// metric is exported from the first Prometheus scrape.
// Call this once at startup after metric registration.
func InitializeMetrics() {
	for _, outcome := range []string{"completed", "failed"} {
		JobsTotal.WithLabelValues(outcome)
	}

	stages := []string{"validating", "uploading", "deriving", "enriching", "removing_background", "finalizing"}
	for _, s := range stages {
		StageDuration.WithLabelValues(s)
	}
	for _, s := range []string{"deriving", "enriching", "removing_background"} {
		StageDegradations.WithLabelValues(s)
	}

	for _, kind := range []string{"validation", "storage", "quota_exceeded", "canceled", "internal"} {
		JobFailures.WithLabelValues(kind)
	}

	for _, status := range []string{"success", "error"} {
		CleanupRuns.WithLabelValues(status)
		EnrichmentRequests.WithLabelValues(status)
		MattingRequests.WithLabelValues(status)
	}

	for _, backend := range []string{"disk", "s3"} {
		StorageBytesWritten.WithLabelValues(backend)
		for _, op := range []string{"put", "get", "delete", "delete_tree", "list"} {
			StorageOperations.WithLabelValues(backend, op, "success")
			StorageOperations.WithLabelValues(backend, op, "error")
		}
	}

	for _, class := range []string{"small", "medium", "large"} {
		ThumbnailsGenerated.WithLabelValues(class, "success")
		ThumbnailsGenerated.WithLabelValues(class, "error")
		ThumbnailDuration.WithLabelValues(class)
	}

	for _, op := range []string{"initialize_schema", "insert_job", "finalize_job", "get_job", "list_jobs",
		"quota_remaining", "quota_increment", "set_quota_limit"} {
		DBQueryTotal.WithLabelValues(op, "success")
		DBQueryTotal.WithLabelValues(op, "error")
		DBQueryDuration.WithLabelValues(op)
	}
}
