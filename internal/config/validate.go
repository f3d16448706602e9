package config

import (
	"fmt"
	"strings"
)

// Validate checks configuration invariants that would otherwise surface as
// confusing runtime failures.
func (c *Config) Validate() error {
	var problems []string

	if c.Paths.UploadDir == "" {
		problems = append(problems, "paths.upload_dir must be set")
	}
	if c.Paths.WorkDir == "" {
		problems = append(problems, "paths.work_dir must be set")
	}
	if c.Store.RetentionDays <= 0 {
		problems = append(problems, "store.retention_days must be positive")
	}
	if c.Queue.TranscodeConcurrency <= 0 {
		problems = append(problems, "queue.transcode_concurrency must be positive")
	}
	if c.Queue.UploadConcurrency <= 0 {
		problems = append(problems, "queue.upload_concurrency must be positive")
	}
	if c.Queue.UploadFanout <= 0 {
		problems = append(problems, "queue.upload_fanout must be positive")
	}
	if c.Queue.MaxAttempts <= 0 {
		problems = append(problems, "queue.max_attempts must be positive")
	}
	if c.Transcode.CRF < 0 || c.Transcode.CRF > 51 {
		problems = append(problems, "transcode.crf must be between 0 and 51")
	}
	if c.Transcode.SegmentTime <= 0 {
		problems = append(problems, "transcode.segment_time must be positive")
	}
	if c.Recovery.StaleThresholdMinutes <= 0 {
		problems = append(problems, "recovery.stale_threshold_minutes must be positive")
	}
	if c.Recovery.SweepIntervalMinutes <= 0 {
		problems = append(problems, "recovery.sweep_interval_minutes must be positive")
	}
	if c.Storage.Endpoint != "" && c.Storage.Bucket == "" {
		problems = append(problems, "storage.bucket must be set when storage.endpoint is configured")
	}

	switch strings.ToLower(strings.TrimSpace(c.Logging.Format)) {
	case "", "console", "json":
	default:
		problems = append(problems, fmt.Sprintf("logging.format %q is not supported", c.Logging.Format))
	}

	if len(problems) > 0 {
		return fmt.Errorf("invalid configuration: %s", strings.Join(problems, "; "))
	}
	return nil
}
