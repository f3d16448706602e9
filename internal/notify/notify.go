// Package notify posts best-effort job status callbacks to an upstream
// backend. Delivery failures never fail the pipeline; the outcome is
// reported as a bool and logged.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"slipstream/internal/config"
	"slipstream/internal/logging"
)

// Client delivers status callbacks.
type Client interface {
	// Notify reports a job status transition. It returns true when the
	// backend acknowledged the update with a 2xx response.
	Notify(ctx context.Context, jobID, status, url string, extra map[string]any) bool
}

// Notification is one entry of a batch delivery.
type Notification struct {
	JobID  string
	Status string
	URL    string
	Extra  map[string]any
}

// HTTP is the production Client. An empty base URL disables delivery.
type HTTP struct {
	baseURL string
	client  *http.Client
	logger  *slog.Logger
	now     func() time.Time
}

// NewHTTP constructs a callback client from notify configuration.
func NewHTTP(cfg config.Notify, logger *slog.Logger) *HTTP {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTP{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		client:  &http.Client{Timeout: timeout},
		logger:  logging.NewComponentLogger(logger, "notify"),
		now:     time.Now,
	}
}

// Notify PATCHes {base}/api/files/{jobID}/status with the status payload.
func (h *HTTP) Notify(ctx context.Context, jobID, status, url string, extra map[string]any) bool {
	if h.baseURL == "" {
		return true
	}

	payload := make(map[string]any, len(extra)+3)
	payload["status"] = status
	if url != "" {
		payload["url"] = url
	}
	for key, value := range extra {
		payload[key] = value
	}
	payload["updatedAt"] = h.now().UTC().Format(time.RFC3339)

	body, err := json.Marshal(payload)
	if err != nil {
		h.logger.Error("encode notification", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return false
	}

	endpoint := fmt.Sprintf("%s/api/files/%s/status", h.baseURL, jobID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPatch, endpoint, bytes.NewReader(body))
	if err != nil {
		h.logger.Error("build notification request", logging.String(logging.FieldJobID, jobID), logging.Error(err))
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := h.client.Do(req)
	if err != nil {
		h.logger.Warn("notification delivery failed",
			logging.String(logging.FieldJobID, jobID),
			logging.String("status", status),
			logging.Error(err),
		)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		h.logger.Warn("backend rejected notification",
			logging.String(logging.FieldJobID, jobID),
			logging.String("status", status),
			logging.Int("http_status", resp.StatusCode),
		)
		return false
	}

	h.logger.Info("backend notified",
		logging.String(logging.FieldJobID, jobID),
		logging.String("status", status),
	)
	return true
}

// NotifyBatch delivers a set of notifications concurrently and returns how
// many were acknowledged.
func NotifyBatch(ctx context.Context, client Client, notifications []Notification) int {
	var wg sync.WaitGroup
	results := make([]bool, len(notifications))
	for i, n := range notifications {
		wg.Add(1)
		go func(i int, n Notification) {
			defer wg.Done()
			results[i] = client.Notify(ctx, n.JobID, n.Status, n.URL, n.Extra)
		}(i, n)
	}
	wg.Wait()

	delivered := 0
	for _, ok := range results {
		if ok {
			delivered++
		}
	}
	return delivered
}

var _ Client = (*HTTP)(nil)
