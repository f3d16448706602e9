package jobstore

import (
	"context"
	"encoding/json"
	"sort"
	"strings"

	"slipstream/internal/logging"
)

const defaultPageSize = 20

// ListOptions selects, orders, and pages job records.
type ListOptions struct {
	Status   Status
	SortBy   string // record field name, default "createdAt"
	Order    string // "asc" or "desc", default "desc"
	Page     int    // 1-indexed
	PageSize int
}

// Pagination describes the page returned by FindAll. Total counts records
// after filtering.
type Pagination struct {
	Page       int `json:"page"`
	PageSize   int `json:"pageSize"`
	Total      int `json:"total"`
	TotalPages int `json:"totalPages"`
}

// Page is one page of job records.
type Page struct {
	Items      []*JobRecord `json:"items"`
	Pagination Pagination   `json:"pagination"`
}

// Counts aggregates records by status.
type Counts struct {
	Total      int `json:"total"`
	Pending    int `json:"pending"`
	Processing int `json:"processing"`
	Uploading  int `json:"uploading"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`
	Cancelled  int `json:"cancelled"`
}

// FindAll lists records matching opts. Filtering, sorting, and pagination run
// in Go over the loaded set so the primary and fallback backends are
// observationally identical. Sort ties keep insertion order.
func (s *Store) FindAll(ctx context.Context, opts ListOptions) (*Page, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return nil, err
	}

	filtered := records[:0]
	for _, record := range records {
		if opts.Status != "" && record.Status != opts.Status {
			continue
		}
		filtered = append(filtered, record)
	}

	sortRecords(filtered, opts.SortBy, opts.Order)

	page := opts.Page
	if page < 1 {
		page = 1
	}
	pageSize := opts.PageSize
	if pageSize < 1 {
		pageSize = defaultPageSize
	}

	total := len(filtered)
	totalPages := (total + pageSize - 1) / pageSize
	start := (page - 1) * pageSize
	if start > total {
		start = total
	}
	end := start + pageSize
	if end > total {
		end = total
	}

	return &Page{
		Items: filtered[start:end],
		Pagination: Pagination{
			Page:       page,
			PageSize:   pageSize,
			Total:      total,
			TotalPages: totalPages,
		},
	}, nil
}

// Stats returns a count of live records grouped by status.
func (s *Store) Stats(ctx context.Context) (Counts, error) {
	records, err := s.loadRecords(ctx)
	if err != nil {
		return Counts{}, err
	}

	counts := Counts{Total: len(records)}
	for _, record := range records {
		switch record.Status {
		case StatusPending:
			counts.Pending++
		case StatusProcessing:
			counts.Processing++
		case StatusUploading:
			counts.Uploading++
		case StatusCompleted:
			counts.Completed++
		case StatusFailed:
			counts.Failed++
		case StatusCancelled:
			counts.Cancelled++
		}
	}
	return counts, nil
}

func (s *Store) loadRecords(ctx context.Context) ([]*JobRecord, error) {
	var payloads [][]byte
	s.run(ctx, "list", func(b backend) error {
		var err error
		payloads, err = b.loadAll(ctx, keyPrefix, s.now().UTC())
		return err
	})

	records := make([]*JobRecord, 0, len(payloads))
	for _, payload := range payloads {
		record := new(JobRecord)
		if err := json.Unmarshal(payload, record); err != nil {
			s.logger.Warn("skipping unreadable job record", logging.Error(err))
			continue
		}
		records = append(records, record)
	}
	return records, nil
}

func sortRecords(records []*JobRecord, sortBy, order string) {
	field := strings.TrimSpace(sortBy)
	if field == "" {
		field = "createdAt"
	}
	descending := !strings.EqualFold(strings.TrimSpace(order), "asc")

	sort.SliceStable(records, func(i, j int) bool {
		cmp := compareField(records[i], records[j], field)
		if descending {
			return cmp > 0
		}
		return cmp < 0
	})
}

func compareField(a, b *JobRecord, field string) int {
	switch field {
	case "jobId":
		return strings.Compare(a.JobID, b.JobID)
	case "status":
		return strings.Compare(string(a.Status), string(b.Status))
	case "fileType":
		return strings.Compare(a.FileType, b.FileType)
	case "originalName":
		return strings.Compare(a.OriginalName, b.OriginalName)
	case "progress":
		return compareInt(int64(a.Progress), int64(b.Progress))
	case "fileSize":
		return compareInt(a.FileSize, b.FileSize)
	case "updatedAt":
		return a.UpdatedAt.Compare(b.UpdatedAt)
	default:
		return a.CreatedAt.Compare(b.CreatedAt)
	}
}

func compareInt(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}
