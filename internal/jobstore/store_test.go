package jobstore

import (
	"context"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func openTestSQLite(t *testing.T) *sqliteBackend {
	t.Helper()
	b, err := openSQLite(filepath.Join(t.TempDir(), "jobs.db"))
	if err != nil {
		t.Fatalf("openSQLite failed: %v", err)
	}
	t.Cleanup(func() { _ = b.close() })
	return b
}

func newRecord(id string, status Status) *JobRecord {
	return &JobRecord{
		JobID:        id,
		Status:       status,
		FileType:     "video",
		OriginalName: id + ".mp4",
		FileSize:     1024,
	}
}

func seed(t *testing.T, store *Store, records ...*JobRecord) {
	t.Helper()
	ctx := context.Background()
	for _, record := range records {
		if err := store.Save(ctx, record); err != nil {
			t.Fatalf("Save %s failed: %v", record.JobID, err)
		}
	}
}

func TestSaveAndGetRoundTrip(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	ctx := context.Background()

	record := newRecord("j1", StatusPending)
	record.Metadata = map[string]string{"dbId": "42"}
	seed(t, store, record)

	fetched, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.Status != StatusPending || fetched.Metadata["dbId"] != "42" {
		t.Fatalf("unexpected record %#v", fetched)
	}
	if fetched.CreatedAt.IsZero() || fetched.UpdatedAt.IsZero() {
		t.Fatal("expected timestamps to be set")
	}
}

func TestGetAbsentReturnsNil(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	record, err := store.Get(context.Background(), "missing")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if record != nil {
		t.Fatalf("expected nil, got %#v", record)
	}
}

func TestUpdateIsNotUpsert(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	ctx := context.Background()

	updated, err := store.Update(ctx, "ghost", func(r *JobRecord) { r.Progress = 50 })
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated != nil {
		t.Fatalf("expected nil for absent record, got %#v", updated)
	}
	if record, _ := store.Get(ctx, "ghost"); record != nil {
		t.Fatal("update must not create records")
	}
}

func TestUpdateMergesFields(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	ctx := context.Background()
	seed(t, store, newRecord("j1", StatusPending))

	updated, err := store.Update(ctx, "j1", func(r *JobRecord) {
		r.Status = StatusProcessing
		r.SetProgress(30)
	})
	if err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	if updated.Status != StatusProcessing || updated.Progress != 30 {
		t.Fatalf("unexpected record %#v", updated)
	}
	if updated.OriginalName != "j1.mp4" {
		t.Fatal("untouched fields must survive the update")
	}
}

func TestUpdateIfSkipsTerminalRecords(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)

	seed(t, store, newRecord("j1", StatusCancelled))

	record, applied, err := store.UpdateIf(context.Background(), "j1",
		func(r *JobRecord) bool { return r.Status.Active() },
		func(r *JobRecord) { r.Status = StatusCompleted },
	)
	if err != nil {
		t.Fatalf("UpdateIf: %v", err)
	}
	if applied {
		t.Fatal("mutation must not apply to a cancelled record")
	}
	if record.Status != StatusCancelled {
		t.Fatalf("status = %s, want cancelled", record.Status)
	}

	got, err := store.Get(context.Background(), "j1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Status != StatusCancelled {
		t.Fatalf("persisted status = %s, want cancelled", got.Status)
	}
}

func TestRacingTerminalWritesApplyExactlyOnce(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	ctx := context.Background()
	active := func(r *JobRecord) bool { return r.Status.Active() }

	for i := 0; i < 100; i++ {
		seed(t, store, newRecord("j1", StatusUploading))

		var wg sync.WaitGroup
		var cancelApplied, completeApplied bool
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, applied, err := store.UpdateIf(ctx, "j1", active, func(r *JobRecord) {
				r.Status = StatusCancelled
			})
			if err != nil {
				t.Errorf("cancel UpdateIf: %v", err)
			}
			cancelApplied = applied
		}()
		go func() {
			defer wg.Done()
			_, applied, err := store.UpdateIf(ctx, "j1", active, func(r *JobRecord) {
				r.Status = StatusCompleted
			})
			if err != nil {
				t.Errorf("complete UpdateIf: %v", err)
			}
			completeApplied = applied
		}()
		wg.Wait()

		if cancelApplied == completeApplied {
			t.Fatalf("iteration %d: exactly one terminal write must apply, got cancel=%v complete=%v",
				i, cancelApplied, completeApplied)
		}

		got, err := store.Get(ctx, "j1")
		if err != nil {
			t.Fatalf("Get: %v", err)
		}
		want := StatusCancelled
		if completeApplied {
			want = StatusCompleted
		}
		if got.Status != want {
			t.Fatalf("iteration %d: persisted status = %s, want %s", i, got.Status, want)
		}

		if err := store.Delete(ctx, "j1"); err != nil {
			t.Fatalf("Delete: %v", err)
		}
	}
}

func TestRecordsExpireAfterTTL(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	ctx := context.Background()
	seed(t, store, newRecord("j1", StatusCompleted))

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }

	if record, _ := store.Get(ctx, "j1"); record != nil {
		t.Fatal("expired record must read as absent")
	}
	counts, err := store.Stats(ctx)
	if err != nil {
		t.Fatalf("Stats failed: %v", err)
	}
	if counts.Total != 0 {
		t.Fatalf("expired record still counted: %+v", counts)
	}
}

func TestPurgeExpired(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	ctx := context.Background()
	seed(t, store, newRecord("j1", StatusCompleted), newRecord("j2", StatusFailed))

	store.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	if purged := store.PurgeExpired(ctx); purged != 2 {
		t.Fatalf("PurgeExpired = %d, want 2", purged)
	}
}

// failingBackend simulates an unreachable primary store.
type failingBackend struct{}

var errUnreachable = errors.New("connection refused")

func (failingBackend) save(context.Context, string, []byte, time.Time) error { return errUnreachable }
func (failingBackend) get(context.Context, string, time.Time) ([]byte, bool, error) {
	return nil, false, errUnreachable
}
func (failingBackend) remove(context.Context, string) error { return errUnreachable }
func (failingBackend) loadAll(context.Context, string, time.Time) ([][]byte, error) {
	return nil, errUnreachable
}
func (failingBackend) purgeExpired(context.Context, time.Time) (int, error) {
	return 0, errUnreachable
}
func (failingBackend) close() error { return nil }

func TestPrimaryFailureDegradesTransparently(t *testing.T) {
	store := newStore(failingBackend{}, nil, time.Hour)
	ctx := context.Background()

	record := newRecord("j1", StatusProcessing)
	if err := store.Save(ctx, record); err != nil {
		t.Fatalf("Save must absorb primary failure: %v", err)
	}
	if !store.Degraded() {
		t.Fatal("store should report degraded mode")
	}

	fetched, err := store.Get(ctx, "j1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if fetched == nil || fetched.Status != StatusProcessing {
		t.Fatalf("fallback lost the record: %#v", fetched)
	}
}

func TestFallbackEquivalence(t *testing.T) {
	// The same call sequence must be observationally identical on the
	// SQLite primary and the in-process fallback.
	primary := newStore(openTestSQLite(t), nil, time.Hour)
	degraded := newStore(failingBackend{}, nil, time.Hour)
	ctx := context.Background()

	for _, store := range []*Store{primary, degraded} {
		seed(t, store,
			newRecord("a", StatusPending),
			newRecord("b", StatusCompleted),
			newRecord("c", StatusPending),
		)
		if _, err := store.Update(ctx, "a", func(r *JobRecord) { r.Status = StatusProcessing }); err != nil {
			t.Fatalf("Update failed: %v", err)
		}
		if err := store.Delete(ctx, "b"); err != nil {
			t.Fatalf("Delete failed: %v", err)
		}
	}

	for _, store := range []*Store{primary, degraded} {
		counts, err := store.Stats(ctx)
		if err != nil {
			t.Fatalf("Stats failed: %v", err)
		}
		if counts.Total != 2 || counts.Processing != 1 || counts.Pending != 1 {
			t.Fatalf("unexpected counts %+v", counts)
		}
		page, err := store.FindAll(ctx, ListOptions{SortBy: "jobId", Order: "asc"})
		if err != nil {
			t.Fatalf("FindAll failed: %v", err)
		}
		if len(page.Items) != 2 || page.Items[0].JobID != "a" || page.Items[1].JobID != "c" {
			t.Fatalf("unexpected listing %#v", page.Items)
		}
	}
}

func TestFindAllFiltersSortsAndPaginates(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	ctx := context.Background()

	base := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	for i, id := range []string{"j1", "j2", "j3", "j4", "j5"} {
		record := newRecord(id, StatusCompleted)
		if id == "j3" {
			record.Status = StatusFailed
		}
		record.CreatedAt = base.Add(time.Duration(i) * time.Minute)
		seed(t, store, record)
	}

	page, err := store.FindAll(ctx, ListOptions{Status: StatusCompleted, SortBy: "createdAt", Order: "asc", Page: 2, PageSize: 2})
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if page.Pagination.Total != 4 || page.Pagination.TotalPages != 2 {
		t.Fatalf("unexpected pagination %+v", page.Pagination)
	}
	if len(page.Items) != 2 || page.Items[0].JobID != "j4" || page.Items[1].JobID != "j5" {
		t.Fatalf("unexpected page %#v", page.Items)
	}
}

func TestFindAllPastLastPageIsEmpty(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	seed(t, store, newRecord("j1", StatusPending))

	page, err := store.FindAll(context.Background(), ListOptions{Page: 9, PageSize: 10})
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	if len(page.Items) != 0 || page.Pagination.Total != 1 {
		t.Fatalf("unexpected page %#v", page)
	}
}

func TestFindAllStableTieOrder(t *testing.T) {
	store := newStore(openTestSQLite(t), nil, time.Hour)
	ctx := context.Background()

	// Every record shares the same progress; ties must keep insertion order.
	for _, id := range []string{"z", "m", "a"} {
		seed(t, store, newRecord(id, StatusPending))
	}

	page, err := store.FindAll(ctx, ListOptions{SortBy: "progress", Order: "asc"})
	if err != nil {
		t.Fatalf("FindAll failed: %v", err)
	}
	got := []string{page.Items[0].JobID, page.Items[1].JobID, page.Items[2].JobID}
	want := []string{"z", "m", "a"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("tie order broken: got %v, want %v", got, want)
		}
	}
}

func TestStatusHelpers(t *testing.T) {
	if !StatusCompleted.Terminal() || !StatusCancelled.Terminal() {
		t.Fatal("terminal statuses misclassified")
	}
	if StatusUploading.Terminal() || !StatusUploading.Active() {
		t.Fatal("uploading misclassified")
	}
	if _, ok := ParseStatus("Processing"); !ok {
		t.Fatal("ParseStatus should normalize case")
	}
	if _, ok := ParseStatus("bogus"); ok {
		t.Fatal("ParseStatus accepted unknown status")
	}
}

func TestSetProgressClampsAndIsMonotonic(t *testing.T) {
	record := newRecord("j1", StatusProcessing)
	record.SetProgress(150)
	if record.Progress != 100 {
		t.Fatalf("expected clamp to 100, got %d", record.Progress)
	}
	record.SetProgress(20)
	if record.Progress != 100 {
		t.Fatal("progress must not move backwards within a stage")
	}
	record.BeginStage(StatusUploading)
	if record.Progress != 0 || record.Status != StatusUploading {
		t.Fatalf("BeginStage should reset progress, got %#v", record)
	}
}
