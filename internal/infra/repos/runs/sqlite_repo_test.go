package runs

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/mmrzaf/relgen/internal/domain"
)

func TestInitCreatesParentDirectory(t *testing.T) {
	t.Parallel()

	dbPath := filepath.Join(t.TempDir(), "nested", "deeper", "runs.db")
	repo := NewSQLiteRepository(dbPath)

	if err := repo.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	if repo.DB() == nil {
		t.Fatal("expected db handle to be initialized")
	}
	t.Cleanup(func() {
		_ = repo.DB().Close()
	})
}

func newTestRepo(t *testing.T) *SQLiteRepository {
	t.Helper()
	repo := NewSQLiteRepository(filepath.Join(t.TempDir(), "runs.db"))
	if err := repo.Init(); err != nil {
		t.Fatalf("init failed: %v", err)
	}
	t.Cleanup(func() { _ = repo.Close() })
	return repo
}

func TestInitIsIdempotent(t *testing.T) {
	t.Parallel()

	path := filepath.Join(t.TempDir(), "runs.db")
	for range 2 {
		repo := NewSQLiteRepository(path)
		if err := repo.Init(); err != nil {
			t.Fatalf("init failed: %v", err)
		}
		_ = repo.Close()
	}
}

func TestRunLifecycle(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	run := &domain.Run{
		Label:          "brisk-otter",
		WorkloadID:     "star",
		WorkloadName:   "star-join",
		Seed:           42,
		Verify:         true,
		ResolvedLens:   json.RawMessage(`{"dim":10}`),
		ExecutionOrder: json.RawMessage(`["dim"]`),
		ConfigHash:     "abc",
		Status:         domain.RunStatusRunning,
		StartedAt:      time.Now().UTC(),
	}
	if err := repo.Create(run); err != nil {
		t.Fatal(err)
	}
	if run.ID == "" {
		t.Fatal("expected generated id")
	}

	if err := repo.UpdateProgress(run.ID, Progress{RelationsDone: 1, RelationsTotal: 2, TuplesGenerated: 10, CurrentRelation: "fact"}); err != nil {
		t.Fatal(err)
	}
	stats := &domain.RunStats{RelationsGenerated: 2, TotalTuples: 110}
	if err := repo.UpdateStatus(run.ID, domain.RunStatusSuccess, "", stats); err != nil {
		t.Fatal(err)
	}

	got, err := repo.Get(run.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Status != domain.RunStatusSuccess || got.CompletedAt == nil {
		t.Fatalf("unexpected status: %+v", got)
	}
	if got.Label != "brisk-otter" || !got.Verify || got.Seed != 42 {
		t.Fatalf("unexpected run header: %+v", got)
	}
	if got.ProgressCurrentRelation != "fact" || got.ProgressTuplesGenerated != 10 {
		t.Fatalf("unexpected progress: %+v", got)
	}
	if string(got.ResolvedLens) != `{"dim":10}` {
		t.Fatalf("unexpected resolved lens %s", got.ResolvedLens)
	}
	var gotStats domain.RunStats
	if err := json.Unmarshal(got.Stats, &gotStats); err != nil {
		t.Fatal(err)
	}
	if gotStats.TotalTuples != 110 {
		t.Fatalf("unexpected stats %+v", gotStats)
	}

	if _, err := repo.Get("missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func TestListOrdersNewestFirstAndFilters(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	base := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	for i, status := range []domain.RunStatus{domain.RunStatusSuccess, domain.RunStatusFailed, domain.RunStatusSuccess} {
		run := &domain.Run{
			WorkloadID:   "w",
			WorkloadName: "w",
			ConfigHash:   "h",
			Status:       status,
			StartedAt:    base.Add(time.Duration(i) * 500 * time.Millisecond),
		}
		if err := repo.Create(run); err != nil {
			t.Fatal(err)
		}
	}

	all, err := repo.List(0, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 runs, got %d", len(all))
	}
	for i := 1; i < len(all); i++ {
		if all[i].StartedAt.After(all[i-1].StartedAt) {
			t.Fatalf("runs not newest first: %v then %v", all[i-1].StartedAt, all[i].StartedAt)
		}
	}

	ok, err := repo.List(1, string(domain.RunStatusSuccess))
	if err != nil {
		t.Fatal(err)
	}
	if len(ok) != 1 || !ok[0].StartedAt.Equal(base.Add(time.Second)) {
		t.Fatalf("unexpected filtered list: %+v", ok)
	}
}

func TestRunLogs(t *testing.T) {
	t.Parallel()
	repo := newTestRepo(t)

	for _, msg := range []string{"first", "second", "third"} {
		if err := repo.AppendRunLog("r1", "info", msg); err != nil {
			t.Fatal(err)
		}
	}
	if err := repo.AppendRunLog("r2", "error", "other"); err != nil {
		t.Fatal(err)
	}

	logs, err := repo.ListRunLogs("r1", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 || logs[0].Message != "third" || logs[1].Message != "second" {
		t.Fatalf("unexpected logs: %+v", logs)
	}
	if logs[0].CreatedAt.IsZero() {
		t.Fatal("expected created_at to be parsed")
	}
}
