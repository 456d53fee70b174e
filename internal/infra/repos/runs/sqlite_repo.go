package runs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/mmrzaf/relgen/internal/domain"
)

// Fixed width so that text order is time order.
const sqliteTimeLayout = "2006-01-02T15:04:05.000000000Z07:00"

type SQLiteRepository struct {
	dbPath string
	db     *sql.DB
}

func NewSQLiteRepository(dbPath string) *SQLiteRepository {
	return &SQLiteRepository{dbPath: dbPath}
}

var sqliteMigrations = []migration{
	{1, []string{`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT,
		workload_id TEXT NOT NULL,
		workload_name TEXT NOT NULL,
		workload_version TEXT,
		seed INTEGER NOT NULL,
		verify INTEGER NOT NULL DEFAULT 0,
		resolved_lens TEXT,
		execution_order TEXT,
		config_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TEXT NOT NULL,
		completed_at TEXT,
		stats TEXT,
		error TEXT
	)`}},
	{2, []string{
		`ALTER TABLE runs ADD COLUMN progress_relations_done INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE runs ADD COLUMN progress_relations_total INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE runs ADD COLUMN progress_tuples_generated INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE runs ADD COLUMN progress_current_relation TEXT`,
	}},
	{3, []string{`
	CREATE TABLE IF NOT EXISTS run_logs (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		run_id TEXT NOT NULL,
		created_at TEXT NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_run_logs_run ON run_logs(run_id, id DESC)`,
	}},
}

// Init opens the database, creating its parent directory, and applies
// pending migrations.
func (r *SQLiteRepository) Init() error {
	if dir := filepath.Dir(r.dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create runs db directory: %w", err)
		}
	}
	db, err := sql.Open("sqlite3", r.dbPath+"?_busy_timeout=5000&_journal_mode=WAL")
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(1)
	r.db = db
	return r.applyMigrations()
}

func (r *SQLiteRepository) DB() *sql.DB { return r.db }

func (r *SQLiteRepository) applyMigrations() error {
	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	var cur int
	if err := r.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&cur); err != nil {
		return err
	}

	for _, m := range sqliteMigrations {
		if cur >= m.v {
			continue
		}
		for _, ddl := range m.ddl {
			if _, err := r.db.Exec(ddl); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.v, err)
			}
		}
		if _, err := r.db.Exec(`INSERT INTO schema_migrations(version) VALUES (?)`, m.v); err != nil {
			return err
		}
		cur = m.v
	}
	return nil
}

const sqliteRunColumns = `id, label, workload_id, workload_name, workload_version,
	seed, verify, resolved_lens, execution_order, config_hash, status,
	started_at, completed_at, stats, error,
	progress_relations_done, progress_relations_total, progress_tuples_generated, progress_current_relation`

func (r *SQLiteRepository) Create(run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC().Format(sqliteTimeLayout)
	}

	_, err := r.db.Exec(`
		INSERT INTO runs (`+sqliteRunColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.Label, run.WorkloadID, run.WorkloadName, run.WorkloadVersion,
		run.Seed, run.Verify, nullableJSON(run.ResolvedLens), nullableJSON(run.ExecutionOrder), run.ConfigHash, run.Status,
		run.StartedAt.UTC().Format(sqliteTimeLayout), completedAt, nullableJSON(run.Stats), run.Error,
		run.ProgressRelationsDone, run.ProgressRelationsTotal, run.ProgressTuplesGenerated, run.ProgressCurrentRelation,
	)
	return err
}

func (r *SQLiteRepository) Update(run *domain.Run) error {
	var completedAt any
	if run.CompletedAt != nil {
		completedAt = run.CompletedAt.UTC().Format(sqliteTimeLayout)
	}

	_, err := r.db.Exec(`
		UPDATE runs SET
			status = ?, completed_at = ?, stats = ?, error = ?
		WHERE id = ?`,
		run.Status, completedAt, nullableJSON(run.Stats), run.Error, run.ID,
	)
	return err
}

func (r *SQLiteRepository) Get(id string) (*domain.Run, error) {
	run, err := scanSQLiteRun(r.db.QueryRow(`SELECT `+sqliteRunColumns+` FROM runs WHERE id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

func (r *SQLiteRepository) List(limit int, status string) ([]*domain.Run, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs`

	args := make([]any, 0)
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, status)
	}

	query += " ORDER BY started_at DESC"

	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := r.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	runs := make([]*domain.Run, 0)
	for rows.Next() {
		run, err := scanSQLiteRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}

	return runs, rows.Err()
}

func (r *SQLiteRepository) UpdateStatus(id string, status domain.RunStatus, errMsg string, stats *domain.RunStats) error {
	var completedAt any
	if status == domain.RunStatusSuccess || status == domain.RunStatusFailed {
		completedAt = time.Now().UTC().Format(sqliteTimeLayout)
	}

	var statsJSON any
	if stats != nil {
		b, err := json.Marshal(stats)
		if err != nil {
			return err
		}
		statsJSON = string(b)
	}

	_, err := r.db.Exec(`
		UPDATE runs
		SET status = ?, completed_at = ?, stats = COALESCE(?, stats), error = ?
		WHERE id = ?`,
		status, completedAt, statsJSON, errMsg, id,
	)
	return err
}

func (r *SQLiteRepository) UpdateProgress(id string, p Progress) error {
	_, err := r.db.Exec(`
		UPDATE runs
		SET progress_relations_done = ?, progress_relations_total = ?, progress_tuples_generated = ?, progress_current_relation = ?
		WHERE id = ?`,
		p.RelationsDone, p.RelationsTotal, p.TuplesGenerated, p.CurrentRelation, id,
	)
	return err
}

func (r *SQLiteRepository) AppendRunLog(runID, level, message string) error {
	_, err := r.db.Exec(`
		INSERT INTO run_logs (run_id, created_at, level, message)
		VALUES (?, ?, ?, ?)`,
		runID, time.Now().UTC().Format(sqliteTimeLayout), level, message,
	)
	return err
}

func (r *SQLiteRepository) ListRunLogs(runID string, limit int) ([]*domain.RunLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(`
		SELECT id, run_id, created_at, level, message
		FROM run_logs
		WHERE run_id = ?
		ORDER BY id DESC
		LIMIT ?`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.RunLog, 0)
	for rows.Next() {
		var rl domain.RunLog
		var createdAt string
		if err := rows.Scan(&rl.ID, &rl.RunID, &createdAt, &rl.Level, &rl.Message); err != nil {
			return nil, err
		}
		rl.CreatedAt, _ = time.Parse(sqliteTimeLayout, createdAt)
		out = append(out, &rl)
	}
	return out, rows.Err()
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSQLiteRun(s rowScanner) (*domain.Run, error) {
	var run domain.Run
	var label, version, lens, order, stats, errStr, current sql.NullString
	var startedAt string
	var completedAt sql.NullString

	err := s.Scan(
		&run.ID, &label, &run.WorkloadID, &run.WorkloadName, &version,
		&run.Seed, &run.Verify, &lens, &order, &run.ConfigHash, &run.Status,
		&startedAt, &completedAt, &stats, &errStr,
		&run.ProgressRelationsDone, &run.ProgressRelationsTotal, &run.ProgressTuplesGenerated, &current,
	)
	if err != nil {
		return nil, err
	}

	run.Label = label.String
	run.WorkloadVersion = version.String
	run.StartedAt, _ = time.Parse(sqliteTimeLayout, startedAt)
	if completedAt.Valid {
		t, _ := time.Parse(sqliteTimeLayout, completedAt.String)
		run.CompletedAt = &t
	}
	if lens.Valid {
		run.ResolvedLens = json.RawMessage(lens.String)
	}
	if order.Valid {
		run.ExecutionOrder = json.RawMessage(order.String)
	}
	if stats.Valid {
		run.Stats = json.RawMessage(stats.String)
	}
	run.Error = errStr.String
	run.ProgressCurrentRelation = current.String

	return &run, nil
}
