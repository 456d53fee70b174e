package runs

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/mmrzaf/relgen/internal/domain"
)

type PostgresRepository struct {
	dsn string
	db  *sql.DB
}

func NewPostgresRepository(dsn string) *PostgresRepository {
	return &PostgresRepository{dsn: strings.TrimSpace(dsn)}
}

var postgresMigrations = []migration{
	{1, []string{`
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		label TEXT,
		workload_id TEXT NOT NULL,
		workload_name TEXT NOT NULL,
		workload_version TEXT,
		seed BIGINT NOT NULL,
		verify BOOLEAN NOT NULL DEFAULT FALSE,
		resolved_lens TEXT,
		execution_order TEXT,
		config_hash TEXT NOT NULL,
		status TEXT NOT NULL,
		started_at TIMESTAMPTZ NOT NULL,
		completed_at TIMESTAMPTZ,
		stats TEXT,
		error TEXT
	)`}},
	{2, []string{
		`ALTER TABLE runs ADD COLUMN IF NOT EXISTS progress_relations_done INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE runs ADD COLUMN IF NOT EXISTS progress_relations_total INTEGER NOT NULL DEFAULT 0`,
		`ALTER TABLE runs ADD COLUMN IF NOT EXISTS progress_tuples_generated BIGINT NOT NULL DEFAULT 0`,
		`ALTER TABLE runs ADD COLUMN IF NOT EXISTS progress_current_relation TEXT`,
	}},
	{3, []string{`
	CREATE TABLE IF NOT EXISTS run_logs (
		id BIGSERIAL PRIMARY KEY,
		run_id TEXT NOT NULL,
		created_at TIMESTAMPTZ NOT NULL,
		level TEXT NOT NULL,
		message TEXT NOT NULL
	)`,
		`CREATE INDEX IF NOT EXISTS idx_run_logs_run_time ON run_logs(run_id, id DESC)`,
	}},
}

func (r *PostgresRepository) Init() error {
	if r.dsn == "" {
		return fmt.Errorf("relgen db dsn is required")
	}
	db, err := sql.Open("postgres", r.dsn)
	if err != nil {
		return err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return err
	}
	r.db = db
	return r.applyMigrations()
}

func (r *PostgresRepository) DB() *sql.DB { return r.db }

func (r *PostgresRepository) applyMigrations() error {
	if _, err := r.db.Exec(`CREATE TABLE IF NOT EXISTS schema_migrations (version INTEGER PRIMARY KEY)`); err != nil {
		return err
	}
	var cur int
	if err := r.db.QueryRow(`SELECT COALESCE(MAX(version), 0) FROM schema_migrations`).Scan(&cur); err != nil {
		return err
	}

	for _, m := range postgresMigrations {
		if cur >= m.v {
			continue
		}
		for _, ddl := range m.ddl {
			if _, err := r.db.Exec(ddl); err != nil {
				return fmt.Errorf("migration %d failed: %w", m.v, err)
			}
		}
		if _, err := r.db.Exec(`INSERT INTO schema_migrations(version) VALUES ($1)`, m.v); err != nil {
			return err
		}
		cur = m.v
	}
	return nil
}

const postgresRunColumns = `id, label, workload_id, workload_name, workload_version,
	seed, verify, resolved_lens, execution_order, config_hash, status,
	started_at, completed_at, stats, error,
	progress_relations_done, progress_relations_total, progress_tuples_generated, progress_current_relation`

func (r *PostgresRepository) Create(run *domain.Run) error {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}

	_, err := r.db.Exec(`
	INSERT INTO runs (`+postgresRunColumns+`)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19)`,
		run.ID, run.Label, run.WorkloadID, run.WorkloadName, run.WorkloadVersion,
		run.Seed, run.Verify, nullableJSON(run.ResolvedLens), nullableJSON(run.ExecutionOrder), run.ConfigHash, run.Status,
		run.StartedAt, run.CompletedAt, nullableJSON(run.Stats), run.Error,
		run.ProgressRelationsDone, run.ProgressRelationsTotal, run.ProgressTuplesGenerated, run.ProgressCurrentRelation,
	)
	return err
}

func (r *PostgresRepository) Update(run *domain.Run) error {
	_, err := r.db.Exec(`
	UPDATE runs SET
		status = $1, completed_at = $2, stats = $3, error = $4
	WHERE id = $5`,
		run.Status, run.CompletedAt, nullableJSON(run.Stats), run.Error, run.ID,
	)
	return err
}

func (r *PostgresRepository) Get(id string) (*domain.Run, error) {
	run, err := scanPostgresRun(r.db.QueryRow(`SELECT `+postgresRunColumns+` FROM runs WHERE id = $1`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return run, err
}

func (r *PostgresRepository) List(limit int, status string) ([]*domain.Run, error) {
	if limit <= 0 {
		limit = 50
	}

	var (
		rows *sql.Rows
		err  error
	)
	if status != "" {
		rows, err = r.db.Query(`SELECT `+postgresRunColumns+`
		FROM runs
		WHERE status = $1
		ORDER BY started_at DESC
		LIMIT $2`, status, limit)
	} else {
		rows, err = r.db.Query(`SELECT `+postgresRunColumns+`
		FROM runs
		ORDER BY started_at DESC
		LIMIT $1`, limit)
	}
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.Run, 0)
	for rows.Next() {
		run, err := scanPostgresRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) UpdateStatus(id string, status domain.RunStatus, errMsg string, stats *domain.RunStats) error {
	now := sql.NullTime{}
	if status == domain.RunStatusSuccess || status == domain.RunStatusFailed {
		now = sql.NullTime{Time: time.Now().UTC(), Valid: true}
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
		SET status = $1, completed_at = $2, stats = COALESCE($3, stats), error = $4
		WHERE id = $5`,
		status, now, statsJSON, errMsg, id,
	)
	return err
}

func (r *PostgresRepository) UpdateProgress(id string, p Progress) error {
	_, err := r.db.Exec(`
		UPDATE runs
		SET progress_relations_done = $1, progress_relations_total = $2, progress_tuples_generated = $3, progress_current_relation = $4
		WHERE id = $5`,
		p.RelationsDone, p.RelationsTotal, p.TuplesGenerated, p.CurrentRelation, id,
	)
	return err
}

func (r *PostgresRepository) AppendRunLog(runID, level, message string) error {
	_, err := r.db.Exec(`
		INSERT INTO run_logs (run_id, created_at, level, message)
		VALUES ($1, $2, $3, $4)`,
		runID, time.Now().UTC(), level, message,
	)
	return err
}

func (r *PostgresRepository) ListRunLogs(runID string, limit int) ([]*domain.RunLog, error) {
	if limit <= 0 {
		limit = 200
	}
	rows, err := r.db.Query(`
		SELECT id, run_id, created_at, level, message
		FROM run_logs
		WHERE run_id = $1
		ORDER BY id DESC
		LIMIT $2`, runID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make([]*domain.RunLog, 0, limit)
	for rows.Next() {
		var rl domain.RunLog
		if err := rows.Scan(&rl.ID, &rl.RunID, &rl.CreatedAt, &rl.Level, &rl.Message); err != nil {
			return nil, err
		}
		out = append(out, &rl)
	}
	return out, rows.Err()
}

func (r *PostgresRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

func scanPostgresRun(s rowScanner) (*domain.Run, error) {
	var run domain.Run
	var label, version, lens, order, stats, errStr, current sql.NullString
	var completedAt sql.NullTime

	err := s.Scan(
		&run.ID, &label, &run.WorkloadID, &run.WorkloadName, &version,
		&run.Seed, &run.Verify, &lens, &order, &run.ConfigHash, &run.Status,
		&run.StartedAt, &completedAt, &stats, &errStr,
		&run.ProgressRelationsDone, &run.ProgressRelationsTotal, &run.ProgressTuplesGenerated, &current,
	)
	if err != nil {
		return nil, err
	}

	run.Label = label.String
	run.WorkloadVersion = version.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
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
