package domain

import (
	"encoding/json"
	"time"
)

// Workload describes a set of related relations generated together.
type Workload struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Version     string         `json:"version" yaml:"version"`
	Description string         `json:"description,omitempty" yaml:"description,omitempty"`
	Seed        *uint32        `json:"seed,omitempty" yaml:"seed,omitempty"`
	Verify      bool           `json:"verify,omitempty" yaml:"verify,omitempty"`
	Relations   []RelationSpec `json:"relations" yaml:"relations"`
}

// RelationSpec describes one relation of a workload.
type RelationSpec struct {
	Name       string  `json:"name" yaml:"name"`
	Kind       Kind    `json:"kind" yaml:"kind"`
	Len        int     `json:"len" yaml:"len"`
	MaxID      int     `json:"max_id,omitempty" yaml:"max_id,omitempty"`
	Skew       float64 `json:"skew,omitempty" yaml:"skew,omitempty"`
	References string  `json:"references,omitempty" yaml:"references,omitempty"`
	Workers    int     `json:"workers,omitempty" yaml:"workers,omitempty"`
	Remainder  string  `json:"remainder,omitempty" yaml:"remainder,omitempty"`
	Payload    string  `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Kind names a key distribution.
type Kind string

const (
	KindNonUnique  Kind = "nonunique"
	KindPrimaryKey Kind = "primary_key"
	KindForeignKey Kind = "foreign_key"
	KindFKFromPK   Kind = "fk_from_pk"
	KindZipf       Kind = "zipf"
)

const (
	RemainderUniform = "uniform"
	RemainderBlocks  = "blocks"
)

const (
	PayloadRowID = "row_id"
	PayloadKey   = "key"
)

type Run struct {
	ID              string          `json:"id"`
	Label           string          `json:"label"`
	WorkloadID      string          `json:"workload_id"`
	WorkloadName    string          `json:"workload_name"`
	WorkloadVersion string          `json:"workload_version"`
	Seed            int64           `json:"seed"`
	Verify          bool            `json:"verify"`
	ResolvedLens    json.RawMessage `json:"resolved_lens,omitempty"`
	ExecutionOrder  json.RawMessage `json:"execution_order,omitempty"`
	ConfigHash      string          `json:"config_hash"`
	Status          RunStatus       `json:"status"`
	StartedAt       time.Time       `json:"started_at"`
	CompletedAt     *time.Time      `json:"completed_at,omitempty"`
	Stats           json.RawMessage `json:"stats,omitempty"`
	Error           string          `json:"error,omitempty"`

	ProgressRelationsDone   int    `json:"progress_relations_done"`
	ProgressRelationsTotal  int    `json:"progress_relations_total"`
	ProgressTuplesGenerated int64  `json:"progress_tuples_generated"`
	ProgressCurrentRelation string `json:"progress_current_relation,omitempty"`
}

type RunLog struct {
	ID        int64     `json:"id"`
	RunID     string    `json:"run_id"`
	CreatedAt time.Time `json:"created_at"`
	Level     string    `json:"level"`
	Message   string    `json:"message"`
}

type RunStatus string

const (
	RunStatusPending RunStatus = "pending"
	RunStatusRunning RunStatus = "running"
	RunStatusSuccess RunStatus = "success"
	RunStatusFailed  RunStatus = "failed"
)

type RunStats struct {
	RelationsGenerated int                `json:"relations_generated"`
	TotalTuples        int64              `json:"total_tuples"`
	TotalBytes         int64              `json:"total_bytes"`
	DurationSeconds    float64            `json:"duration_seconds"`
	RelationStats      []RelationRunStats `json:"relation_stats"`
}

// RelationRunStats summarizes one generated relation.
type RelationRunStats struct {
	Name            string  `json:"name"`
	Kind            Kind    `json:"kind"`
	Tuples          int     `json:"tuples"`
	Bytes           int64   `json:"bytes"`
	Workers         int     `json:"workers"`
	DistinctKeys    uint64  `json:"distinct_keys"`
	MinKey          int64   `json:"min_key"`
	MaxKey          int64   `json:"max_key"`
	Checksum        string  `json:"checksum"`
	DurationSeconds float64 `json:"duration_seconds"`

	// Set only for verified runs.
	Violations  *uint64  `json:"violations,omitempty"`
	TopRankFreq []int    `json:"top_rank_freq,omitempty"`
	ChiSquare   *float64 `json:"chi_square,omitempty"`
}

type RunRequest struct {
	WorkloadID   string         `json:"workload_id,omitempty"`
	Workload     *Workload      `json:"workload,omitempty"`
	Seed         *uint32        `json:"seed,omitempty"`
	LenOverrides map[string]int `json:"len_overrides,omitempty"`
	Verify       *bool          `json:"verify,omitempty"`
}
