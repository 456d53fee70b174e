package runs

import (
	"errors"

	"github.com/mmrzaf/relgen/internal/domain"
)

var ErrNotFound = errors.New("run not found")

// Progress is the in-flight position of a run.
type Progress struct {
	RelationsDone   int
	RelationsTotal  int
	TuplesGenerated int64
	CurrentRelation string
}

// Repository stores run metadata and progress for the relgen control plane
// DB. Tuple data is never stored.
type Repository interface {
	Init() error
	Close() error
	Create(run *domain.Run) error
	Update(run *domain.Run) error
	Get(id string) (*domain.Run, error)
	List(limit int, status string) ([]*domain.Run, error)
	UpdateStatus(id string, status domain.RunStatus, errMsg string, stats *domain.RunStats) error
	UpdateProgress(id string, p Progress) error
	AppendRunLog(runID, level, message string) error
	ListRunLogs(runID string, limit int) ([]*domain.RunLog, error)
}

type migration struct {
	v   int
	ddl []string
}

func nullableJSON(b []byte) any {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}
