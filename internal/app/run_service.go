package app

import (
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/go-faker/faker/v4"
	"github.com/google/uuid"
	"github.com/mmrzaf/relgen"
	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/exec"
	"github.com/mmrzaf/relgen/internal/hashing"
	"github.com/mmrzaf/relgen/internal/infra/repos/runs"
	"github.com/mmrzaf/relgen/internal/infra/repos/workloads"
	"github.com/mmrzaf/relgen/internal/logging"
	"github.com/mmrzaf/relgen/internal/registry"
	"github.com/mmrzaf/relgen/internal/validation"
)

var (
	ErrRunNotActive = errors.New("run is not active")
	ErrShuttingDown = errors.New("run service is shutting down")
)

type RunService struct {
	workloadRepo   workloads.Repository
	runRepo        runs.Repository
	validator      *validation.Validator
	executor       *exec.Executor
	logger         *logging.Logger
	defaultWorkers int

	mu      sync.Mutex
	cancels map[string]context.CancelFunc
	closed  bool
	wg      sync.WaitGroup
}

func NewRunService(
	workloadRepo workloads.Repository,
	runRepo runs.Repository,
	distRegistry *registry.DistributionRegistry,
	alloc *relgen.Allocator,
	logger *logging.Logger,
	defaultWorkers int,
) *RunService {
	if logger == nil {
		logger = logging.Nop()
	}
	return &RunService{
		workloadRepo:   workloadRepo,
		runRepo:        runRepo,
		validator:      validation.NewValidator(distRegistry),
		executor:       exec.NewExecutor(distRegistry, alloc, logger),
		logger:         logger.WithComponent("runs"),
		defaultWorkers: defaultWorkers,
		cancels:        make(map[string]context.CancelFunc),
	}
}

// plan is a resolved run request, ready to execute.
type plan struct {
	run      *domain.Run
	workload *domain.Workload
	seed     uint32
	verify   bool
}

func (s *RunService) prepare(req *domain.RunRequest) (*plan, error) {
	if err := s.validator.ValidateRunRequest(req); err != nil {
		return nil, fmt.Errorf("invalid run request: %w", err)
	}

	var w *domain.Workload
	if req.WorkloadID != "" {
		loaded, err := s.workloadRepo.Get(req.WorkloadID)
		if err != nil {
			return nil, fmt.Errorf("failed to load workload: %w", err)
		}
		w = loaded
	} else {
		w = req.Workload
	}

	w, err := validation.ApplyLenOverrides(w, req.LenOverrides)
	if err != nil {
		return nil, err
	}
	if err := s.validator.ValidateWorkload(w); err != nil {
		return nil, fmt.Errorf("workload validation failed: %w", err)
	}
	order, err := validation.TopologicalSort(w)
	if err != nil {
		return nil, err
	}

	var seed uint32
	switch {
	case req.Seed != nil:
		seed = *req.Seed
	case w.Seed != nil:
		seed = *w.Seed
	default:
		seed = generateSeed()
	}
	verify := w.Verify
	if req.Verify != nil {
		verify = *req.Verify
	}

	lens := make(map[string]int, len(w.Relations))
	for _, rel := range w.Relations {
		lens[rel.Name] = rel.Len
	}
	configHash, err := hashing.HashRunConfig(w, lens, int64(seed), verify)
	if err != nil {
		return nil, fmt.Errorf("failed to hash run config: %w", err)
	}
	lensJSON, err := json.Marshal(lens)
	if err != nil {
		return nil, err
	}
	orderJSON, err := json.Marshal(order)
	if err != nil {
		return nil, err
	}

	run := &domain.Run{
		ID:                     uuid.NewString(),
		Label:                  runLabel(),
		WorkloadID:             w.ID,
		WorkloadName:           w.Name,
		WorkloadVersion:        w.Version,
		Seed:                   int64(seed),
		Verify:                 verify,
		ResolvedLens:           lensJSON,
		ExecutionOrder:         orderJSON,
		ConfigHash:             configHash,
		Status:                 domain.RunStatusRunning,
		StartedAt:              time.Now().UTC(),
		ProgressRelationsTotal: len(order),
	}
	if err := s.runRepo.Create(run); err != nil {
		return nil, fmt.Errorf("failed to create run: %w", err)
	}
	return &plan{run: run, workload: w, seed: seed, verify: verify}, nil
}

// StartRun records a new run and generates it in the background. The
// returned run is in the running state.
func (s *RunService) StartRun(req *domain.RunRequest) (*domain.Run, error) {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return nil, ErrShuttingDown
	}

	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		cancel()
		if uerr := s.runRepo.UpdateStatus(p.run.ID, domain.RunStatusFailed, ErrShuttingDown.Error(), nil); uerr != nil {
			s.logger.Error("Failed to update run %s: %v", p.run.ID, uerr)
		}
		return nil, ErrShuttingDown
	}
	s.cancels[p.run.ID] = cancel
	s.wg.Add(1)
	s.mu.Unlock()

	s.logger.Info("Starting run %s (%s): workload=%s, seed=%d", p.run.ID, p.run.Label, p.workload.ID, p.seed)

	run := *p.run
	go func() {
		defer s.wg.Done()
		defer func() {
			s.mu.Lock()
			delete(s.cancels, p.run.ID)
			s.mu.Unlock()
			cancel()
		}()
		_, _ = s.execute(ctx, p)
	}()

	return &run, nil
}

// RunSync records a new run and generates it before returning. The returned
// run carries the final status; a failed generation is reported both in the
// run and as the error.
func (s *RunService) RunSync(ctx context.Context, req *domain.RunRequest) (*domain.Run, error) {
	p, err := s.prepare(req)
	if err != nil {
		return nil, err
	}
	s.logger.Info("Starting run %s (%s): workload=%s, seed=%d", p.run.ID, p.run.Label, p.workload.ID, p.seed)
	return s.execute(ctx, p)
}

func (s *RunService) execute(ctx context.Context, p *plan) (*domain.Run, error) {
	run := p.run
	s.appendLog(run.ID, "info", fmt.Sprintf("run started: workload=%s seed=%d verify=%t", p.workload.ID, p.seed, p.verify))

	stats, err := s.executor.Execute(ctx, p.workload, exec.Options{
		Seed:           p.seed,
		Verify:         p.verify,
		DefaultWorkers: s.defaultWorkers,
		OnProgress: func(pr exec.Progress) {
			if err := s.runRepo.UpdateProgress(run.ID, runs.Progress(pr)); err != nil {
				s.logger.Warn("Failed to update progress for run %s: %v", run.ID, err)
			}
			if pr.CurrentRelation != "" {
				s.appendLog(run.ID, "info", fmt.Sprintf("generating relation %s (%d/%d)",
					pr.CurrentRelation, pr.RelationsDone+1, pr.RelationsTotal))
			}
		},
	})

	now := time.Now().UTC()
	run.CompletedAt = &now
	if err != nil {
		s.logger.Error("Run %s failed: %v", run.ID, err)
		s.appendLog(run.ID, "error", err.Error())
		run.Status = domain.RunStatusFailed
		run.Error = err.Error()
		if uerr := s.runRepo.UpdateStatus(run.ID, run.Status, run.Error, nil); uerr != nil {
			s.logger.Error("Failed to update run %s: %v", run.ID, uerr)
		}
		return run, err
	}

	statsJSON, _ := json.Marshal(stats)
	run.Stats = statsJSON
	run.Status = domain.RunStatusSuccess
	run.ProgressRelationsDone = stats.RelationsGenerated
	run.ProgressTuplesGenerated = stats.TotalTuples
	if err := s.runRepo.UpdateStatus(run.ID, run.Status, "", stats); err != nil {
		s.logger.Error("Failed to update run %s: %v", run.ID, err)
	}
	s.appendLog(run.ID, "info", fmt.Sprintf("run completed: %d relations, %d tuples", stats.RelationsGenerated, stats.TotalTuples))

	s.logger.Info("Run %s completed: %d relations, %d total tuples, %.2fs",
		run.ID, stats.RelationsGenerated, stats.TotalTuples, stats.DurationSeconds)
	return run, nil
}

func (s *RunService) appendLog(runID, level, msg string) {
	if err := s.runRepo.AppendRunLog(runID, level, msg); err != nil {
		s.logger.Warn("Failed to append log for run %s: %v", runID, err)
	}
}

// CancelRun stops a background run between relations.
func (s *RunService) CancelRun(id string) error {
	s.mu.Lock()
	cancel, ok := s.cancels[id]
	s.mu.Unlock()
	if !ok {
		return ErrRunNotActive
	}
	cancel()
	return nil
}

// Wait blocks until every background run has finished.
func (s *RunService) Wait() {
	s.wg.Wait()
}

// Shutdown cancels all background runs and waits for them. StartRun fails
// with ErrShuttingDown from then on.
func (s *RunService) Shutdown() {
	s.mu.Lock()
	s.closed = true
	for _, cancel := range s.cancels {
		cancel()
	}
	s.mu.Unlock()
	s.wg.Wait()
}

func (s *RunService) GetRun(id string) (*domain.Run, error) {
	return s.runRepo.Get(id)
}

func (s *RunService) ListRuns(limit int, status string) ([]*domain.Run, error) {
	return s.runRepo.List(limit, status)
}

// ListRunsSince is ListRuns restricted to runs started at or after since.
func (s *RunService) ListRunsSince(limit int, status string, since time.Time) ([]*domain.Run, error) {
	list, err := s.runRepo.List(limit, status)
	if err != nil {
		return nil, err
	}
	out := list[:0]
	for _, r := range list {
		if !r.StartedAt.Before(since) {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *RunService) ListRunLogs(runID string, limit int) ([]*domain.RunLog, error) {
	if _, err := s.runRepo.Get(runID); err != nil {
		return nil, err
	}
	return s.runRepo.ListRunLogs(runID, limit)
}

func (s *RunService) ListWorkloads() ([]*domain.Workload, error) {
	return s.workloadRepo.List()
}

func (s *RunService) GetWorkload(id string) (*domain.Workload, error) {
	return s.workloadRepo.Get(id)
}

// ValidateWorkload checks w without generating it.
func (s *RunService) ValidateWorkload(w *domain.Workload) error {
	return s.validator.ValidateWorkload(w)
}

func runLabel() string {
	return faker.Word() + "-" + faker.Word()
}

func generateSeed() uint32 {
	var b [4]byte
	_, _ = rand.Read(b[:])
	return binary.LittleEndian.Uint32(b[:])
}
