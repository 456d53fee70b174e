package workloads

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/mmrzaf/relgen/internal/domain"
	"gopkg.in/yaml.v3"
)

var ErrNotFound = errors.New("workload not found")

type Repository interface {
	List() ([]*domain.Workload, error)
	Get(id string) (*domain.Workload, error)
	GetByPath(path string) (*domain.Workload, error)
}

type FileRepository struct {
	baseDir string
}

func NewFileRepository(baseDir string) *FileRepository {
	return &FileRepository{baseDir: baseDir}
}

// List loads every workload file in the base directory, sorted by ID. Files
// that fail to parse are skipped.
func (r *FileRepository) List() ([]*domain.Workload, error) {
	if _, err := os.Stat(r.baseDir); os.IsNotExist(err) {
		return []*domain.Workload{}, nil
	}

	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		return nil, err
	}

	workloads := make([]*domain.Workload, 0)
	for _, entry := range entries {
		if entry.IsDir() || !isWorkloadFile(entry.Name()) {
			continue
		}

		w, err := LoadFile(filepath.Join(r.baseDir, entry.Name()))
		if err != nil {
			continue
		}
		workloads = append(workloads, w)
	}

	sort.Slice(workloads, func(i, j int) bool { return workloads[i].ID < workloads[j].ID })
	return workloads, nil
}

func (r *FileRepository) Get(id string) (*domain.Workload, error) {
	workloads, err := r.List()
	if err != nil {
		return nil, err
	}

	for _, w := range workloads {
		if w.ID == id || w.Name == id {
			return w, nil
		}
	}

	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

// GetByPath loads a workload file that lies inside the base directory.
// Relative paths are resolved against the base directory.
func (r *FileRepository) GetByPath(path string) (*domain.Workload, error) {
	base, err := filepath.Abs(r.baseDir)
	if err != nil {
		return nil, err
	}
	target := path
	if !filepath.IsAbs(target) {
		target = filepath.Join(base, target)
	}
	target = filepath.Clean(target)

	rel, err := filepath.Rel(base, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return nil, fmt.Errorf("workload path %q is outside %s", path, r.baseDir)
	}
	return LoadFile(target)
}

// LoadFile reads one YAML or JSON workload file. Unknown fields are errors.
// A workload without an ID takes the file name without extension.
func LoadFile(path string) (*domain.Workload, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var w domain.Workload
	if filepath.Ext(path) == ".json" {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.DisallowUnknownFields()
		err = dec.Decode(&w)
	} else {
		dec := yaml.NewDecoder(bytes.NewReader(data))
		dec.KnownFields(true)
		err = dec.Decode(&w)
	}
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if w.ID == "" {
		w.ID = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}

	return &w, nil
}

func isWorkloadFile(name string) bool {
	switch filepath.Ext(name) {
	case ".yaml", ".yml", ".json":
		return true
	default:
		return false
	}
}
