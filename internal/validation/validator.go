package validation

import (
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/registry"
)

type Validator struct {
	distRegistry *registry.DistributionRegistry
}

func NewValidator(distRegistry *registry.DistributionRegistry) *Validator {
	return &Validator{distRegistry: distRegistry}
}

// Relation names must be simple identifiers: they key run statistics, CLI
// overrides and file lookups.
var (
	identRe       = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)
	reservedWords = map[string]struct{}{
		"add": {}, "all": {}, "alter": {}, "and": {}, "any": {}, "as": {},
		"asc": {}, "between": {}, "by": {}, "case": {}, "check": {},
		"column": {}, "constraint": {}, "create": {}, "cross": {}, "current_date": {},
		"current_time": {}, "current_timestamp": {}, "database": {}, "default": {}, "delete": {},
		"desc": {}, "distinct": {}, "do": {}, "drop": {}, "else": {},
		"end": {}, "except": {}, "exists": {}, "false": {}, "for": {},
		"foreign": {}, "from": {}, "full": {}, "grant": {}, "group": {},
		"having": {}, "in": {}, "index": {}, "inner": {}, "insert": {},
		"intersect": {}, "into": {}, "is": {}, "join": {}, "key": {},
		"left": {}, "like": {}, "limit": {}, "natural": {}, "not": {},
		"null": {}, "offset": {}, "on": {}, "or": {}, "order": {},
		"outer": {}, "primary": {}, "references": {}, "returning": {}, "revoke": {},
		"right": {}, "schema": {}, "select": {}, "set": {}, "table": {},
		"then": {}, "to": {}, "true": {}, "truncate": {}, "union": {},
		"unique": {}, "update": {}, "user": {}, "using": {}, "values": {},
		"view": {}, "when": {}, "where": {}, "with": {},
	}
)

func IsValidIdentifier(s string) bool {
	s = strings.TrimSpace(s)
	if s == "" {
		return false
	}
	if !identRe.MatchString(s) {
		return false
	}
	if _, ok := reservedWords[strings.ToLower(s)]; ok {
		return false
	}
	return true
}

func (v *Validator) ValidateWorkload(w *domain.Workload) error {
	if w.Name == "" {
		return errors.New("workload name is required")
	}
	if w.ID != "" && !IsValidIdentifier(w.ID) {
		return fmt.Errorf("invalid workload id: %s", w.ID)
	}

	if len(w.Relations) == 0 {
		return errors.New("workload must have at least one relation")
	}

	names := make(map[string]bool)
	for _, rel := range w.Relations {
		if err := v.validateRelation(&rel, names); err != nil {
			return fmt.Errorf("relation '%s': %w", rel.Name, err)
		}
	}

	if err := v.validateDependencies(w); err != nil {
		return fmt.Errorf("dependency validation failed: %w", err)
	}

	return nil
}

func (v *Validator) validateRelation(rel *domain.RelationSpec, names map[string]bool) error {
	if rel.Name == "" {
		return errors.New("relation name is required")
	}
	if !IsValidIdentifier(rel.Name) {
		return fmt.Errorf("invalid relation identifier: %s", rel.Name)
	}

	if names[rel.Name] {
		return fmt.Errorf("duplicate relation name: %s", rel.Name)
	}
	names[rel.Name] = true

	if rel.Kind == "" {
		return errors.New("relation kind is required")
	}

	b, err := v.distRegistry.Get(rel.Kind)
	if err != nil {
		return fmt.Errorf("unknown relation kind: %s", rel.Kind)
	}

	if err := b.Validate(*rel); err != nil {
		return fmt.Errorf("distribution validation failed: %w", err)
	}

	return nil
}

func (v *Validator) validateDependencies(w *domain.Workload) error {
	byName := make(map[string]*domain.RelationSpec)
	for i := range w.Relations {
		byName[w.Relations[i].Name] = &w.Relations[i]
	}

	for _, rel := range w.Relations {
		if rel.References == "" {
			continue
		}
		ref, ok := byName[rel.References]
		if !ok {
			return fmt.Errorf("relation '%s': referenced relation '%s' not found", rel.Name, rel.References)
		}
		if ref.Name == rel.Name {
			return fmt.Errorf("relation '%s' references itself", rel.Name)
		}
		if ref.Len == 0 {
			return fmt.Errorf("relation '%s': referenced relation '%s' is empty", rel.Name, rel.References)
		}
	}

	if _, err := TopologicalSort(w); err != nil {
		return err
	}
	return nil
}

func (v *Validator) ValidateRunRequest(req *domain.RunRequest) error {
	hasWorkloadID := req.WorkloadID != ""
	hasWorkload := req.Workload != nil

	if !hasWorkloadID && !hasWorkload {
		return errors.New("either workload_id or workload must be provided")
	}

	if hasWorkloadID && hasWorkload {
		return errors.New("only one of workload_id or workload must be provided")
	}

	if hasWorkloadID && !IsValidIdentifier(req.WorkloadID) {
		return fmt.Errorf("invalid workload_id: %s", req.WorkloadID)
	}

	for name, n := range req.LenOverrides {
		if !IsValidIdentifier(name) {
			return fmt.Errorf("invalid relation name in len_overrides: %s", name)
		}
		if n < 0 {
			return fmt.Errorf("len_overrides[%s] must be >= 0, got %d", name, n)
		}
	}

	if req.Workload != nil {
		if err := v.ValidateWorkload(req.Workload); err != nil {
			return fmt.Errorf("workload validation failed: %w", err)
		}
	}

	return nil
}

// ApplyLenOverrides returns a copy of w with relation lengths replaced. Every
// override must name a relation of w.
func ApplyLenOverrides(w *domain.Workload, overrides map[string]int) (*domain.Workload, error) {
	out := *w
	out.Relations = append([]domain.RelationSpec(nil), w.Relations...)

	known := make(map[string]int, len(out.Relations))
	for i, rel := range out.Relations {
		known[rel.Name] = i
	}
	for name, n := range overrides {
		i, ok := known[name]
		if !ok {
			return nil, fmt.Errorf("len_overrides: unknown relation '%s'", name)
		}
		out.Relations[i].Len = n
	}
	return &out, nil
}

// TopologicalSort orders relations so every relation comes after the one it
// references. Ties are broken by name.
func TopologicalSort(w *domain.Workload) ([]string, error) {
	graph := make(map[string][]string) // referenced -> referencing
	inDegree := make(map[string]int)

	for _, rel := range w.Relations {
		if _, ok := inDegree[rel.Name]; !ok {
			inDegree[rel.Name] = 0
		}
		if rel.References != "" {
			graph[rel.References] = append(graph[rel.References], rel.Name)
			inDegree[rel.Name]++
		}
		if _, ok := graph[rel.Name]; !ok {
			graph[rel.Name] = []string{}
		}
	}

	queue := make([]string, 0)
	for name, degree := range inDegree {
		if degree == 0 {
			queue = append(queue, name)
		}
	}
	sort.Strings(queue)

	result := make([]string, 0)
	for len(queue) > 0 {
		node := queue[0]
		queue = queue[1:]
		result = append(result, node)

		for _, dependent := range graph[node] {
			inDegree[dependent]--
			if inDegree[dependent] == 0 {
				queue = append(queue, dependent)
			}
		}
		sort.Strings(queue)
	}

	if len(result) != len(w.Relations) {
		return nil, errors.New("cycle detected in relation dependencies")
	}

	return result, nil
}
