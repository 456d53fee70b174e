package validation

import (
	"errors"
	"reflect"
	"testing"

	"github.com/mmrzaf/relgen/internal/domain"
	"github.com/mmrzaf/relgen/internal/registry"
)

func starWorkload() *domain.Workload {
	return &domain.Workload{
		ID:   "star",
		Name: "star-join",
		Relations: []domain.RelationSpec{
			{Name: "dim", Kind: domain.KindPrimaryKey, Len: 1000, Workers: 4},
			{Name: "fact", Kind: domain.KindFKFromPK, Len: 10000, References: "dim"},
			{Name: "skewed", Kind: domain.KindZipf, Len: 1000, MaxID: 100, Skew: 1},
			{Name: "bridge", Kind: domain.KindFKFromPK, Len: 500, References: "fact"},
		},
	}
}

func TestValidateWorkload(t *testing.T) {
	v := NewValidator(registry.DefaultDistributionRegistry())
	if err := v.ValidateWorkload(starWorkload()); err != nil {
		t.Fatalf("expected valid workload, got %v", err)
	}

	cases := map[string]func(w *domain.Workload){
		"missing name":       func(w *domain.Workload) { w.Name = "" },
		"bad id":             func(w *domain.Workload) { w.ID = "a/b" },
		"no relations":       func(w *domain.Workload) { w.Relations = nil },
		"duplicate relation": func(w *domain.Workload) { w.Relations[2].Name = "dim" },
		"bad relation name":  func(w *domain.Workload) { w.Relations[2].Name = "select" },
		"unknown kind":       func(w *domain.Workload) { w.Relations[2].Kind = "gaussian" },
		"missing kind":       func(w *domain.Workload) { w.Relations[2].Kind = "" },
		"missing reference":  func(w *domain.Workload) { w.Relations[1].References = "nope" },
		"self reference":     func(w *domain.Workload) { w.Relations[1].References = "fact" },
		"empty reference":    func(w *domain.Workload) { w.Relations[0].Len = 0 },
		"bad skew":           func(w *domain.Workload) { w.Relations[2].Skew = -1 },
		"cycle": func(w *domain.Workload) {
			w.Relations[0] = domain.RelationSpec{Name: "dim", Kind: domain.KindFKFromPK, Len: 10, References: "bridge"}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			w := starWorkload()
			mutate(w)
			if err := v.ValidateWorkload(w); err == nil {
				t.Fatal("expected validation error")
			}
		})
	}
}

func TestValidateWorkload_WrapsParamErrors(t *testing.T) {
	v := NewValidator(registry.DefaultDistributionRegistry())
	w := starWorkload()
	w.Relations[2].MaxID = 0
	err := v.ValidateWorkload(w)
	if !errors.Is(err, domain.ErrInvalidParameter) {
		t.Fatalf("expected ErrInvalidParameter, got %v", err)
	}
	var pe *domain.ParamError
	if !errors.As(err, &pe) || pe.Name != "max_id" {
		t.Fatalf("expected max_id ParamError, got %v", err)
	}
}

func TestTopologicalSort(t *testing.T) {
	order, err := TopologicalSort(starWorkload())
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"dim", "fact", "bridge", "skewed"}
	if !reflect.DeepEqual(order, want) {
		t.Fatalf("unexpected order %v, want %v", order, want)
	}

	w := starWorkload()
	w.Relations[0].Kind = domain.KindFKFromPK
	w.Relations[0].References = "bridge"
	if _, err := TopologicalSort(w); err == nil {
		t.Fatal("expected cycle error")
	}
}
