package mapping

import (
	"errors"
	"path"
	"testing"

	"github.com/matst80/slask-harmonizer/pkg/types"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := NewStore(path.Join(t.TempDir(), "mappings.json"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func TestCreateStartsInactive(t *testing.T) {
	s := newTestStore(t)
	set, err := s.Create("vehicles", "", []types.FieldMapping{{Original: "cost", Target: "price"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if set.IsActive {
		t.Error("Expected a new mapping set to start inactive")
	}
	if set.Id == "" {
		t.Error("Expected a generated id")
	}
}

func TestCreateRequiresName(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("", "", nil)
	if !errors.Is(err, types.ErrNameRequired) {
		t.Errorf("Expected ErrNameRequired but got %v", err)
	}
}

func TestCreateDuplicateName(t *testing.T) {
	s := newTestStore(t)
	if _, err := s.Create("vehicles", "", nil); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	_, err := s.Create("vehicles", "", nil)
	if !errors.Is(err, types.ErrDuplicateName) {
		t.Errorf("Expected ErrDuplicateName but got %v", err)
	}
}

func TestCreateDuplicateTarget(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Create("vehicles", "", []types.FieldMapping{
		{Original: "cost", Target: "price"},
		{Original: "amount", Target: "price"},
	})
	if !errors.Is(err, types.ErrDuplicateTarget) {
		t.Errorf("Expected ErrDuplicateTarget but got %v", err)
	}
}

func TestUpdateDuplicateTargetLeavesSetUnchanged(t *testing.T) {
	s := newTestStore(t)
	set, err := s.Create("vehicles", "", []types.FieldMapping{{Original: "cost", Target: "price"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	bad := []types.FieldMapping{
		{Original: "cost", Target: "price"},
		{Original: "amount", Target: "price"},
	}
	_, err = s.Update(set.Id, UpdatePatch{Mappings: &bad})
	if !errors.Is(err, types.ErrDuplicateTarget) {
		t.Fatalf("Expected ErrDuplicateTarget but got %v", err)
	}
	unchanged, ok := s.Get(set.Id)
	if !ok {
		t.Fatal("Expected the mapping set to still exist")
	}
	if len(unchanged.Mappings) != 1 {
		t.Errorf("Expected the stored mappings to be unchanged but got %v", unchanged.Mappings)
	}
}

func TestUpdateUnknownId(t *testing.T) {
	s := newTestStore(t)
	name := "renamed"
	_, err := s.Update("missing", UpdatePatch{Name: &name})
	if !errors.Is(err, types.ErrNotFound) {
		t.Errorf("Expected ErrNotFound but got %v", err)
	}
}

func TestActivateSwitchesActiveSet(t *testing.T) {
	s := newTestStore(t)
	x, _ := s.Create("x", "", nil)
	y, _ := s.Create("y", "", nil)
	if _, err := s.Activate(x.Id); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	if _, err := s.Activate(y.Id); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	active := 0
	for _, set := range s.List() {
		if set.IsActive {
			active++
			if set.Id != y.Id {
				t.Errorf("Expected %s to be active but got %s", y.Id, set.Id)
			}
		}
	}
	if active != 1 {
		t.Errorf("Expected exactly one active set but got %d", active)
	}
}

func TestDeleteActiveSetFails(t *testing.T) {
	s := newTestStore(t)
	set, _ := s.Create("vehicles", "", nil)
	if _, err := s.Activate(set.Id); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	err := s.Delete(set.Id)
	if !errors.Is(err, types.ErrActiveMappingDelete) {
		t.Errorf("Expected ErrActiveMappingDelete but got %v", err)
	}
	got, ok := s.Get(set.Id)
	if !ok || !got.IsActive {
		t.Error("Expected the set to remain present and active")
	}
}

func TestDeleteAfterDeactivate(t *testing.T) {
	s := newTestStore(t)
	set, _ := s.Create("vehicles", "", nil)
	s.Activate(set.Id)
	if _, err := s.Deactivate(set.Id); err != nil {
		t.Fatalf("Deactivate failed: %v", err)
	}
	if err := s.Delete(set.Id); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, ok := s.Get(set.Id); ok {
		t.Error("Expected the set to be gone")
	}
}

func TestStoreSurvivesReload(t *testing.T) {
	file := path.Join(t.TempDir(), "mappings.json")
	s, err := NewStore(file)
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	set, _ := s.Create("vehicles", "imported", []types.FieldMapping{{Original: "cost", Target: "price"}})
	s.Activate(set.Id)

	reloaded, err := NewStore(file)
	if err != nil {
		t.Fatalf("Reload failed: %v", err)
	}
	got, ok := reloaded.Get(set.Id)
	if !ok {
		t.Fatal("Expected the set to survive a reload")
	}
	if !got.IsActive {
		t.Error("Expected the active flag to survive a reload")
	}
	if len(got.Mappings) != 1 || got.Mappings[0].Target != "price" {
		t.Errorf("Expected the mappings to survive a reload but got %v", got.Mappings)
	}
	active, ok := reloaded.Active()
	if !ok || active.Id != set.Id {
		t.Error("Expected exactly the activated set to be active after reload")
	}
}
