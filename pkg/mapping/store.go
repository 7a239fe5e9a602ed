package mapping

import (
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/matst80/slask-harmonizer/pkg/common/jsoncompat"
	"github.com/matst80/slask-harmonizer/pkg/types"
)

// Store owns the mapping set lifecycle and the single active set
// invariant. All mutations happen under one mutex and are persisted to the
// JSON file before they are visible to readers.
type Store struct {
	mu   sync.RWMutex
	path string
	sets []types.HarmonizationMapping
}

type storeFile struct {
	MappingSets []types.HarmonizationMapping `json:"mapping_sets"`
}

// UpdatePatch carries the partial fields of an update. Nil means leave
// unchanged.
type UpdatePatch struct {
	Name        *string               `json:"name,omitempty"`
	Description *string               `json:"description,omitempty"`
	Mappings    *[]types.FieldMapping `json:"mappings,omitempty"`
}

func NewStore(path string) (*Store, error) {
	s := &Store{path: path}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return s, nil
		}
		return nil, err
	}
	file := storeFile{}
	if err := jsoncompat.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("read mapping sets from %s: %w", path, err)
	}
	s.sets = file.MappingSets
	return s, nil
}

// persist writes the sets to disk. Callers hold the write lock and only
// commit the in memory change after persist succeeds.
func (s *Store) persist(sets []types.HarmonizationMapping) error {
	data, err := jsoncompat.Marshal(storeFile{MappingSets: sets})
	if err != nil {
		return err
	}
	return os.WriteFile(s.path, data, 0664)
}

func validateMappings(mappings []types.FieldMapping) error {
	originals := map[types.FieldName]struct{}{}
	targets := map[types.FieldName]types.FieldName{}
	for _, m := range mappings {
		if _, err := types.NewFieldName(m.Original.String()); err != nil {
			return fmt.Errorf("invalid original field: %w", err)
		}
		if _, err := types.NewFieldName(m.Target.String()); err != nil {
			return fmt.Errorf("invalid target field: %w", err)
		}
		if _, dup := originals[m.Original]; dup {
			return fmt.Errorf("%w: %s", types.ErrDuplicateOriginal, m.Original)
		}
		originals[m.Original] = struct{}{}
		if other, dup := targets[m.Target]; dup {
			return fmt.Errorf("%w: %s and %s both map to %s", types.ErrDuplicateTarget, other, m.Original, m.Target)
		}
		targets[m.Target] = m.Original
	}
	return nil
}

// Create adds a new mapping set in the inactive draft state.
func (s *Store) Create(name, description string, mappings []types.FieldMapping) (types.HarmonizationMapping, error) {
	if name == "" {
		return types.HarmonizationMapping{}, types.ErrNameRequired
	}
	if err := validateMappings(mappings); err != nil {
		return types.HarmonizationMapping{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, set := range s.sets {
		if set.Name == name {
			return types.HarmonizationMapping{}, fmt.Errorf("%w: %s", types.ErrDuplicateName, name)
		}
	}
	set := types.HarmonizationMapping{
		Id:          uuid.NewString(),
		Name:        name,
		Description: description,
		Mappings:    mappings,
		IsActive:    false,
		CreatedAt:   time.Now().UTC(),
	}
	next := append(copySets(s.sets), set)
	if err := s.persist(next); err != nil {
		return types.HarmonizationMapping{}, err
	}
	s.sets = next
	return set, nil
}

// Update applies a partial patch. On any validation failure the stored set
// is left untouched.
func (s *Store) Update(id string, patch UpdatePatch) (types.HarmonizationMapping, error) {
	if patch.Mappings != nil {
		if err := validateMappings(*patch.Mappings); err != nil {
			return types.HarmonizationMapping{}, err
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return types.HarmonizationMapping{}, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	next := copySets(s.sets)
	set := &next[idx]
	if patch.Name != nil && *patch.Name != set.Name {
		for _, other := range s.sets {
			if other.Id != id && other.Name == *patch.Name {
				return types.HarmonizationMapping{}, fmt.Errorf("%w: %s", types.ErrDuplicateName, *patch.Name)
			}
		}
		set.Name = *patch.Name
	}
	if patch.Description != nil {
		set.Description = *patch.Description
	}
	if patch.Mappings != nil {
		set.Mappings = *patch.Mappings
	}
	if err := s.persist(next); err != nil {
		return types.HarmonizationMapping{}, err
	}
	s.sets = next
	return *set, nil
}

// Activate atomically makes the target set the single active one,
// deactivating a previously active set in the same transition. Readers
// never observe two active sets.
func (s *Store) Activate(id string) (types.HarmonizationMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return types.HarmonizationMapping{}, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	next := copySets(s.sets)
	for i := range next {
		next[i].IsActive = i == idx
	}
	if err := s.persist(next); err != nil {
		return types.HarmonizationMapping{}, err
	}
	s.sets = next
	return next[idx], nil
}

// Deactivate clears the active flag. Already applied documents stay
// rewritten.
func (s *Store) Deactivate(id string) (types.HarmonizationMapping, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return types.HarmonizationMapping{}, fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	next := copySets(s.sets)
	next[idx].IsActive = false
	if err := s.persist(next); err != nil {
		return types.HarmonizationMapping{}, err
	}
	s.sets = next
	return next[idx], nil
}

// Delete removes an inactive set. Active sets must be deactivated first.
func (s *Store) Delete(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return fmt.Errorf("%w: %s", types.ErrNotFound, id)
	}
	if s.sets[idx].IsActive {
		return fmt.Errorf("%w: %s", types.ErrActiveMappingDelete, id)
	}
	next := append(copySets(s.sets[:idx]), s.sets[idx+1:]...)
	if err := s.persist(next); err != nil {
		return err
	}
	s.sets = next
	return nil
}

func (s *Store) Get(id string) (types.HarmonizationMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	idx := s.indexOf(id)
	if idx < 0 {
		return types.HarmonizationMapping{}, false
	}
	return s.sets[idx], true
}

func (s *Store) List() []types.HarmonizationMapping {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return copySets(s.sets)
}

// Active returns the currently active mapping set, if any.
func (s *Store) Active() (types.HarmonizationMapping, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, set := range s.sets {
		if set.IsActive {
			return set, true
		}
	}
	return types.HarmonizationMapping{}, false
}

func (s *Store) indexOf(id string) int {
	for i, set := range s.sets {
		if set.Id == id {
			return i
		}
	}
	return -1
}

func copySets(sets []types.HarmonizationMapping) []types.HarmonizationMapping {
	out := make([]types.HarmonizationMapping, len(sets))
	copy(out, sets)
	return out
}
