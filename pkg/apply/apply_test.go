package apply

import (
	"context"
	"errors"
	"path"
	"sync"
	"testing"

	"github.com/matst80/slask-harmonizer/pkg/listing"
	"github.com/matst80/slask-harmonizer/pkg/mapping"
	"github.com/matst80/slask-harmonizer/pkg/types"
)

// recordingProgress collects the event stream of a job. The optional
// OnProgress hook runs synchronously inside the apply loop, which the
// deactivation and concurrency tests use to interleave deterministically.
type recordingProgress struct {
	mu         sync.Mutex
	progress   []int
	completed  []string
	failed     []string
	OnProgress func(current int)
}

func (r *recordingProgress) Progress(jobId string, current, total int) {
	r.mu.Lock()
	r.progress = append(r.progress, current)
	hook := r.OnProgress
	r.mu.Unlock()
	if hook != nil {
		hook(current)
	}
}

func (r *recordingProgress) Completed(jobId string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.completed = append(r.completed, message)
}

func (r *recordingProgress) Error(jobId string, message string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failed = append(r.failed, message)
}

func (r *recordingProgress) terminals() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.completed) + len(r.failed)
}

func newTestMappings(t *testing.T) *mapping.Store {
	t.Helper()
	s, err := mapping.NewStore(path.Join(t.TempDir(), "mappings.json"))
	if err != nil {
		t.Fatalf("NewStore failed: %v", err)
	}
	return s
}

func activeCostToPrice(t *testing.T, mappings *mapping.Store) types.HarmonizationMapping {
	t.Helper()
	set, err := mappings.Create("vehicles", "", []types.FieldMapping{{Original: "cost", Target: "price"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if _, err := mappings.Activate(set.Id); err != nil {
		t.Fatalf("Activate failed: %v", err)
	}
	return set
}

func TestApplyRenamesAndIsIdempotent(t *testing.T) {
	store := listing.NewMemoryStore(
		types.Document{Id: 1, Fields: map[string]any{"cost": 100, "make": "Toyota"}},
		types.Document{Id: 2, Fields: map[string]any{"price": 200, "make": "Volvo"}},
	)
	mappings := newTestMappings(t)
	set := activeCostToPrice(t, mappings)
	applier := NewApplier(store, mappings, nil)

	result, err := applier.Apply(context.Background(), set.Id, "job-1")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if result.Scanned != 2 {
		t.Errorf("Expected 2 scanned but got %d", result.Scanned)
	}
	if result.Rewritten != 1 {
		t.Errorf("Expected 1 rewritten but got %d", result.Rewritten)
	}

	doc, _ := store.Get(1)
	if doc.Fields["price"] != 100 {
		t.Errorf("Expected price 100 but got %v", doc.Fields["price"])
	}
	if _, still := doc.Fields["cost"]; still {
		t.Error("Expected cost to be renamed away")
	}
	if doc.Fields["make"] != "Toyota" {
		t.Errorf("Expected make to pass through but got %v", doc.Fields["make"])
	}
	if doc.Raw["cost"] != 100 {
		t.Errorf("Expected the raw document to keep cost but got %v", doc.Raw)
	}

	// A second run over the already rewritten store is a no-op.
	again, err := applier.Apply(context.Background(), set.Id, "job-2")
	if err != nil {
		t.Fatalf("Second apply failed: %v", err)
	}
	if again.Rewritten != 0 {
		t.Errorf("Expected a no-op second apply but rewrote %d", again.Rewritten)
	}
	after, _ := store.Get(1)
	if after.Fields["price"] != 100 || len(after.Fields) != 2 {
		t.Errorf("Expected the document to be unchanged but got %v", after.Fields)
	}
}

func TestApplyCollectsDocumentErrors(t *testing.T) {
	store := listing.NewMemoryStore(
		types.Document{Id: 1, Fields: map[string]any{"cost": 100}},
		types.Document{Id: 2, Fields: map[string]any{"cost": 200}},
		types.Document{Id: 3, Fields: map[string]any{"cost": 300}},
	)
	store.FailWrites = map[uint]string{2: "write refused"}
	mappings := newTestMappings(t)
	set := activeCostToPrice(t, mappings)
	applier := NewApplier(store, mappings, nil)

	result, err := applier.Apply(context.Background(), set.Id, "job-1")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Id != 2 {
		t.Fatalf("Expected one error for document 2 but got %v", result.Errors)
	}
	if result.Rewritten != 2 {
		t.Errorf("Expected the other documents to be rewritten but got %d", result.Rewritten)
	}
}

func TestApplyRenameCollision(t *testing.T) {
	store := listing.NewMemoryStore(
		types.Document{Id: 1, Fields: map[string]any{"cost": 100, "price": 90}},
		types.Document{Id: 2, Fields: map[string]any{"cost": 200}},
	)
	mappings := newTestMappings(t)
	set := activeCostToPrice(t, mappings)
	applier := NewApplier(store, mappings, nil)

	result, err := applier.Apply(context.Background(), set.Id, "job-1")
	if err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(result.Errors) != 1 || result.Errors[0].Id != 1 {
		t.Fatalf("Expected a collision error for document 1 but got %v", result.Errors)
	}
	// The colliding document is left untouched.
	doc, _ := store.Get(1)
	if doc.Fields["cost"] != 100 || doc.Fields["price"] != 90 {
		t.Errorf("Expected document 1 untouched but got %v", doc.Fields)
	}
	if result.Rewritten != 1 {
		t.Errorf("Expected document 2 rewritten but got %d", result.Rewritten)
	}
}

func TestApplyFatalWhenWritesUnavailable(t *testing.T) {
	store := listing.NewMemoryStore(
		types.Document{Id: 1, Fields: map[string]any{"cost": 100}},
		types.Document{Id: 2, Fields: map[string]any{"cost": 200}},
	)
	store.WritesUnavailable = true
	mappings := newTestMappings(t)
	set := activeCostToPrice(t, mappings)
	progress := &recordingProgress{}
	applier := NewApplier(store, mappings, progress)

	result, err := applier.Apply(context.Background(), set.Id, "job-1")
	if !errors.Is(err, types.ErrStoreUnavailable) {
		t.Fatalf("Expected ErrStoreUnavailable but got %v", err)
	}
	if result.Rewritten != 0 {
		t.Errorf("Expected no documents reported rewritten but got %d", result.Rewritten)
	}
	if progress.terminals() != 1 || len(progress.failed) != 1 {
		t.Errorf("Expected exactly one terminal error event but got %d completed and %d failed",
			len(progress.completed), len(progress.failed))
	}
	// The store itself is untouched.
	doc, _ := store.Get(1)
	if _, renamed := doc.Fields["price"]; renamed {
		t.Errorf("Expected document 1 untouched but got %v", doc.Fields)
	}
}

func TestApplyAbortsWhenDeactivatedMidRun(t *testing.T) {
	docs := make([]types.Document, 0, 10)
	for i := 1; i <= 10; i++ {
		docs = append(docs, types.Document{Id: uint(i), Fields: map[string]any{"cost": i}})
	}
	store := listing.NewMemoryStore(docs...)
	mappings := newTestMappings(t)
	set := activeCostToPrice(t, mappings)

	progress := &recordingProgress{}
	progress.OnProgress = func(current int) {
		if current == 2 {
			if _, err := mappings.Deactivate(set.Id); err != nil {
				t.Errorf("Deactivate failed: %v", err)
			}
		}
	}
	applier := NewApplier(store, mappings, progress)
	applier.BatchSize = 2

	result, err := applier.Apply(context.Background(), set.Id, "job-1")
	if !errors.Is(err, types.ErrMappingNoLongerActive) {
		t.Fatalf("Expected ErrMappingNoLongerActive but got %v", err)
	}
	if result.Rewritten != 2 {
		t.Errorf("Expected the first batch to stay rewritten but got %d", result.Rewritten)
	}
	// Documents from the completed batch keep their rewrite.
	doc, _ := store.Get(1)
	if doc.Fields["price"] != 1 {
		t.Errorf("Expected document 1 to remain rewritten but got %v", doc.Fields)
	}
	doc, _ = store.Get(10)
	if _, renamed := doc.Fields["price"]; renamed {
		t.Error("Expected document 10 to be untouched after the abort")
	}
	if progress.terminals() != 1 || len(progress.failed) != 1 {
		t.Errorf("Expected exactly one terminal error event but got %d completed and %d failed",
			len(progress.completed), len(progress.failed))
	}
}

func TestApplyCancellationBetweenBatches(t *testing.T) {
	docs := make([]types.Document, 0, 10)
	for i := 1; i <= 10; i++ {
		docs = append(docs, types.Document{Id: uint(i), Fields: map[string]any{"cost": i}})
	}
	store := listing.NewMemoryStore(docs...)
	mappings := newTestMappings(t)
	set := activeCostToPrice(t, mappings)

	ctx, cancel := context.WithCancel(context.Background())
	progress := &recordingProgress{}
	progress.OnProgress = func(current int) {
		if current == 2 {
			cancel()
		}
	}
	applier := NewApplier(store, mappings, progress)
	applier.BatchSize = 2

	result, err := applier.Apply(ctx, set.Id, "job-1")
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Expected context.Canceled but got %v", err)
	}
	if result.Scanned != 2 {
		t.Errorf("Expected a partial result of 2 scanned but got %d", result.Scanned)
	}
	if progress.terminals() != 1 {
		t.Errorf("Expected exactly one terminal event but got %d", progress.terminals())
	}
}

func TestApplyRejectsConcurrentRunForSameSet(t *testing.T) {
	docs := make([]types.Document, 0, 4)
	for i := 1; i <= 4; i++ {
		docs = append(docs, types.Document{Id: uint(i), Fields: map[string]any{"cost": i}})
	}
	store := listing.NewMemoryStore(docs...)
	mappings := newTestMappings(t)
	set := activeCostToPrice(t, mappings)

	block := make(chan struct{})
	entered := make(chan struct{})
	progress := &recordingProgress{}
	once := sync.Once{}
	progress.OnProgress = func(int) {
		once.Do(func() {
			close(entered)
			<-block
		})
	}
	applier := NewApplier(store, mappings, progress)
	applier.BatchSize = 2

	done := make(chan error, 1)
	go func() {
		_, err := applier.Apply(context.Background(), set.Id, "job-1")
		done <- err
	}()
	<-entered

	_, err := applier.Apply(context.Background(), set.Id, "job-2")
	if !errors.Is(err, types.ErrApplyInProgress) {
		t.Errorf("Expected ErrApplyInProgress but got %v", err)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("First apply failed: %v", err)
	}
}

func TestApplyProgressMonotonicWithSingleTerminal(t *testing.T) {
	docs := make([]types.Document, 0, 9)
	for i := 1; i <= 9; i++ {
		docs = append(docs, types.Document{Id: uint(i), Fields: map[string]any{"cost": i}})
	}
	store := listing.NewMemoryStore(docs...)
	mappings := newTestMappings(t)
	set := activeCostToPrice(t, mappings)

	progress := &recordingProgress{}
	applier := NewApplier(store, mappings, progress)
	applier.BatchSize = 4

	if _, err := applier.Apply(context.Background(), set.Id, "job-1"); err != nil {
		t.Fatalf("Apply failed: %v", err)
	}
	if len(progress.progress) == 0 {
		t.Fatal("Expected progress events")
	}
	last := 0
	for _, current := range progress.progress {
		if current < last {
			t.Errorf("Expected non decreasing progress but got %v", progress.progress)
		}
		last = current
	}
	if last != 9 {
		t.Errorf("Expected final progress 9 but got %d", last)
	}
	if progress.terminals() != 1 || len(progress.completed) != 1 {
		t.Errorf("Expected exactly one completed event but got %d completed and %d failed",
			len(progress.completed), len(progress.failed))
	}
}

func TestApplyStaleRequestForInactiveSet(t *testing.T) {
	store := listing.NewMemoryStore(types.Document{Id: 1, Fields: map[string]any{"cost": 1}})
	mappings := newTestMappings(t)
	set, err := mappings.Create("vehicles", "", []types.FieldMapping{{Original: "cost", Target: "price"}})
	if err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	applier := NewApplier(store, mappings, nil)

	_, err = applier.Apply(context.Background(), set.Id, "job-1")
	if !errors.Is(err, types.ErrMappingNoLongerActive) {
		t.Errorf("Expected ErrMappingNoLongerActive but got %v", err)
	}
}
