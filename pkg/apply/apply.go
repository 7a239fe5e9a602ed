package apply

import (
	"context"
	"fmt"
	"log"
	"sync"

	"github.com/matst80/slask-harmonizer/pkg/listing"
	"github.com/matst80/slask-harmonizer/pkg/mapping"
	"github.com/matst80/slask-harmonizer/pkg/types"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	docsScanned = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskharmonizer_apply_scanned_total",
		Help: "The total number of documents scanned by apply runs",
	})
	docsRewritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskharmonizer_apply_rewritten_total",
		Help: "The total number of documents rewritten by apply runs",
	})
	docErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskharmonizer_apply_document_errors_total",
		Help: "The total number of per document rewrite failures",
	})
	applyRuns = promauto.NewCounter(prometheus.CounterOpts{
		Name: "slaskharmonizer_apply_runs_total",
		Help: "The total number of apply runs started",
	})
)

// ProgressSink receives the progress event stream of an apply job. For a
// given job id, Progress calls carry a non decreasing current value and
// exactly one terminal Completed or Error call follows.
type ProgressSink interface {
	Progress(jobId string, current, total int)
	Completed(jobId string, message string)
	Error(jobId string, message string)
}

// Applier rewrites listing documents per the active mapping set. It reads
// mapping sets and mutates documents; it owns neither.
type Applier struct {
	Listings  listing.Store
	Mappings  *mapping.Store
	Progress  ProgressSink
	BatchSize int

	mu       sync.Mutex
	inflight map[string]struct{}
}

func NewApplier(listings listing.Store, mappings *mapping.Store, progress ProgressSink) *Applier {
	if progress == nil {
		progress = NopProgress{}
	}
	return &Applier{
		Listings:  listings,
		Mappings:  mappings,
		Progress:  progress,
		BatchSize: listing.DefaultBatchSize,
		inflight:  map[string]struct{}{},
	}
}

func (a *Applier) acquire(setId string) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, running := a.inflight[setId]; running {
		return fmt.Errorf("%w: %s", types.ErrApplyInProgress, setId)
	}
	a.inflight[setId] = struct{}{}
	return nil
}

func (a *Applier) release(setId string) {
	a.mu.Lock()
	delete(a.inflight, setId)
	a.mu.Unlock()
}

// Apply streams the listing store in batches and rewrites each document per
// the mapping set's rules. Re-running over already rewritten documents is a
// no-op, so a partially applied run can always be resumed by retrying. Per
// document failures are collected and never abort the batch; only an
// unreachable store or a deactivation mid run ends it early, returning the
// partial result alongside the error.
func (a *Applier) Apply(ctx context.Context, setId string, jobId string) (types.ApplyResult, error) {
	result := types.ApplyResult{}
	if err := a.acquire(setId); err != nil {
		return result, err
	}
	defer a.release(setId)
	applyRuns.Inc()

	set, ok := a.Mappings.Get(setId)
	if !ok {
		return result, a.fail(jobId, fmt.Errorf("%w: %s", types.ErrNotFound, setId))
	}
	if !set.IsActive {
		return result, a.fail(jobId, fmt.Errorf("%w: %s", types.ErrMappingNoLongerActive, setId))
	}
	rules := set.Rules()

	total, err := a.Listings.Count()
	if err != nil {
		return result, a.fail(jobId, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, err))
	}

	batchSize := a.BatchSize
	if batchSize <= 0 {
		batchSize = listing.DefaultBatchSize
	}

	for batch, scanErr := range a.Listings.Scan(batchSize) {
		if scanErr != nil {
			return result, a.fail(jobId, fmt.Errorf("%w: %v", types.ErrStoreUnavailable, scanErr))
		}
		// Cancellation and staleness are only checked between batches;
		// a batch that started always finishes.
		if err := ctx.Err(); err != nil {
			return result, a.fail(jobId, err)
		}
		if active, hasActive := a.Mappings.Active(); !hasActive || active.Id != setId {
			return result, a.fail(jobId, fmt.Errorf("%w: %s", types.ErrMappingNoLongerActive, setId))
		}

		writes := make([]types.Document, 0, len(batch))
		for _, doc := range batch {
			result.Scanned++
			docsScanned.Inc()
			renamed, changed, renameErr := RenameFields(doc, rules)
			if renameErr != nil {
				docErr := types.DocumentError{Id: doc.Id, Err: renameErr.Error()}
				result.Errors = append(result.Errors, docErr)
				docErrors.Inc()
				continue
			}
			if changed {
				writes = append(writes, renamed)
			}
		}

		writeErrs, writeErr := a.Listings.WriteBatch(writes)
		failed := map[uint]struct{}{}
		for _, docErr := range writeErrs {
			result.Errors = append(result.Errors, docErr)
			failed[docErr.Id] = struct{}{}
			docErrors.Inc()
		}
		// An unwritable store ends the run; whatever was persisted in
		// earlier batches keeps its rewrite and a retry resumes safely.
		if writeErr != nil {
			return result, a.fail(jobId, writeErr)
		}
		for _, doc := range writes {
			if _, bad := failed[doc.Id]; !bad {
				result.Rewritten++
				docsRewritten.Inc()
			}
		}

		a.Progress.Progress(jobId, result.Scanned, total)
	}

	message := fmt.Sprintf("rewrote %d of %d documents", result.Rewritten, result.Scanned)
	if len(result.Errors) > 0 {
		message = fmt.Sprintf("%s, %d failed", message, len(result.Errors))
	}
	a.Progress.Completed(jobId, message)
	log.Printf("apply %s finished: %s", jobId, message)
	return result, nil
}

func (a *Applier) fail(jobId string, err error) error {
	a.Progress.Error(jobId, err.Error())
	return err
}

// RenameFields builds a renamed copy of the document, or reports no change
// when no rule fires. A rename that would land on a key the document
// already carries is rejected so a document is never half rewritten. The
// first rewrite snapshots the raw fields for provenance.
func RenameFields(doc types.Document, rules map[types.FieldName]types.FieldName) (types.Document, bool, error) {
	changed := false
	fields := make(map[string]any, len(doc.Fields))
	for key, value := range doc.Fields {
		target, hasRule := rules[types.FieldName(key)]
		if !hasRule || target.String() == key {
			fields[key] = value
			continue
		}
		if _, exists := doc.Fields[target.String()]; exists {
			return doc, false, fmt.Errorf("rename %s to %s collides with existing field", key, target)
		}
		if _, dup := fields[target.String()]; dup {
			return doc, false, fmt.Errorf("rename %s to %s collides with another rename", key, target)
		}
		fields[target.String()] = value
		changed = true
	}
	if !changed {
		return doc, false, nil
	}
	renamed := types.Document{Id: doc.Id, Fields: fields, Raw: doc.Raw}
	if renamed.Raw == nil {
		renamed.Raw = doc.CloneFields()
	}
	return renamed, true, nil
}
