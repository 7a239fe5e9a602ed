package listing

import (
	"iter"

	"github.com/matst80/slask-harmonizer/pkg/types"
)

// Store is the boundary to the listing document store. The harmonization
// engine reads samples and batches from it and writes renamed documents
// back; it never owns the documents.
type Store interface {
	// Sample returns up to n documents for profiling.
	Sample(n int) ([]types.Document, error)
	// Count returns the total number of documents, used for progress
	// reporting.
	Count() (int, error)
	// Scan yields the store in batches of at most batchSize documents.
	// A non nil error ends the sequence.
	Scan(batchSize int) iter.Seq2[[]types.Document, error]
	// WriteBatch persists the given documents. Per document failures are
	// returned without aborting the rest of the batch; an unreachable
	// store is fatal and returned as types.ErrStoreUnavailable.
	WriteBatch(docs []types.Document) ([]types.DocumentError, error)
}

const DefaultBatchSize = 500
