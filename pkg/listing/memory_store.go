package listing

import (
	"iter"
	"slices"
	"sync"

	"github.com/matst80/slask-harmonizer/pkg/types"
)

// MemoryStore is an in memory Store used in tests and local runs.
// FailWrites injects per document write failures by id; Unavailable makes
// every operation fail the way an unreachable store would, and
// WritesUnavailable only the write path.
type MemoryStore struct {
	mu                sync.RWMutex
	documents         map[uint]types.Document
	FailWrites        map[uint]string
	Unavailable       bool
	WritesUnavailable bool
}

func NewMemoryStore(docs ...types.Document) *MemoryStore {
	m := &MemoryStore{documents: map[uint]types.Document{}}
	for _, doc := range docs {
		m.documents[doc.Id] = doc
	}
	return m
}

func (m *MemoryStore) Get(id uint) (types.Document, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	doc, ok := m.documents[id]
	return doc, ok
}

func (m *MemoryStore) Sample(n int) ([]types.Document, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return nil, types.ErrStoreUnavailable
	}
	ids := m.sortedIds()
	if n > len(ids) {
		n = len(ids)
	}
	sample := make([]types.Document, 0, n)
	for _, id := range ids[:n] {
		sample = append(sample, m.documents[id])
	}
	return sample, nil
}

func (m *MemoryStore) Count() (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.Unavailable {
		return 0, types.ErrStoreUnavailable
	}
	return len(m.documents), nil
}

func (m *MemoryStore) Scan(batchSize int) iter.Seq2[[]types.Document, error] {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return func(yield func([]types.Document, error) bool) {
		m.mu.RLock()
		ids := m.sortedIds()
		m.mu.RUnlock()
		for start := 0; start < len(ids); start += batchSize {
			m.mu.RLock()
			if m.Unavailable {
				m.mu.RUnlock()
				yield(nil, types.ErrStoreUnavailable)
				return
			}
			end := min(start+batchSize, len(ids))
			batch := make([]types.Document, 0, end-start)
			for _, id := range ids[start:end] {
				if doc, ok := m.documents[id]; ok {
					batch = append(batch, doc)
				}
			}
			m.mu.RUnlock()
			if !yield(batch, nil) {
				return
			}
		}
	}
}

func (m *MemoryStore) WriteBatch(docs []types.Document) ([]types.DocumentError, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.Unavailable || m.WritesUnavailable {
		return nil, types.ErrStoreUnavailable
	}
	var errs []types.DocumentError
	for _, doc := range docs {
		if reason, fail := m.FailWrites[doc.Id]; fail {
			errs = append(errs, types.DocumentError{Id: doc.Id, Err: reason})
			continue
		}
		if _, ok := m.documents[doc.Id]; !ok {
			errs = append(errs, types.DocumentError{Id: doc.Id, Err: "unknown document"})
			continue
		}
		m.documents[doc.Id] = doc
	}
	return errs, nil
}

func (m *MemoryStore) sortedIds() []uint {
	ids := make([]uint, 0, len(m.documents))
	for id := range m.documents {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}
