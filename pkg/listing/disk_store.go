package listing

import (
	"compress/gzip"
	"context"
	"encoding/gob"
	"fmt"
	"io"
	"iter"
	"log"
	"os"
	"path"
	"slices"
	"sync"

	"github.com/bytedance/sonic"
	"github.com/matst80/slask-harmonizer/pkg/types"
)

func init() {
	gob.Register(map[string]interface{}{})
	gob.Register([]interface{}(nil))
}

const documentsFile = "documents.gz"

// DiskStore keeps the listing documents in memory and persists them as a
// gzipped gob file in the data directory. Load happens at construction,
// Save on demand and from the shutdown hook.
type DiskStore struct {
	mu        sync.RWMutex
	directory string
	documents map[uint]types.Document
	closed    bool
}

func NewDiskStore(directory string) *DiskStore {
	d := &DiskStore{
		directory: directory,
		documents: map[uint]types.Document{},
	}
	if err := d.Load(); err != nil {
		if !os.IsNotExist(err) {
			log.Printf("Could not load documents: %v", err)
		}
	}
	return d
}

func (d *DiskStore) fileName() string {
	return path.Join(d.directory, documentsFile)
}

func (d *DiskStore) Load() error {
	file, err := os.Open(d.fileName())
	if err != nil {
		return err
	}
	defer file.Close()
	zipReader, err := gzip.NewReader(file)
	if err != nil {
		return err
	}
	defer zipReader.Close()

	docs := map[uint]types.Document{}
	if err := gob.NewDecoder(zipReader).Decode(&docs); err != nil {
		return err
	}
	d.mu.Lock()
	d.documents = docs
	d.mu.Unlock()
	log.Printf("Loaded %d documents from %s", len(docs), d.fileName())
	return nil
}

func (d *DiskStore) Save() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if err := os.MkdirAll(d.directory, 0775); err != nil {
		return err
	}
	file, err := os.Create(d.fileName())
	if err != nil {
		return err
	}
	defer file.Close()
	zipWriter := gzip.NewWriter(file)
	defer zipWriter.Close()
	return gob.NewEncoder(zipWriter).Encode(d.documents)
}

// SaveHook adapts Save to the graceful shutdown hook signature.
func (d *DiskStore) SaveHook(_ context.Context) error {
	return d.Save()
}

func (d *DiskStore) Close() {
	d.mu.Lock()
	d.closed = true
	d.mu.Unlock()
}

// Upsert adds or replaces documents, used by the scraper facing intake.
func (d *DiskStore) Upsert(docs ...types.Document) {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, doc := range docs {
		d.documents[doc.Id] = doc
	}
}

func (d *DiskStore) Sample(n int) ([]types.Document, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, types.ErrStoreUnavailable
	}
	ids := d.sortedIds()
	if n > len(ids) {
		n = len(ids)
	}
	sample := make([]types.Document, 0, n)
	for _, id := range ids[:n] {
		sample = append(sample, d.documents[id])
	}
	return sample, nil
}

func (d *DiskStore) Count() (int, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return 0, types.ErrStoreUnavailable
	}
	return len(d.documents), nil
}

// Scan yields stable batches in ascending id order. The id snapshot is
// taken once so documents written during the scan do not move around.
func (d *DiskStore) Scan(batchSize int) iter.Seq2[[]types.Document, error] {
	if batchSize <= 0 {
		batchSize = DefaultBatchSize
	}
	return func(yield func([]types.Document, error) bool) {
		d.mu.RLock()
		ids := d.sortedIds()
		closed := d.closed
		d.mu.RUnlock()
		if closed {
			yield(nil, types.ErrStoreUnavailable)
			return
		}
		for start := 0; start < len(ids); start += batchSize {
			end := min(start+batchSize, len(ids))
			batch := make([]types.Document, 0, end-start)
			d.mu.RLock()
			if d.closed {
				d.mu.RUnlock()
				yield(nil, types.ErrStoreUnavailable)
				return
			}
			for _, id := range ids[start:end] {
				if doc, ok := d.documents[id]; ok {
					batch = append(batch, doc)
				}
			}
			d.mu.RUnlock()
			if !yield(batch, nil) {
				return
			}
		}
	}
}

func (d *DiskStore) WriteBatch(docs []types.Document) ([]types.DocumentError, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil, types.ErrStoreUnavailable
	}
	var errs []types.DocumentError
	for _, doc := range docs {
		if _, ok := d.documents[doc.Id]; !ok {
			errs = append(errs, types.DocumentError{Id: doc.Id, Err: "unknown document"})
			continue
		}
		d.documents[doc.Id] = doc
	}
	return errs, nil
}

func (d *DiskStore) sortedIds() []uint {
	ids := make([]uint, 0, len(d.documents))
	for id := range d.documents {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// ExportJSON streams every document as one JSON line, in id order.
func (d *DiskStore) ExportJSON(w io.Writer) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	for _, id := range d.sortedIds() {
		data, err := sonic.Marshal(d.documents[id])
		if err != nil {
			return fmt.Errorf("encode document %d: %w", id, err)
		}
		if _, err := w.Write(append(data, '\n')); err != nil {
			return err
		}
	}
	return nil
}

// ImportJSON reads newline separated documents, the format the scraper
// emits, and upserts them.
func (d *DiskStore) ImportJSON(r io.Reader) (int, error) {
	decoder := sonic.ConfigDefault.NewDecoder(r)
	count := 0
	for {
		var doc types.Document
		if err := decoder.Decode(&doc); err != nil {
			if err == io.EOF {
				return count, nil
			}
			return count, err
		}
		d.Upsert(doc)
		count++
	}
}
