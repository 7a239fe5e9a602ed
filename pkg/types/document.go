package types

import "fmt"

// Document is a raw listing record keyed by source specific field names.
// Raw keeps the original fields after the first rewrite so a mapping can be
// re-applied from provenance.
type Document struct {
	Id     uint           `json:"id"`
	Fields map[string]any `json:"fields"`
	Raw    map[string]any `json:"raw,omitempty"`
}

func (d *Document) CloneFields() map[string]any {
	fields := make(map[string]any, len(d.Fields))
	for k, v := range d.Fields {
		fields[k] = v
	}
	return fields
}

// DocumentError records a non fatal per document failure during apply.
type DocumentError struct {
	Id  uint   `json:"id"`
	Err string `json:"error"`
}

func (e DocumentError) Error() string {
	return fmt.Sprintf("document %d: %s", e.Id, e.Err)
}

// ApplyResult reports the outcome of one apply run. Errors holds the
// documents that failed without aborting the batch.
type ApplyResult struct {
	Scanned   int             `json:"documents_scanned"`
	Rewritten int             `json:"documents_rewritten"`
	Errors    []DocumentError `json:"errors,omitempty"`
}
