package types

import (
	"errors"
	"fmt"
	"strings"
)

// FieldName is a validated field identifier. Lookups keyed by FieldName
// return an explicit (value, ok) pair, never a silent zero value.
type FieldName string

func NewFieldName(name string) (FieldName, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", errors.New("empty field name")
	}
	return FieldName(trimmed), nil
}

func (f FieldName) String() string {
	return string(f)
}

type FieldType string

const (
	NumberType   = FieldType("number")
	CategoryType = FieldType("category")
	BoolType     = FieldType("bool")
	TextType     = FieldType("text")
	UnknownType  = FieldType("unknown")
)

func (t FieldType) String() string {
	return string(t)
}

// FieldProfile summarizes one field over a document sample. Produced by a
// profiling run and never mutated afterwards; the next run supersedes it.
type FieldProfile struct {
	Field         FieldName `json:"field"`
	Type          FieldType `json:"type"`
	Examples      []string  `json:"examples"`
	ObservedCount int       `json:"observedCount"`
}

// FieldCluster groups fields that likely describe the same concept.
// Scores holds each similar field's score against CanonicalField.
type FieldCluster struct {
	Id             int                     `json:"id"`
	CanonicalField FieldName               `json:"canonicalField"`
	SimilarFields  []FieldName             `json:"similarFields"`
	Scores         map[FieldName]float64   `json:"similarityScores"`
	Types          map[FieldName]FieldType `json:"fieldTypes"`
	Patterns       map[FieldName][]string  `json:"patterns"`
	SuggestedName  string                  `json:"suggestedName,omitempty"`
}

// Members returns the canonical field followed by the similar fields.
func (c *FieldCluster) Members() []FieldName {
	members := make([]FieldName, 0, len(c.SimilarFields)+1)
	members = append(members, c.CanonicalField)
	members = append(members, c.SimilarFields...)
	return members
}

// ScoreFor returns the similarity score of a member against the canonical
// field. The canonical field itself scores 1.
func (c *FieldCluster) ScoreFor(field FieldName) (float64, bool) {
	if field == c.CanonicalField {
		return 1, true
	}
	score, ok := c.Scores[field]
	return score, ok
}

func (c *FieldCluster) TypeOf(field FieldName) (FieldType, bool) {
	t, ok := c.Types[field]
	return t, ok
}

func (t FieldType) Validate() error {
	switch t {
	case NumberType, CategoryType, BoolType, TextType, UnknownType:
		return nil
	}
	return fmt.Errorf("unknown field type %q", string(t))
}
