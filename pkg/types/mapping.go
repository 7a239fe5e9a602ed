package types

import "time"

// FieldMapping is a single rename rule. Rules are rename-only; value
// transforms would be a separate rule type.
type FieldMapping struct {
	Original FieldName `json:"original_field"`
	Target   FieldName `json:"target_field"`
}

// HarmonizationMapping is a named set of rename rules. At most one set is
// active across the whole store at any time.
type HarmonizationMapping struct {
	Id          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description,omitempty"`
	Mappings    []FieldMapping `json:"mappings"`
	IsActive    bool           `json:"is_active"`
	CreatedAt   time.Time      `json:"created_at"`
}

// Rules returns the rename rules keyed by original field.
func (m *HarmonizationMapping) Rules() map[FieldName]FieldName {
	rules := make(map[FieldName]FieldName, len(m.Mappings))
	for _, rule := range m.Mappings {
		rules[rule.Original] = rule.Target
	}
	return rules
}
