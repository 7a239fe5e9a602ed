package profile

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/matst80/slask-harmonizer/pkg/types"
)

const (
	// Fields with at most this many distinct values are treated as
	// categorical regardless of sample size.
	CategoryDistinctLimit = 20
	// Fields whose distinct/sample ratio stays at or below this are
	// categorical too.
	CategoryDistinctRatio = 0.1
)

type fieldStats struct {
	name       types.FieldName
	observed   int
	distinct   map[string]struct{}
	examples   []string
	allNumeric bool
	allBoolean bool
}

// Profile scans a document sample and returns one profile per observed
// field. The sample is not modified; profiles are immutable snapshots.
func Profile(sample []types.Document, maxExamples int) (map[types.FieldName]types.FieldProfile, error) {
	if len(sample) == 0 {
		return nil, types.ErrEmptySample
	}
	if maxExamples <= 0 {
		maxExamples = 5
	}

	stats := map[types.FieldName]*fieldStats{}
	for _, doc := range sample {
		for key, value := range doc.Fields {
			name, err := types.NewFieldName(key)
			if err != nil {
				continue
			}
			s, ok := stats[name]
			if !ok {
				s = &fieldStats{
					name:       name,
					distinct:   map[string]struct{}{},
					allNumeric: true,
					allBoolean: true,
				}
				stats[name] = s
			}
			if value == nil {
				// Null only fields stay at zero observations and come out
				// as unknown instead of silently defaulting to text.
				continue
			}
			s.observe(value, maxExamples)
		}
	}

	profiles := make(map[types.FieldName]types.FieldProfile, len(stats))
	for name, s := range stats {
		profiles[name] = types.FieldProfile{
			Field:         name,
			Type:          s.inferType(len(sample)),
			Examples:      s.examples,
			ObservedCount: s.observed,
		}
	}
	return profiles, nil
}

func (s *fieldStats) observe(value any, maxExamples int) {
	s.observed++
	text := stringify(value)
	if _, seen := s.distinct[text]; !seen {
		s.distinct[text] = struct{}{}
		if len(s.examples) < maxExamples {
			s.examples = append(s.examples, text)
		}
	}
	if s.allNumeric && !isNumeric(value) {
		s.allNumeric = false
	}
	if s.allBoolean && !isBooleanLike(value) {
		s.allBoolean = false
	}
}

// inferType follows a fixed policy: all numeric wins, then boolean
// literals, then low cardinality, otherwise free text.
func (s *fieldStats) inferType(sampleSize int) types.FieldType {
	if s.observed == 0 {
		return types.UnknownType
	}
	if s.allNumeric {
		return types.NumberType
	}
	// Boolean literals always have low cardinality, so this check has to
	// come before the categorical one or it could never fire.
	if s.allBoolean {
		return types.BoolType
	}
	distinct := len(s.distinct)
	if distinct <= CategoryDistinctLimit || float64(distinct) <= CategoryDistinctRatio*float64(sampleSize) {
		return types.CategoryType
	}
	return types.TextType
}

func stringify(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32)
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case uint:
		return strconv.FormatUint(uint64(v), 10)
	case bool:
		return strconv.FormatBool(v)
	default:
		return fmt.Sprintf("%v", v)
	}
}

func isNumeric(value any) bool {
	switch v := value.(type) {
	case float64, float32, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return true
	case string:
		_, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return err == nil
	}
	return false
}

var booleanLiterals = map[string]struct{}{
	"true": {}, "false": {},
	"yes": {}, "no": {},
	"y": {}, "n": {},
	"1": {}, "0": {},
}

func isBooleanLike(value any) bool {
	switch v := value.(type) {
	case bool:
		return true
	case string:
		_, ok := booleanLiterals[strings.ToLower(strings.TrimSpace(v))]
		return ok
	}
	return false
}
