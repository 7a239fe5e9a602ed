package similarity

import (
	"strconv"
	"strings"

	"github.com/matst80/slask-harmonizer/pkg/types"
	lev "github.com/texttheater/golang-levenshtein/levenshtein"
)

// Sub-score weights. Both sub-scores are symmetric and bounded to [0,1] so
// the combined score is too.
const (
	NameWeight         = 0.6
	DistributionWeight = 0.4
)

// synonymGroups holds field name tokens that mean the same thing across
// listing sources. Extended by hand as new sources show up: a new source
// with a new alias gets its token added here.
var synonymGroups = [][]string{
	{"price", "cost", "amount", "pris"},
	{"make", "brand", "manufacturer", "marke"},
	{"model", "modelname"},
	{"year", "modelyear", "yearofmanufacture"},
	{"mileage", "odometer", "miles", "km"},
	{"location", "city", "place", "region"},
	{"description", "details", "text", "body"},
	{"title", "heading", "name", "subject"},
	{"category", "type", "kind"},
	{"currency", "valuta"},
	{"url", "link", "href"},
	{"image", "picture", "photo", "img"},
	{"seller", "dealer", "vendor"},
	{"area", "size", "sqm", "squaremeters"},
	{"rooms", "bedrooms"},
	{"rent", "monthlyfee"},
	{"phone", "telephone", "tel"},
	{"date", "published", "listed", "created"},
}

var synonymIndex = buildSynonymIndex()

func buildSynonymIndex() map[string]int {
	index := map[string]int{}
	for group, words := range synonymGroups {
		for _, word := range words {
			index[word] = group
		}
	}
	return index
}

func sameSynonymGroup(a, b string) bool {
	ga, ok := synonymIndex[a]
	if !ok {
		return false
	}
	gb, ok := synonymIndex[b]
	return ok && ga == gb
}

// Score combines name similarity and value distribution overlap into a
// symmetric score in [0,1]. A profile scored against itself yields 1.
func Score(a, b types.FieldProfile) float64 {
	if a.Field == b.Field {
		return 1
	}
	return NameWeight*NameScore(a.Field, b.Field) + DistributionWeight*distributionScore(a, b)
}

// NameScore measures field name similarity ignoring case, separators and
// camelCase. Known synonyms score 1, otherwise the better of token overlap
// and normalized edit distance.
func NameScore(a, b types.FieldName) float64 {
	na := NormalizeName(a.String())
	nb := NormalizeName(b.String())
	if na == nb && na != "" {
		return 1
	}
	if sameSynonymGroup(na, nb) {
		return 1
	}

	tokenScore := jaccard(Tokens(a.String()), Tokens(b.String()))
	for _, ta := range Tokens(a.String()) {
		for _, tb := range Tokens(b.String()) {
			if sameSynonymGroup(ta, tb) && tokenScore < 0.8 {
				tokenScore = 0.8
			}
		}
	}

	editScore := 0.0
	maxLen := max(len([]rune(na)), len([]rune(nb)))
	if maxLen > 0 {
		dist := lev.DistanceForStrings([]rune(na), []rune(nb), lev.DefaultOptions)
		editScore = 1 - float64(dist)/float64(maxLen)
	}
	return max(tokenScore, editScore)
}

// distributionScore is 0 whenever the inferred types differ, so fields of
// different types can never score above the name component.
func distributionScore(a, b types.FieldProfile) float64 {
	if a.Type != b.Type || a.Type == types.UnknownType {
		return 0
	}
	switch a.Type {
	case types.NumberType:
		return rangeOverlap(a.Examples, b.Examples)
	case types.CategoryType, types.BoolType:
		return jaccard(lowered(a.Examples), lowered(b.Examples))
	case types.TextType:
		return jaccard(exampleTokens(a.Examples), exampleTokens(b.Examples))
	}
	return 0
}

func lowered(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(strings.TrimSpace(v))
	}
	return out
}

func exampleTokens(examples []string) []string {
	tokens := []string{}
	for _, example := range examples {
		tokens = append(tokens, Tokens(example)...)
	}
	return tokens
}

func jaccard(a, b []string) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	union := map[string]struct{}{}
	inA := map[string]struct{}{}
	for _, t := range a {
		union[t] = struct{}{}
		inA[t] = struct{}{}
	}
	intersect := 0
	seen := map[string]struct{}{}
	for _, t := range b {
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		union[t] = struct{}{}
		if _, ok := inA[t]; ok {
			intersect++
		}
	}
	if len(union) == 0 {
		return 0
	}
	return float64(intersect) / float64(len(union))
}

// rangeOverlap measures how much the numeric example ranges of two fields
// overlap, as intersection over union of the [min,max] intervals.
func rangeOverlap(a, b []string) float64 {
	minA, maxA, okA := numericRange(a)
	minB, maxB, okB := numericRange(b)
	if !okA || !okB {
		return 0
	}
	low := max(minA, minB)
	high := min(maxA, maxB)
	if high < low {
		return 0
	}
	unionLow := min(minA, minB)
	unionHigh := max(maxA, maxB)
	if unionHigh == unionLow {
		// Both ranges collapse to the same single value.
		return 1
	}
	return (high - low) / (unionHigh - unionLow)
}

func numericRange(values []string) (low float64, high float64, ok bool) {
	for _, v := range values {
		f, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			continue
		}
		if !ok {
			low, high, ok = f, f, true
			continue
		}
		low = min(low, f)
		high = max(high, f)
	}
	return low, high, ok
}
