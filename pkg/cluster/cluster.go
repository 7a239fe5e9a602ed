// Package cluster groups profiled fields into connected components over the
// thresholded pairwise similarity graph. Similarity is not transitive in
// general; treating it as transitively closed is a deliberate assumption of
// this engine, so a chain a~b~c lands all three in one cluster even when a
// and c score below the threshold.
package cluster

import (
	"slices"
	"strings"
	"sync"

	"github.com/matst80/slask-harmonizer/pkg/similarity"
	"github.com/matst80/slask-harmonizer/pkg/types"
)

const DefaultThreshold = 0.75

// Cluster partitions the profiled fields into groups of mutually similar
// fields. Singleton fields are not returned. The result is deterministic
// for a given set of profiles regardless of map iteration or scheduling.
func Cluster(profiles map[types.FieldName]types.FieldProfile, threshold float64) []types.FieldCluster {
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	names := make([]types.FieldName, 0, len(profiles))
	for name := range profiles {
		names = append(names, name)
	}
	slices.Sort(names)

	matrix := scoreMatrix(names, profiles)

	uf := newUnionFind(len(names))
	for i := range names {
		for j := i + 1; j < len(names); j++ {
			if matrix[i][j] >= threshold {
				uf.union(i, j)
			}
		}
	}

	components := map[int][]int{}
	for i := range names {
		root := uf.find(i)
		components[root] = append(components[root], i)
	}

	clusters := make([]types.FieldCluster, 0, len(components))
	for _, member := range components {
		if len(member) < 2 {
			continue
		}
		clusters = append(clusters, buildCluster(member, names, profiles, matrix))
	}
	slices.SortFunc(clusters, func(a, b types.FieldCluster) int {
		return strings.Compare(a.CanonicalField.String(), b.CanonicalField.String())
	})
	for i := range clusters {
		clusters[i].Id = i + 1
	}
	return clusters
}

// scoreMatrix computes the full pairwise matrix, one goroutine per row.
// Scoring is pure so the parallelism cannot change the result.
func scoreMatrix(names []types.FieldName, profiles map[types.FieldName]types.FieldProfile) [][]float64 {
	matrix := make([][]float64, len(names))
	var wg sync.WaitGroup
	for i := range names {
		matrix[i] = make([]float64, len(names))
		wg.Add(1)
		go func(row int) {
			defer wg.Done()
			a := profiles[names[row]]
			for col := range names {
				if col == row {
					matrix[row][col] = 1
					continue
				}
				matrix[row][col] = similarity.Score(a, profiles[names[col]])
			}
		}(i)
	}
	wg.Wait()
	return matrix
}

// buildCluster elects the member with the highest observed count as the
// canonical field, ties broken by the lexicographically smallest name.
func buildCluster(member []int, names []types.FieldName, profiles map[types.FieldName]types.FieldProfile, matrix [][]float64) types.FieldCluster {
	slices.Sort(member)
	canonical := member[0]
	for _, idx := range member[1:] {
		current := profiles[names[canonical]]
		candidate := profiles[names[idx]]
		if candidate.ObservedCount > current.ObservedCount {
			canonical = idx
		} else if candidate.ObservedCount == current.ObservedCount && names[idx] < names[canonical] {
			canonical = idx
		}
	}

	cluster := types.FieldCluster{
		CanonicalField: names[canonical],
		SimilarFields:  make([]types.FieldName, 0, len(member)-1),
		Scores:         make(map[types.FieldName]float64, len(member)-1),
		Types:          make(map[types.FieldName]types.FieldType, len(member)),
		Patterns:       make(map[types.FieldName][]string, len(member)),
	}
	for _, idx := range member {
		name := names[idx]
		p := profiles[name]
		cluster.Types[name] = p.Type
		cluster.Patterns[name] = p.Examples
		if idx == canonical {
			continue
		}
		cluster.SimilarFields = append(cluster.SimilarFields, name)
		cluster.Scores[name] = matrix[canonical][idx]
	}
	slices.Sort(cluster.SimilarFields)

	if suggested, ok := Suggest(cluster); ok {
		cluster.SuggestedName = suggested
	}
	return cluster
}

type unionFind struct {
	parent []int
	rank   []int
}

func newUnionFind(size int) *unionFind {
	parent := make([]int, size)
	for i := range parent {
		parent[i] = i
	}
	return &unionFind{parent: parent, rank: make([]int, size)}
}

func (u *unionFind) find(i int) int {
	for u.parent[i] != i {
		u.parent[i] = u.parent[u.parent[i]]
		i = u.parent[i]
	}
	return i
}

func (u *unionFind) union(a, b int) {
	ra, rb := u.find(a), u.find(b)
	if ra == rb {
		return
	}
	if u.rank[ra] < u.rank[rb] {
		ra, rb = rb, ra
	}
	u.parent[rb] = ra
	if u.rank[ra] == u.rank[rb] {
		u.rank[ra]++
	}
}
