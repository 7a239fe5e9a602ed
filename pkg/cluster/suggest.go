package cluster

import (
	"github.com/matst80/slask-harmonizer/pkg/similarity"
	"github.com/matst80/slask-harmonizer/pkg/types"
)

// noiseTokens carry no meaning on their own and never make a good
// canonical name.
var noiseTokens = map[string]struct{}{
	"field": {},
	"value": {},
	"raw":   {},
	"data":  {},
	"src":   {},
	"item":  {},
	"the":   {},
}

// Suggest proposes a canonical name for a cluster: the token shared by most
// member names, preferring shorter tokens on equal coverage. Returns false
// when no token covers more than half the members, in which case the
// operator names the cluster manually.
func Suggest(c types.FieldCluster) (string, bool) {
	members := c.Members()
	if len(members) == 0 {
		return "", false
	}

	coverage := map[string]int{}
	order := []string{}
	for _, member := range members {
		for _, token := range similarity.Tokens(member.String()) {
			if _, noise := noiseTokens[token]; noise {
				continue
			}
			if _, seen := coverage[token]; !seen {
				order = append(order, token)
			}
			coverage[token]++
		}
	}

	best := ""
	bestCount := 0
	for _, token := range order {
		count := coverage[token]
		if count*2 <= len(members) {
			continue
		}
		if count > bestCount ||
			(count == bestCount && len(token) < len(best)) ||
			(count == bestCount && len(token) == len(best) && token < best) {
			best = token
			bestCount = count
		}
	}
	if best == "" {
		return "", false
	}
	return best, true
}
