package incident

import (
	"context"
	"strings"

	"github.com/platformbuilds/opsagents/internal/models"
)

// NoiseLabel marks an alert that belongs to no cluster. Each noise
// alert becomes its own incident.
const NoiseLabel = -1

// SimilarityGrouper assigns a cluster label to each alert of a
// time-window group. The returned slice is index-aligned with the
// input; NoiseLabel marks outliers.
type SimilarityGrouper interface {
	GroupLabels(ctx context.Context, alerts []*models.Alert) []int
}

// FeatureGrouper clusters alerts by pairwise feature similarity:
// shared title/description tokens, matching source and matching
// severity. Two alerts are neighbors when their similarity reaches
// the threshold; clusters are the connected components of the
// neighbor graph, and alerts with no neighbors are noise.
type FeatureGrouper struct {
	threshold float64
}

const defaultSimilarityThreshold = 0.4

// NewFeatureGrouper builds a grouper. A non-positive threshold falls
// back to the default.
func NewFeatureGrouper(threshold float64) *FeatureGrouper {
	if threshold <= 0 {
		threshold = defaultSimilarityThreshold
	}
	return &FeatureGrouper{threshold: threshold}
}

// GroupLabels labels each alert with its connected-component cluster,
// or NoiseLabel when the alert has no sufficiently similar peer.
func (g *FeatureGrouper) GroupLabels(_ context.Context, alerts []*models.Alert) []int {
	n := len(alerts)
	labels := make([]int, n)
	for i := range labels {
		labels[i] = NoiseLabel
	}
	if n < 2 {
		return labels
	}

	tokens := make([]map[string]struct{}, n)
	for i, a := range alerts {
		tokens[i] = tokenize(a.Title + " " + a.Description)
	}

	// Union-find over the neighbor graph.
	parent := make([]int, n)
	for i := range parent {
		parent[i] = i
	}
	var find func(int) int
	find = func(x int) int {
		if parent[x] != x {
			parent[x] = find(parent[x])
		}
		return parent[x]
	}

	neighbors := make([]int, n)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			if g.similarity(alerts[i], alerts[j], tokens[i], tokens[j]) >= g.threshold {
				neighbors[i]++
				neighbors[j]++
				parent[find(i)] = find(j)
			}
		}
	}

	next := 0
	assigned := make(map[int]int)
	for i := 0; i < n; i++ {
		if neighbors[i] == 0 {
			continue
		}
		root := find(i)
		label, ok := assigned[root]
		if !ok {
			label = next
			next++
			assigned[root] = label
		}
		labels[i] = label
	}

	return labels
}

// similarity blends token overlap with exact source and severity
// matches. Token overlap dominates; source and severity matches are
// small boosts.
func (g *FeatureGrouper) similarity(a, b *models.Alert, ta, tb map[string]struct{}) float64 {
	score := 0.6 * jaccard(ta, tb)
	if a.Source == b.Source {
		score += 0.25
	}
	if a.Severity == b.Severity {
		score += 0.15
	}
	return score
}

func jaccard(a, b map[string]struct{}) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}
	shared := 0
	for t := range a {
		if _, ok := b[t]; ok {
			shared++
		}
	}
	union := len(a) + len(b) - shared
	if union == 0 {
		return 0
	}
	return float64(shared) / float64(union)
}

func tokenize(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, tok := range strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !('a' <= r && r <= 'z' || '0' <= r && r <= '9')
	}) {
		if len(tok) < 3 {
			continue
		}
		out[tok] = struct{}{}
	}
	return out
}
