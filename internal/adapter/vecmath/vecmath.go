// Package vecmath holds the scoring and encoding helpers shared by the
// vector index backends.
package vecmath

import (
	"encoding/binary"
	"fmt"
	"math"
	"sort"

	"ragpipe/internal/domain"
)

// Cosine returns the cosine similarity of a and b, or 0 when either
// vector has zero magnitude or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}

	var dotProduct, normA, normB float64
	for i := range a {
		dotProduct += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}

	if normA == 0 || normB == 0 {
		return 0
	}

	return dotProduct / (math.Sqrt(normA) * math.Sqrt(normB))
}

// IsZero reports whether v has zero magnitude.
func IsZero(v []float32) bool {
	for _, x := range v {
		if x != 0 {
			return false
		}
	}
	return true
}

// Dot returns the inner product of a and b.
func Dot(a, b []float32) float64 {
	if len(a) != len(b) {
		return 0
	}
	var sum float64
	for i := range a {
		sum += float64(a[i]) * float64(b[i])
	}
	return sum
}

// ScoreFunc returns the scoring function for a metric.
func ScoreFunc(metric domain.Metric) (func(a, b []float32) float64, error) {
	switch metric {
	case domain.MetricCosine:
		return Cosine, nil
	case domain.MetricInnerProduct:
		return Dot, nil
	default:
		return nil, fmt.Errorf("%w: unsupported metric %q", domain.ErrConfig, metric)
	}
}

// Scored pairs a candidate position with its score.
type Scored struct {
	Index int
	Score float64
}

// Rank scores every candidate against query and returns the best k,
// highest score first. Equal scores keep candidate order. A k larger than
// the candidate count returns all of them; k <= 0 returns none.
func Rank(metric domain.Metric, query []float32, candidates [][]float32, k int) ([]Scored, error) {
	score, err := ScoreFunc(metric)
	if err != nil {
		return nil, err
	}
	if k <= 0 || len(candidates) == 0 {
		return nil, nil
	}

	scores := make([]Scored, len(candidates))
	for i, v := range candidates {
		scores[i] = Scored{Index: i, Score: score(query, v)}
	}

	sort.SliceStable(scores, func(i, j int) bool {
		return scores[i].Score > scores[j].Score
	})

	if k > len(scores) {
		k = len(scores)
	}
	return scores[:k], nil
}

// Encode packs a vector as little-endian IEEE 754 float32 values.
func Encode(vec []float32) []byte {
	b := make([]byte, len(vec)*4)
	for i, v := range vec {
		binary.LittleEndian.PutUint32(b[i*4:], math.Float32bits(v))
	}
	return b
}

// Decode reverses Encode.
func Decode(b []byte) ([]float32, error) {
	if len(b)%4 != 0 {
		return nil, fmt.Errorf("invalid vector blob length %d", len(b))
	}
	vec := make([]float32, len(b)/4)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return vec, nil
}
