package utils

import (
	"fmt"
	"math"
	"sort"
)

// dotProduct calculates the dot product of two vectors.
func dotProduct(vec1, vec2 []float32) (float32, error) {
	if len(vec1) != len(vec2) {
		return 0, fmt.Errorf("vectors must have the same dimension (%d != %d)", len(vec1), len(vec2))
	}
	var product float32
	for i := range vec1 {
		product += vec1[i] * vec2[i]
	}
	return product, nil
}

// magnitude calculates the L2 norm of a vector.
func magnitude(vec []float32) float32 {
	var sumOfSquares float32
	for _, val := range vec {
		sumOfSquares += val * val
	}
	return float32(math.Sqrt(float64(sumOfSquares)))
}

// CosineSimilarity returns the cosine of the angle between two vectors.
// Zero vectors score 0.
func CosineSimilarity(vec1, vec2 []float32) (float32, error) {
	if len(vec1) == 0 || len(vec2) == 0 {
		return 0, fmt.Errorf("vectors cannot be empty")
	}
	dot, err := dotProduct(vec1, vec2)
	if err != nil {
		return 0, err
	}

	mag1 := magnitude(vec1)
	mag2 := magnitude(vec2)
	if mag1 == 0 || mag2 == 0 {
		return 0, nil
	}
	return dot / (mag1 * mag2), nil
}

// Scored pairs a candidate index with its similarity to a query.
type Scored struct {
	Index int
	Score float32
}

// TopKByCosine ranks candidates by cosine similarity to query and returns at
// most k of them, best first. Candidates whose dimension does not match the
// query are skipped. Ties keep candidate order.
func TopKByCosine(query []float32, candidates [][]float32, k int) []Scored {
	if k <= 0 {
		return nil
	}
	scored := make([]Scored, 0, len(candidates))
	for i, c := range candidates {
		sim, err := CosineSimilarity(query, c)
		if err != nil {
			continue
		}
		scored = append(scored, Scored{Index: i, Score: sim})
	}
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].Score > scored[j].Score
	})
	if len(scored) > k {
		scored = scored[:k]
	}
	return scored
}
