package persistence

import "math"

// cosineSimilarity computes the cosine similarity between two vectors,
// returning 0 for mismatched or zero-magnitude inputs. The SQLite search
// path uses this where PostgreSQL uses the pgvector distance operator.
func cosineSimilarity(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}

	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
