package retrieval

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
)

// hashDim is the dimensionality of the local hashing embedder.
const hashDim = 256

// HashingEmbedding is a deterministic, dependency-free embedding function:
// terms are hashed into a fixed-size bag-of-words vector which is then
// L2-normalized. It captures lexical overlap only, but it makes the vector
// backend fully functional offline. Deployments with a real embedding
// model plug it in via the EmbeddingFunc hook on NewVectorIndex.
func HashingEmbedding(ctx context.Context, text string) ([]float32, error) {
	vec := make([]float32, hashDim)
	for _, term := range strings.Fields(strings.ToLower(text)) {
		h := fnv.New32a()
		_, _ = h.Write([]byte(term))
		vec[h.Sum32()%hashDim]++
	}
	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		inv := float32(1 / math.Sqrt(norm))
		for i := range vec {
			vec[i] *= inv
		}
	}
	return vec, nil
}
