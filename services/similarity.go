package services

import (
	"math/bits"
	"os"
	"strconv"
)

// SimilarityOracle scores how alike two assets look, given their perceptual
// hashes. The second return is false when either hash is missing or
// unparseable, in which case the pair never joins a similar group. The
// concrete algorithm is pluggable; the engine only consumes scores.
type SimilarityOracle interface {
	Similarity(hashA, hashB string) (float64, bool)
}

// DefaultSimilarityThreshold is the score at or above which two assets are
// grouped as similar. Override with DEDUP_SIMILARITY_THRESHOLD.
const DefaultSimilarityThreshold = 0.90

func similarityThreshold() float64 {
	if v := os.Getenv("DEDUP_SIMILARITY_THRESHOLD"); v != "" {
		if f, err := strconv.ParseFloat(v, 64); err == nil && f > 0 && f <= 1 {
			return f
		}
	}
	return DefaultSimilarityThreshold
}

// HammingOracle is the default oracle: normalized Hamming similarity over
// provider-supplied 64-bit perceptual hashes in hex.
type HammingOracle struct{}

func (HammingOracle) Similarity(hashA, hashB string) (float64, bool) {
	a, okA := parsePHash(hashA)
	b, okB := parsePHash(hashB)
	if !okA || !okB {
		return 0, false
	}
	distance := bits.OnesCount64(a ^ b)
	return 1 - float64(distance)/64, true
}

func parsePHash(h string) (uint64, bool) {
	if h == "" {
		return 0, false
	}
	v, err := strconv.ParseUint(h, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
