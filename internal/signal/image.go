package signal

import (
	"math/bits"
	"strconv"
	"strings"

	"github.com/onnwee/reclaim/internal/item"
)

// hashBits is the length of a perceptual hash in bits.
const hashBits = 64

// ImageScorer compares the perceptual hashes of attached media. It uses the
// first hash found on each side rather than the best pair across all asset
// combinations, matching how hashes are compared elsewhere in the pipeline.
type ImageScorer struct{}

// Score returns the image similarity for a base/candidate asset pair.
// If either side has no hashed media the score is 0.
func (ImageScorer) Score(baseAssets, candidateAssets []*item.MediaAsset) float64 {
	baseHash := item.FirstHash(baseAssets)
	candHash := item.FirstHash(candidateAssets)
	if baseHash == "" || candHash == "" {
		return 0
	}
	return HammingSimilarity(baseHash, candHash)
}

// HammingSimilarity maps the Hamming distance between two hex-encoded
// 64-bit perceptual hashes to a similarity in [0, 1]:
// max(0, 1 - distance/64). Malformed hashes are treated as maximal
// distance (score 0), never as an error.
func HammingSimilarity(hashA, hashB string) float64 {
	a, okA := parseHash(hashA)
	b, okB := parseHash(hashB)
	if !okA || !okB {
		return 0
	}

	distance := bits.OnesCount64(a ^ b)
	score := 1 - float64(distance)/hashBits
	if score < 0 {
		return 0
	}
	return score
}

// parseHash parses a hex-encoded 64-bit hash, tolerating an optional 0x
// prefix and surrounding whitespace.
func parseHash(hash string) (uint64, bool) {
	cleaned := strings.TrimSpace(strings.ToLower(hash))
	cleaned = strings.TrimPrefix(cleaned, "0x")
	if cleaned == "" || len(cleaned) > 16 {
		return 0, false
	}

	v, err := strconv.ParseUint(cleaned, 16, 64)
	if err != nil {
		return 0, false
	}
	return v, true
}
