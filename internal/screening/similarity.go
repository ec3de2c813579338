package screening

import (
	"math"
	"sort"
	"unicode/utf8"

	"github.com/agnivade/levenshtein"
)

// Blend weights applied to the higher and lower of the two sub-scores
const (
	similarityHighWeight = 0.8
	similarityLowWeight  = 0.2
)

// Similarity scores two normalized token sequences in [0,1].
//
// Identical token sets score 1.0 and disjoint sets (or an empty side) score 0.0.
// Otherwise the Jaccard overlap and the mean best-token edit similarity are
// blended toward the higher of the two.
func Similarity(a, b []string) float64 {
	setA := tokenSet(a)
	setB := tokenSet(b)
	if len(setA) == 0 || len(setB) == 0 {
		return 0.0
	}

	shared := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			shared++
		}
	}
	if shared == 0 {
		return 0.0
	}
	union := len(setA) + len(setB) - shared
	if shared == union {
		return 1.0
	}

	jaccard := float64(shared) / float64(union)
	tokensA, tokensB := sortedTokens(setA), sortedTokens(setB)
	edit := (bestTokenSimilarity(tokensA, tokensB) + bestTokenSimilarity(tokensB, tokensA)) / 2

	hi, lo := math.Max(jaccard, edit), math.Min(jaccard, edit)
	return roundScore(clamp01(similarityHighWeight*hi + similarityLowWeight*lo))
}

// NameSimilarity normalizes both display names and scores them
func NameSimilarity(a, b string) float64 {
	return Similarity(NormalizeName(a), NormalizeName(b))
}

// bestTokenSimilarity averages, over every token of from, its best edit similarity against to
func bestTokenSimilarity(from, to []string) float64 {
	total := 0.0
	for _, f := range from {
		best := 0.0
		for _, t := range to {
			if s := tokenSimilarity(f, t); s > best {
				best = s
				if best == 1.0 {
					break
				}
			}
		}
		total += best
	}
	return total / float64(len(from))
}

func tokenSimilarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	maxLen := utf8.RuneCountInString(a)
	if l := utf8.RuneCountInString(b); l > maxLen {
		maxLen = l
	}
	if maxLen == 0 {
		return 0.0
	}
	d := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(d)/float64(maxLen)
}

func tokenSet(tokens []string) map[string]struct{} {
	set := make(map[string]struct{}, len(tokens))
	for _, t := range tokens {
		if t != "" {
			set[t] = struct{}{}
		}
	}
	return set
}

func sortedTokens(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for t := range set {
		out = append(out, t)
	}
	sort.Strings(out)
	return out
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// roundScore trims float noise so threshold comparisons are stable
func roundScore(v float64) float64 {
	return math.Round(v*1e6) / 1e6
}
