// Package verify checks generated relations against the properties their
// distribution promises: uniqueness, completeness, referential integrity and
// Zipf goodness of fit.
package verify

import (
	"math"
	"slices"

	"github.com/RoaringBitmap/roaring/v2/roaring64"
	"github.com/mmrzaf/relgen/internal/tuple"
)

// Summary describes the key column of a relation.
type Summary struct {
	Tuples   int
	Distinct uint64
	MinKey   int64
	MaxKey   int64
}

// KeySet returns the set of keys in ts.
func KeySet(ts []tuple.Tuple) *roaring64.Bitmap {
	bm := roaring64.New()
	for _, t := range ts {
		bm.Add(uint64(t.Key))
	}
	return bm
}

func Summarize(ts []tuple.Tuple) Summary {
	s := Summary{Tuples: len(ts)}
	if len(ts) == 0 {
		return s
	}
	s.MinKey, s.MaxKey = math.MaxInt64, math.MinInt64
	for _, t := range ts {
		k := int64(t.Key)
		s.MinKey = min(s.MinKey, k)
		s.MaxKey = max(s.MaxKey, k)
	}
	s.Distinct = KeySet(ts).GetCardinality()
	return s
}

// Missing counts the values of [lo, hi] that do not occur as a key.
func Missing(ts []tuple.Tuple, lo, hi int64) uint64 {
	if hi < lo {
		return 0
	}
	want := roaring64.New()
	want.AddRange(uint64(lo), uint64(hi)+1)
	want.AndNot(KeySet(ts))
	return want.GetCardinality()
}

// IsPermutation reports whether the keys are exactly lo..hi, each once.
func IsPermutation(ts []tuple.Tuple, lo, hi int64) bool {
	if hi < lo {
		return len(ts) == 0
	}
	if int64(len(ts)) != hi-lo+1 {
		return false
	}
	s := Summarize(ts)
	return s.MinKey == lo && s.MaxKey == hi && s.Distinct == uint64(len(ts))
}

// Violations counts the tuples whose key is not in ref.
func Violations(ts []tuple.Tuple, ref *roaring64.Bitmap) uint64 {
	var n uint64
	for _, t := range ts {
		if !ref.Contains(uint64(t.Key)) {
			n++
		}
	}
	return n
}

// Multiplicity returns the number of occurrences of every key.
func Multiplicity(ts []tuple.Tuple) map[tuple.Key]int {
	counts := make(map[tuple.Key]int)
	for _, t := range ts {
		counts[t.Key]++
	}
	return counts
}

// RankFrequencies returns the k largest key counts in descending order.
func RankFrequencies(ts []tuple.Tuple, k int) []int {
	counts := Multiplicity(ts)
	freq := make([]int, 0, len(counts))
	for _, c := range counts {
		freq = append(freq, c)
	}
	slices.SortFunc(freq, func(a, b int) int { return b - a })
	if k < len(freq) {
		freq = freq[:k]
	}
	return freq
}

// ZipfProbabilities returns P(rank k) = k^-s / H(maxID, s) for k = 1..maxID.
func ZipfProbabilities(maxID int, s float64) []float64 {
	p := make([]float64, maxID)
	var h float64
	for k := range p {
		p[k] = math.Pow(float64(k+1), -s)
		h += p[k]
	}
	for k := range p {
		p[k] /= h
	}
	return p
}

// ChiSquare is the Pearson statistic of observed against expected counts.
// Buckets with no expected mass are skipped.
func ChiSquare(observed []int, expected []float64) float64 {
	var x2 float64
	for i, e := range expected {
		if e <= 0 {
			continue
		}
		var o float64
		if i < len(observed) {
			o = float64(observed[i])
		}
		d := o - e
		x2 += d * d / e
	}
	return x2
}

// ZipfChiSquare compares the rank-ordered key counts of ts with the counts a
// Zipf(maxID, s) law predicts. The first k ranks are separate buckets and
// the remaining ranks form one tail bucket.
func ZipfChiSquare(ts []tuple.Tuple, maxID int, s float64, k int) float64 {
	if len(ts) == 0 || maxID <= 0 {
		return 0
	}
	k = min(k, maxID)
	p := ZipfProbabilities(maxID, s)
	n := float64(len(ts))

	freq := RankFrequencies(ts, len(ts))
	observed := make([]int, k+1)
	expected := make([]float64, k+1)
	for i := range k {
		expected[i] = n * p[i]
		if i < len(freq) {
			observed[i] = freq[i]
		}
	}
	for i := k; i < maxID; i++ {
		expected[k] += n * p[i]
	}
	for i := k; i < len(freq); i++ {
		observed[k] += freq[i]
	}
	return ChiSquare(observed, expected)
}
