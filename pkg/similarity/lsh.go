// Package similarity implements the LSH index used at clean time to
// decide whether a numerically close previous tensor exists for a
// parameter, avoiding a full replacement object when a delta will do.
package similarity

import (
	"math"
	"math/rand"

	"github.com/r-three/git-theta-go/pkg/tensor"
)

// Config mirrors the GIT_THETA_LSH_* environment knobs.
type Config struct {
	SignatureBits int
	Threshold     float64
	PoolSize      int
}

type entry struct {
	oid string
	t   tensor.Tensor
	sig uint64
}

// Index is a random-hyperplane (simhash-style) similarity index over a
// bounded pool of previously seen tensors. Not safe for concurrent use;
// callers must serialize all access (pkg/clean holds one mutex around
// every call into its shared Index).
type Index struct {
	cfg     Config
	planes  map[int][][]float64 // keyed by element count
	entries []entry
}

// New returns an empty index. SignatureBits beyond 64 is truncated to 64
// since the signature is packed into a uint64.
func New(cfg Config) *Index {
	if cfg.SignatureBits <= 0 || cfg.SignatureBits > 64 {
		cfg.SignatureBits = 64
	}
	return &Index{cfg: cfg, planes: map[int][][]float64{}}
}

// planesFor returns (creating once, deterministically, if needed) the set
// of random hyperplanes used to bucket vectors of length n. Seeded off n
// so signatures are stable within a process without needing shared
// global state across index instances of the same configuration.
func (ix *Index) planesFor(n int) [][]float64 {
	if p, ok := ix.planes[n]; ok {
		return p
	}
	src := rand.New(rand.NewSource(int64(n)*2654435761 + int64(ix.cfg.SignatureBits)))
	planes := make([][]float64, ix.cfg.SignatureBits)
	for i := range planes {
		v := make([]float64, n)
		for j := range v {
			v[j] = src.NormFloat64()
		}
		planes[i] = v
	}
	ix.planes[n] = planes
	return planes
}

func (ix *Index) signature(t tensor.Tensor) uint64 {
	n := t.NumElements()
	planes := ix.planesFor(n)
	var sig uint64
	for i, plane := range planes {
		dot := 0.0
		for j := 0; j < n; j++ {
			dot += t.Float64At(j) * plane[j]
		}
		if dot >= 0 {
			sig |= 1 << uint(i)
		}
	}
	return sig
}

// Add inserts a previous tensor value into the pool under oid, evicting
// the oldest entry once PoolSize is exceeded.
func (ix *Index) Add(oid string, t tensor.Tensor) {
	ix.entries = append(ix.entries, entry{oid: oid, t: t, sig: ix.signature(t)})
	if ix.cfg.PoolSize > 0 && len(ix.entries) > ix.cfg.PoolSize {
		ix.entries = ix.entries[len(ix.entries)-ix.cfg.PoolSize:]
	}
}

// Match returns the closest pool entry to query within Threshold L2
// distance, or ok=false when none qualifies. An exact content-hash match
// short-circuits the hyperplane search entirely (two tensors with equal
// canonical hashes are "equal", per the similarity definition — not
// merely "close"). Among multiple qualifying candidates the smallest L2
// distance wins; ties break on lexicographically smaller oid.
func (ix *Index) Match(query tensor.Tensor) (oid string, ok bool) {
	qHash := query.Hash()
	qSig := ix.signature(query)
	var bestOid string
	bestDist := math.Inf(1)
	found := false
	for _, e := range ix.entries {
		if e.t.Hash() == qHash {
			return e.oid, true
		}
		if e.sig != qSig || e.t.NumElements() != query.NumElements() {
			continue
		}
		d := l2Distance(query, e.t)
		if d > ix.cfg.Threshold {
			continue
		}
		if !found || d < bestDist || (d == bestDist && e.oid < bestOid) {
			found, bestDist, bestOid = true, d, e.oid
		}
	}
	return bestOid, found
}

// Close reports whether a and b are elementwise close under the
// atol/rtol tolerance from spec §4.4: |a-b| <= atol + rtol*|b|.
func Close(a, b tensor.Tensor, atol, rtol float64) bool {
	if a.NumElements() != b.NumElements() {
		return false
	}
	for i := 0; i < a.NumElements(); i++ {
		av, bv := a.Float64At(i), b.Float64At(i)
		if math.Abs(av-bv) > atol+rtol*math.Abs(bv) {
			return false
		}
	}
	return true
}

func l2Distance(a, b tensor.Tensor) float64 {
	sum := 0.0
	for i := 0; i < a.NumElements(); i++ {
		d := a.Float64At(i) - b.Float64At(i)
		sum += d * d
	}
	return math.Sqrt(sum)
}
