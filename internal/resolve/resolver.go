// Package resolve maps free-form verb strings to the provider responsible
// for them. Exact registry hits are O(1); misses fall back to approximate
// string matching over every known verb and alias, so a typo like "serch"
// still reaches the provider that declared "search".
package resolve

import (
	"sort"
	"strings"
	"sync/atomic"

	"github.com/agnivade/levenshtein"
	lru "github.com/hashicorp/golang-lru/v2"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"intentrun/internal/logging"
	"intentrun/internal/provider"
)

// Defaults for fuzzy matching and the resolution cache.
const (
	DefaultThreshold     = 0.75
	DefaultMaxCandidates = 3
	DefaultCacheSize     = 512
)

// Options tune the resolver. Zero values fall back to defaults.
type Options struct {
	// Threshold is the minimum normalized similarity (0..1) a fuzzy
	// candidate needs to survive.
	Threshold float64

	// MaxCandidates caps how many fuzzy candidates are tried.
	MaxCandidates int

	// CacheSize bounds the resolution cache (LRU eviction).
	CacheSize int
}

// Resolution is a successful verb resolution.
type Resolution struct {
	Provider  *provider.Provider
	Canonical string

	// Fuzzy is true when the input only matched approximately.
	Fuzzy bool

	// Similarity is 1.0 for exact hits, the normalized edit-distance
	// similarity for fuzzy ones.
	Similarity float64
}

type cacheEntry struct {
	res   Resolution
	found bool
}

// Resolver wraps a registry with caching and fuzzy fallback.
// It is safe for concurrent use.
type Resolver struct {
	reg   *provider.Registry
	cache *lru.Cache[string, cacheEntry]

	threshold     float64
	maxCandidates int

	// lastGen tracks the registry generation the cache was filled under.
	// Any registry mutation invalidates the whole cache.
	lastGen atomic.Uint64

	group singleflight.Group
	log   *zap.Logger
}

// NewResolver creates a resolver over the given registry.
func NewResolver(reg *provider.Registry, opts Options) *Resolver {
	if opts.Threshold <= 0 || opts.Threshold > 1 {
		opts.Threshold = DefaultThreshold
	}
	if opts.MaxCandidates <= 0 {
		opts.MaxCandidates = DefaultMaxCandidates
	}
	if opts.CacheSize <= 0 {
		opts.CacheSize = DefaultCacheSize
	}
	cache, err := lru.New[string, cacheEntry](opts.CacheSize)
	if err != nil {
		// Only reachable with a non-positive size, which is normalized above.
		panic(err)
	}
	return &Resolver{
		reg:           reg,
		cache:         cache,
		threshold:     opts.Threshold,
		maxCandidates: opts.MaxCandidates,
		log:           logging.Get(logging.CategoryResolve),
	}
}

// Resolve maps an input verb to (provider, canonical verb).
// Returns ErrNotFound when no provider handles the verb, exactly or
// approximately. Both hits and misses are cached; degenerate (empty)
// input is rejected without touching the cache.
func (r *Resolver) Resolve(input string) (Resolution, error) {
	key := strings.ToLower(strings.TrimSpace(input))
	if key == "" {
		return Resolution{}, ErrNotFound
	}

	r.syncGeneration()

	if ce, ok := r.cache.Get(key); ok {
		if !ce.found {
			return Resolution{}, ErrNotFound
		}
		// Defend against entries that outlived their provider.
		if r.reg.Has(ce.res.Provider.Name) {
			return ce.res, nil
		}
		r.cache.Remove(key)
	}

	if e, ok := r.reg.Lookup(key); ok {
		res := Resolution{Provider: e.Provider, Canonical: e.Canonical, Similarity: 1.0}
		r.cache.Add(key, cacheEntry{res: res, found: true})
		return res, nil
	}

	// Fuzzy search is the expensive path; collapse concurrent identical
	// lookups into one scan.
	v, err, _ := r.group.Do(key, func() (any, error) {
		return r.fuzzy(key), nil
	})
	if err != nil {
		return Resolution{}, err
	}
	res := v.(Resolution)
	found := res.Provider != nil

	r.cache.Add(key, cacheEntry{res: res, found: found})
	if !found {
		r.log.Debug("verb not found", zap.String("input", input))
		return Resolution{}, ErrNotFound
	}
	r.log.Debug("fuzzy resolution",
		zap.String("input", input),
		zap.String("provider", res.Provider.Name),
		zap.String("canonical", res.Canonical),
		zap.Float64("similarity", res.Similarity))
	return res, nil
}

// syncGeneration purges the cache if the registry changed since the last
// resolution. Stale NotFound entries must not survive a registration.
func (r *Resolver) syncGeneration() {
	gen := r.reg.Generation()
	if old := r.lastGen.Load(); old != gen && r.lastGen.CompareAndSwap(old, gen) {
		r.cache.Purge()
	}
}

type candidate struct {
	ref        provider.VerbRef
	similarity float64
	order      int // position in the registry snapshot; encodes priority/registration order
}

// fuzzy scans every known verb and alias for the best approximate match.
// Returns the zero Resolution when nothing clears the threshold.
func (r *Resolver) fuzzy(key string) Resolution {
	refs := r.reg.Known()
	candidates := make([]candidate, 0, r.maxCandidates)
	for i, ref := range refs {
		sim := similarity(key, ref.Spelling)
		if sim < r.threshold {
			continue
		}
		candidates = append(candidates, candidate{ref: ref, similarity: sim, order: i})
	}

	// Similarity descending, then provider priority, then registration order.
	sort.SliceStable(candidates, func(i, j int) bool {
		if candidates[i].similarity != candidates[j].similarity {
			return candidates[i].similarity > candidates[j].similarity
		}
		pi := candidates[i].ref.Entry.Provider.Priority
		pj := candidates[j].ref.Entry.Provider.Priority
		if pi != pj {
			return pi > pj
		}
		return candidates[i].order < candidates[j].order
	})
	if len(candidates) > r.maxCandidates {
		candidates = candidates[:r.maxCandidates]
	}

	for _, c := range candidates {
		if !r.reg.Has(c.ref.Entry.Provider.Name) {
			continue
		}
		return Resolution{
			Provider:   c.ref.Entry.Provider,
			Canonical:  c.ref.Entry.Canonical,
			Fuzzy:      true,
			Similarity: c.similarity,
		}
	}
	return Resolution{}
}

// similarity converts edit distance to a 0..1 scale where 1 is identical.
func similarity(a, b string) float64 {
	if a == b {
		return 1.0
	}
	la, lb := len([]rune(a)), len([]rune(b))
	longest := la
	if lb > longest {
		longest = lb
	}
	if longest == 0 {
		return 1.0
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(longest)
}
