package provider

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"intentrun/internal/logging"
)

// Entry is one (provider, canonical verb) pair in the registry index.
type Entry struct {
	Provider  *Provider
	Canonical string // display casing of the canonical verb
	seq       int    // registration order, for stable tie-breaks
}

// VerbRef describes one known verb or alias, used by fuzzy matching.
type VerbRef struct {
	// Spelling is the lower-cased comparison form of the verb or alias.
	Spelling string

	// Display is the spelling as the provider declared it.
	Display string

	Entry Entry
}

// Registry holds all registered providers and answers exact verb lookups
// in O(1) amortized time. It is safe for concurrent use: registration is
// mutually exclusive with lookups via a single-writer/multi-reader lock.
type Registry struct {
	mu         sync.RWMutex
	providers  map[string]*Provider
	index      map[string][]Entry // lower(verb-or-alias) -> priority-sorted
	refs       []VerbRef
	nextSeq    int
	generation uint64

	log *zap.Logger
}

// NewRegistry creates an empty registry.
func NewRegistry() *Registry {
	return &Registry{
		providers: make(map[string]*Provider),
		index:     make(map[string][]Entry),
		log:       logging.Get(logging.CategoryResolve),
	}
}

// Register adds a provider. The index is updated incrementally; no full
// rebuild happens. Registering the same name twice is an error.
func (r *Registry) Register(p *Provider) error {
	if err := p.Validate(); err != nil {
		return fmt.Errorf("invalid provider: %w", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.providers[p.Name]; exists {
		return fmt.Errorf("%w: %s", ErrAlreadyRegistered, p.Name)
	}

	seq := r.nextSeq
	r.nextSeq++
	r.providers[p.Name] = p

	for _, v := range p.Verbs {
		r.insertLocked(v, Entry{Provider: p, Canonical: v, seq: seq})
	}
	for alias, target := range p.Aliases {
		canonical, _ := p.Canonical(target)
		r.insertLocked(alias, Entry{Provider: p, Canonical: canonical, seq: seq})
	}

	r.generation++
	r.log.Debug("registered provider",
		zap.String("name", p.Name),
		zap.Int("priority", p.Priority),
		zap.Int("verbs", len(p.Verbs)),
		zap.Int("aliases", len(p.Aliases)))
	return nil
}

// MustRegister registers a provider and panics on error. Use for static
// registration at startup.
func (r *Registry) MustRegister(p *Provider) {
	if err := r.Register(p); err != nil {
		panic(fmt.Sprintf("failed to register provider %s: %v", p.Name, err))
	}
}

// insertLocked adds one index entry, keeping the per-verb list sorted by
// descending priority then registration order. Caller holds the write lock.
func (r *Registry) insertLocked(spelling string, e Entry) {
	key := strings.ToLower(strings.TrimSpace(spelling))
	list := r.index[key]
	list = append(list, e)
	sort.SliceStable(list, func(i, j int) bool {
		if list[i].Provider.Priority != list[j].Provider.Priority {
			return list[i].Provider.Priority > list[j].Provider.Priority
		}
		return list[i].seq < list[j].seq
	})
	r.index[key] = list
	r.refs = append(r.refs, VerbRef{Spelling: key, Display: spelling, Entry: e})
}

// Unregister removes a provider and all its index entries.
func (r *Registry) Unregister(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.providers[name]
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotRegistered, name)
	}
	delete(r.providers, name)

	for key, list := range r.index {
		kept := list[:0]
		for _, e := range list {
			if e.Provider != p {
				kept = append(kept, e)
			}
		}
		if len(kept) == 0 {
			delete(r.index, key)
		} else {
			r.index[key] = kept
		}
	}
	kept := r.refs[:0]
	for _, ref := range r.refs {
		if ref.Entry.Provider != p {
			kept = append(kept, ref)
		}
	}
	r.refs = kept

	r.generation++
	r.log.Debug("unregistered provider", zap.String("name", name))
	return nil
}

// Lookup returns the highest-priority entry for a verb or alias.
// Matching is case-insensitive.
func (r *Registry) Lookup(verb string) (Entry, bool) {
	key := strings.ToLower(strings.TrimSpace(verb))

	r.mu.RLock()
	defer r.mu.RUnlock()

	list, ok := r.index[key]
	if !ok || len(list) == 0 {
		return Entry{}, false
	}
	return list[0], true
}

// Has reports whether a provider with the given name is registered.
func (r *Registry) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.providers[name]
	return ok
}

// Get returns a provider by name, or nil.
func (r *Registry) Get(name string) *Provider {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.providers[name]
}

// Count returns the number of registered providers.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.providers)
}

// Names returns all registered provider names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.providers))
	for name := range r.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Known returns a snapshot of every verb and alias in the registry,
// with priority/registration tie-break order preserved per spelling.
// The fuzzy matcher scans this.
func (r *Registry) Known() []VerbRef {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]VerbRef, len(r.refs))
	copy(out, r.refs)
	return out
}

// Generation increments on every registration or removal. The resolution
// cache uses it to invalidate itself across registry mutations.
func (r *Registry) Generation() uint64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.generation
}
