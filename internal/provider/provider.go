// Package provider defines capability providers and the verb registry.
//
// A Provider is a named capability unit that declares the canonical verbs
// it handles, alias spellings for those verbs, and a rendering template
// per verb. Providers are constructed at plugin-load time, registered once
// into a Registry, and treated as immutable afterwards.
package provider

import (
	"fmt"
	"strings"
)

// Domain identifies what kind of instruction a template renders to.
type Domain string

const (
	// DomainHostCommand renders to a shell command executed on the host.
	DomainHostCommand Domain = "host_command"

	// DomainStructuredQuery renders to a query with bind parameters.
	DomainStructuredQuery Domain = "structured_query"
)

// Valid reports whether d is a known domain.
func (d Domain) Valid() bool {
	return d == DomainHostCommand || d == DomainStructuredQuery
}

// Template is the rendering template a provider declares for one verb.
// Placeholders use {name} syntax; every placeholder is a required
// argument at render time.
type Template struct {
	Domain Domain
	Text   string
}

// Provider is a registered capability unit.
type Provider struct {
	// Name uniquely identifies the provider within a registry.
	Name string

	// Verbs are the canonical verbs, in declared (display) casing.
	Verbs []string

	// Aliases maps alternate spellings to canonical verbs.
	// Alias collisions across providers are legal; lookups resolve them
	// by priority.
	Aliases map[string]string

	// Priority breaks ties when several providers declare the same verb.
	// Higher wins. Default 0.
	Priority int

	// Templates maps each canonical verb (lower-cased) to its template.
	Templates map[string]Template
}

// Validate checks the provider definition before registration.
func (p *Provider) Validate() error {
	if p == nil {
		return ErrNilProvider
	}
	if strings.TrimSpace(p.Name) == "" {
		return ErrEmptyName
	}
	if len(p.Verbs) == 0 {
		return fmt.Errorf("provider %s: %w", p.Name, ErrNoVerbs)
	}

	canonical := make(map[string]bool, len(p.Verbs))
	for _, v := range p.Verbs {
		lv := strings.ToLower(strings.TrimSpace(v))
		if lv == "" {
			return fmt.Errorf("provider %s: %w", p.Name, ErrEmptyVerb)
		}
		canonical[lv] = true
	}
	for alias, target := range p.Aliases {
		if strings.TrimSpace(alias) == "" {
			return fmt.Errorf("provider %s: %w", p.Name, ErrEmptyVerb)
		}
		if !canonical[strings.ToLower(target)] {
			return fmt.Errorf("provider %s: alias %q: %w", p.Name, alias, ErrAliasTarget)
		}
	}
	for lv := range canonical {
		tpl, ok := p.Template(lv)
		if !ok {
			return fmt.Errorf("provider %s: verb %q: %w", p.Name, lv, ErrNoTemplate)
		}
		if !tpl.Domain.Valid() {
			return fmt.Errorf("provider %s: verb %q: %w", p.Name, lv, ErrBadDomain)
		}
	}
	return nil
}

// Template returns the template for a canonical verb. Lookup is
// case-insensitive.
func (p *Provider) Template(verb string) (Template, bool) {
	if tpl, ok := p.Templates[verb]; ok {
		return tpl, true
	}
	for k, tpl := range p.Templates {
		if strings.EqualFold(k, verb) {
			return tpl, true
		}
	}
	return Template{}, false
}

// Canonical resolves a verb or alias declared by this provider to its
// canonical verb in display casing. Returns false if the provider does
// not declare it.
func (p *Provider) Canonical(verbOrAlias string) (string, bool) {
	want := strings.ToLower(strings.TrimSpace(verbOrAlias))
	for _, v := range p.Verbs {
		if strings.ToLower(v) == want {
			return v, true
		}
	}
	for alias, target := range p.Aliases {
		if strings.ToLower(alias) == want {
			// Return the declared casing of the canonical verb.
			for _, v := range p.Verbs {
				if strings.EqualFold(v, target) {
					return v, true
				}
			}
			return target, true
		}
	}
	return "", false
}
