package provider

import "errors"

// Registry and provider validation errors.
var (
	// ErrNilProvider is returned when registering a nil provider.
	ErrNilProvider = errors.New("provider is nil")

	// ErrEmptyName is returned when a provider has no name.
	ErrEmptyName = errors.New("provider name cannot be empty")

	// ErrNoVerbs is returned when a provider declares no verbs.
	ErrNoVerbs = errors.New("provider must declare at least one verb")

	// ErrEmptyVerb is returned for blank verb or alias strings.
	ErrEmptyVerb = errors.New("verb cannot be empty")

	// ErrAliasTarget is returned when an alias points at a verb the
	// provider does not declare.
	ErrAliasTarget = errors.New("alias target is not a canonical verb")

	// ErrNoTemplate is returned when a canonical verb has no template.
	ErrNoTemplate = errors.New("verb has no template")

	// ErrBadDomain is returned for templates with an unknown domain.
	ErrBadDomain = errors.New("template domain is invalid")

	// ErrAlreadyRegistered is returned when registering a duplicate name.
	ErrAlreadyRegistered = errors.New("provider already registered")

	// ErrNotRegistered is returned when unregistering an unknown name.
	ErrNotRegistered = errors.New("provider not registered")
)
