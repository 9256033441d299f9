package render

import "fmt"

// MissingArgumentError is returned when a template placeholder has no
// matching argument. Fatal for the attempt; the caller re-prompts.
type MissingArgumentError struct {
	Name string
}

func (e *MissingArgumentError) Error() string {
	return fmt.Sprintf("missing required argument: %s", e.Name)
}

// TemplateError is returned for unknown verbs and malformed templates.
type TemplateError struct {
	Provider string
	Verb     string
	Reason   string
}

func (e *TemplateError) Error() string {
	return fmt.Sprintf("invalid template for %s/%s: %s", e.Provider, e.Verb, e.Reason)
}
