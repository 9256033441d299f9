// Package render turns a resolved (provider, verb, args) triple into a
// literal instruction. Host commands get shell-quoted argument values;
// structured queries get bind-parameter placeholders and never embed
// argument values in the literal text.
package render

import (
	"fmt"
	"sort"
	"strings"

	"al.essio.dev/pkg/shellescape"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"intentrun/internal/logging"
	"intentrun/internal/provider"
)

// Origin records where an instruction came from, for audit logging.
type Origin struct {
	Provider string
	Verb     string
	Args     map[string]any
}

// Instruction is a rendered, executable instruction.
type Instruction struct {
	// Domain declares how Literal is interpreted and executed.
	Domain provider.Domain

	// Literal is the rendered instruction text. For structured queries it
	// contains `?` bind markers, never argument values.
	Literal string

	// Params are the bind values for a structured query, in marker order.
	// Always nil for host commands.
	Params []any

	// Origin is retained for the audit log.
	Origin Origin

	// RequestID uniquely identifies this pipeline attempt.
	RequestID string
}

// Render produces an instruction from the provider's template for a verb.
// String argument values are escaped for the target domain; any
// placeholder without a matching argument is a MissingArgumentError.
func Render(p *provider.Provider, verb string, args map[string]any) (Instruction, error) {
	canonical, ok := p.Canonical(verb)
	if !ok {
		return Instruction{}, &TemplateError{Provider: p.Name, Verb: verb, Reason: "verb not declared by provider"}
	}
	tpl, ok := p.Template(canonical)
	if !ok {
		return Instruction{}, &TemplateError{Provider: p.Name, Verb: canonical, Reason: "no template for verb"}
	}

	names, err := placeholders(tpl.Text)
	if err != nil {
		return Instruction{}, &TemplateError{Provider: p.Name, Verb: canonical, Reason: err.Error()}
	}

	literal := tpl.Text
	var params []any
	for _, name := range names {
		val, ok := args[name]
		if !ok {
			return Instruction{}, &MissingArgumentError{Name: name}
		}
		marker := "{" + name + "}"
		switch tpl.Domain {
		case provider.DomainHostCommand:
			literal = strings.Replace(literal, marker, quoteHost(val), 1)
		case provider.DomainStructuredQuery:
			literal = strings.Replace(literal, marker, "?", 1)
			params = append(params, val)
		}
	}

	inst := Instruction{
		Domain:    tpl.Domain,
		Literal:   literal,
		Params:    params,
		Origin:    Origin{Provider: p.Name, Verb: canonical, Args: args},
		RequestID: uuid.NewString(),
	}
	logging.Get(logging.CategoryRender).Debug("rendered instruction",
		zap.String("request_id", inst.RequestID),
		zap.String("provider", p.Name),
		zap.String("verb", canonical),
		zap.String("domain", string(tpl.Domain)))
	return inst, nil
}

// placeholders extracts {name} markers from a template in order of
// appearance. A marker may repeat; each occurrence is substituted (and,
// for queries, bound) separately. An unclosed brace is a template error.
func placeholders(text string) ([]string, error) {
	var names []string
	for i := 0; i < len(text); i++ {
		if text[i] != '{' {
			continue
		}
		end := strings.IndexByte(text[i:], '}')
		if end < 0 {
			return nil, fmt.Errorf("unclosed placeholder at offset %d", i)
		}
		name := text[i+1 : i+end]
		if name == "" {
			return nil, fmt.Errorf("empty placeholder at offset %d", i)
		}
		names = append(names, name)
		i += end
	}
	return names, nil
}

// quoteHost renders one argument value for a shell command line.
func quoteHost(val any) string {
	switch v := val.(type) {
	case string:
		return shellescape.Quote(v)
	case []string:
		quoted := make([]string, len(v))
		for i, s := range v {
			quoted[i] = shellescape.Quote(s)
		}
		return strings.Join(quoted, " ")
	default:
		return shellescape.Quote(fmt.Sprintf("%v", v))
	}
}

// RedactedLiteral returns the literal with sensitive argument values
// masked, for audit records. An argument is sensitive when its name
// contains one of the usual secret markers.
func (in Instruction) RedactedLiteral() string {
	if in.Domain == provider.DomainStructuredQuery {
		// Query literals never contain argument values.
		return in.Literal
	}
	literal := in.Literal
	names := make([]string, 0, len(in.Origin.Args))
	for name := range in.Origin.Args {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if !sensitiveArg(name) {
			continue
		}
		if s, ok := in.Origin.Args[name].(string); ok && s != "" {
			literal = strings.ReplaceAll(literal, shellescape.Quote(s), "***")
		}
	}
	return literal
}

func sensitiveArg(name string) bool {
	lower := strings.ToLower(name)
	for _, marker := range []string{"password", "secret", "token", "key", "credential"} {
		if strings.Contains(lower, marker) {
			return true
		}
	}
	return false
}
