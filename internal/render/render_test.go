package render

import (
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"

	"intentrun/internal/provider"
)

func hostProvider() *provider.Provider {
	return &provider.Provider{
		Name:  "files",
		Verbs: []string{"find"},
		Templates: map[string]provider.Template{
			"find": {Domain: provider.DomainHostCommand, Text: "find {root} -name {pattern}"},
		},
	}
}

func queryProvider() *provider.Provider {
	return &provider.Provider{
		Name:  "notes",
		Verbs: []string{"search"},
		Templates: map[string]provider.Template{
			"search": {Domain: provider.DomainStructuredQuery, Text: "SELECT id, body FROM notes WHERE body LIKE {q} AND author = {author}"},
		},
	}
}

func TestRenderHostCommand(t *testing.T) {
	inst, err := Render(hostProvider(), "find", map[string]any{
		"root":    "/tmp",
		"pattern": "*.go",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if inst.Domain != provider.DomainHostCommand {
		t.Errorf("domain = %s, want host_command", inst.Domain)
	}
	if inst.Literal != "find /tmp -name '*.go'" {
		t.Errorf("literal = %q", inst.Literal)
	}
	if inst.Params != nil {
		t.Errorf("host command should carry no bind params, got %v", inst.Params)
	}
	if inst.RequestID == "" {
		t.Error("request id should be set")
	}
}

func TestRenderHostCommandQuotesInjection(t *testing.T) {
	inst, err := Render(hostProvider(), "find", map[string]any{
		"root":    "/tmp",
		"pattern": "x; rm -rf /",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if inst.Literal != "find /tmp -name 'x; rm -rf /'" {
		t.Errorf("hostile value must stay quoted, got %q", inst.Literal)
	}
}

func TestRenderStructuredQueryBindsParams(t *testing.T) {
	inst, err := Render(queryProvider(), "search", map[string]any{
		"q":      "%meeting%",
		"author": "ada",
	})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if inst.Literal != "SELECT id, body FROM notes WHERE body LIKE ? AND author = ?" {
		t.Errorf("literal = %q", inst.Literal)
	}
	want := []any{"%meeting%", "ada"}
	if diff := cmp.Diff(want, inst.Params); diff != "" {
		t.Errorf("params mismatch (-want +got):\n%s", diff)
	}
}

func TestRenderMissingArgument(t *testing.T) {
	_, err := Render(hostProvider(), "find", map[string]any{"root": "/tmp"})
	var missing *MissingArgumentError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingArgumentError, got %v", err)
	}
	if missing.Name != "pattern" {
		t.Errorf("missing argument = %q, want pattern", missing.Name)
	}
}

func TestRenderUnknownVerb(t *testing.T) {
	_, err := Render(hostProvider(), "destroy", nil)
	var tplErr *TemplateError
	if !errors.As(err, &tplErr) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
}

func TestRenderUnclosedPlaceholder(t *testing.T) {
	p := &provider.Provider{
		Name:  "broken",
		Verbs: []string{"go"},
		Templates: map[string]provider.Template{
			"go": {Domain: provider.DomainHostCommand, Text: "echo {msg"},
		},
	}
	_, err := Render(p, "go", map[string]any{"msg": "hi"})
	var tplErr *TemplateError
	if !errors.As(err, &tplErr) {
		t.Fatalf("expected TemplateError, got %v", err)
	}
}

func TestRenderRepeatedPlaceholder(t *testing.T) {
	p := &provider.Provider{
		Name:  "notes",
		Verbs: []string{"dup"},
		Templates: map[string]provider.Template{
			"dup": {Domain: provider.DomainStructuredQuery, Text: "SELECT * FROM notes WHERE a = {v} OR b = {v}"},
		},
	}
	inst, err := Render(p, "dup", map[string]any{"v": 42})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	if len(inst.Params) != 2 {
		t.Errorf("repeated marker should bind twice, got %v", inst.Params)
	}
}

func TestRedactedLiteral(t *testing.T) {
	p := &provider.Provider{
		Name:  "auth",
		Verbs: []string{"login"},
		Templates: map[string]provider.Template{
			"login": {Domain: provider.DomainHostCommand, Text: "svc-login --user {user} --password {password}"},
		},
	}
	inst, err := Render(p, "login", map[string]any{"user": "ada", "password": "hunter2"})
	if err != nil {
		t.Fatalf("Render failed: %v", err)
	}
	red := inst.RedactedLiteral()
	if red == inst.Literal {
		t.Error("redacted literal should differ from raw literal")
	}
	if want := "svc-login --user ada --password ***"; red != want {
		t.Errorf("redacted = %q, want %q", red, want)
	}
}
