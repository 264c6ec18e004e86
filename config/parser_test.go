package config

import (
	"errors"
	"testing"

	"github.com/saiset-co/sai-pipeline/types"
)

func newTestParser(t *testing.T) *Parser {
	t.Helper()

	cfg := NewLoader().Defaults()
	cfg.Name = "svc"
	cfg.Version = "1.0.0"
	cfg.App = map[string]interface{}{
		"greeting": "hi",
		"limits": map[string]interface{}{
			"max_items": 25,
		},
	}
	return NewParser(cfg)
}

func TestParserResolvesDottedPaths(t *testing.T) {
	p := newTestParser(t)

	if got := p.GetValue("name", ""); got != "svc" {
		t.Fatalf("name = %v", got)
	}
	if got := p.GetValue("server.http.port", 0); got != 8080 {
		t.Fatalf("port = %v", got)
	}
	if got := p.GetValue("app.greeting", "hello"); got != "hi" {
		t.Fatalf("app.greeting = %v", got)
	}
	if got := p.GetValue("app.limits.max_items", 0); got != 25 {
		t.Fatalf("app.limits.max_items = %v", got)
	}
}

func TestParserFallsBackToDefault(t *testing.T) {
	p := newTestParser(t)

	if got := p.GetValue("app.missing", "fallback"); got != "fallback" {
		t.Fatalf("default not returned: %v", got)
	}
	if got := p.GetValue("nope.deeper.still", 42); got != 42 {
		t.Fatalf("default not returned: %v", got)
	}
}

func TestParserGetAsDecodesSection(t *testing.T) {
	p := newTestParser(t)

	var limits struct {
		MaxItems int `yaml:"max_items"`
	}
	if err := p.GetAs("app.limits", &limits); err != nil {
		t.Fatalf("GetAs: %v", err)
	}
	if limits.MaxItems != 25 {
		t.Fatalf("max_items = %d, want 25", limits.MaxItems)
	}

	if err := p.GetAs("app.absent", &limits); !errors.Is(err, types.ErrConfigNotFound) {
		t.Fatalf("expected not-found error, got %v", err)
	}
}
