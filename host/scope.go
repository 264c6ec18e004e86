package host

import (
	"strings"

	"github.com/saiset-co/sai-pipeline/types"
)

// Scope groups routes under a shared URL prefix and name. Scopes nest;
// hooks and error handlers registered on a scope apply to every route it
// owns, with inner scopes taking precedence over outer ones and outer ones
// over the global scope.
type Scope struct {
	app    *App
	name   string
	parent *Scope
	prefix string
}

// NewScope creates a top-level scope. Scope names must be unique across
// the application because hooks are keyed by name.
func (a *App) NewScope(name, prefix string) (*Scope, error) {
	return a.newScope(name, prefix, nil)
}

// NewScope creates a child scope nested under s.
func (s *Scope) NewScope(name, prefix string) (*Scope, error) {
	return s.app.newScope(name, prefix, s)
}

func (a *App) newScope(name, prefix string, parent *Scope) (*Scope, error) {
	if name == "" {
		return nil, types.ErrScopeNameIsEmpty
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.scopes[name]; ok {
		return nil, types.Errorf(types.ErrScopeAlreadyExists, "%s", name)
	}

	scope := &Scope{
		app:    a,
		name:   name,
		parent: parent,
		prefix: normalizePrefix(prefix),
	}
	a.scopes[name] = scope
	return scope, nil
}

// chain lists the scope names innermost first. Routes carry this chain so
// hook and handler lookup can walk from the most specific scope outward.
func (s *Scope) chain() []string {
	names := make([]string, 0, 2)
	for scope := s; scope != nil; scope = scope.parent {
		names = append(names, scope.name)
	}
	return names
}

func (s *Scope) fullPrefix() string {
	if s.parent == nil {
		return s.prefix
	}
	return s.parent.fullPrefix() + s.prefix
}

func (s *Scope) Handle(method, pattern string, view types.ViewFunc) error {
	return s.app.Handle(method, s.fullPrefix()+pattern, view, s.chain()...)
}

func (s *Scope) GET(pattern string, view types.ViewFunc) error {
	return s.Handle("GET", pattern, view)
}

func (s *Scope) POST(pattern string, view types.ViewFunc) error {
	return s.Handle("POST", pattern, view)
}

func (s *Scope) PUT(pattern string, view types.ViewFunc) error {
	return s.Handle("PUT", pattern, view)
}

func (s *Scope) DELETE(pattern string, view types.ViewFunc) error {
	return s.Handle("DELETE", pattern, view)
}

func (s *Scope) BeforeRequest(fn types.BeforeRequestHook) {
	s.app.RegisterBeforeRequest(s.name, fn)
}

func (s *Scope) AfterRequest(fn types.AfterRequestHook) {
	s.app.RegisterAfterRequest(s.name, fn)
}

func (s *Scope) URLValuePreprocessor(fn types.URLValuePreprocessor) {
	s.app.RegisterURLValuePreprocessor(s.name, fn)
}

func (s *Scope) ErrorHandler(target error, fn types.ErrorHandlerFunc) {
	s.app.RegisterErrorHandler(s.name, target, fn)
}

func (s *Scope) StatusHandler(code int, fn types.ErrorHandlerFunc) {
	s.app.RegisterStatusHandler(s.name, code, fn)
}

func normalizePrefix(prefix string) string {
	if prefix == "" || prefix == "/" {
		return ""
	}
	if !strings.HasPrefix(prefix, "/") {
		prefix = "/" + prefix
	}
	return strings.TrimSuffix(prefix, "/")
}
