package host

import (
	"sort"
	"strings"

	"github.com/valyala/fasthttp"

	"github.com/saiset-co/sai-pipeline/types"
)

// Route binds a method and path pattern to a view function. Pattern
// segments starting with ':' capture path parameters.
type Route struct {
	Method  string
	Pattern string
	Scopes  []string
	View    types.ViewFunc

	// ProvideAutomaticOptions lets the host answer OPTIONS for this path
	// when no explicit OPTIONS route exists.
	ProvideAutomaticOptions bool

	segments []string
	dynamic  bool
}

// Handle registers a route. Scope names are ordered innermost first; they
// select which scoped hooks and error handlers apply to the route.
func (a *App) Handle(method, pattern string, view types.ViewFunc, scopes ...string) error {
	if view == nil {
		return types.Errorf(types.ErrViewIsNil, "%s %s", method, pattern)
	}

	method = strings.ToUpper(method)
	pattern = normalizePath(pattern)

	route := &Route{
		Method:                  method,
		Pattern:                 pattern,
		Scopes:                  scopes,
		View:                    view,
		ProvideAutomaticOptions: true,
		segments:                splitPath(pattern),
	}
	for _, segment := range route.segments {
		if strings.HasPrefix(segment, ":") {
			route.dynamic = true
			break
		}
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if route.dynamic {
		a.dynamicRoutes = append(a.dynamicRoutes, route)
	} else {
		key := method + ":" + pattern
		if _, ok := a.staticRoutes[key]; ok {
			return types.Errorf(types.ErrRouteAlreadyExists, "%s %s", method, pattern)
		}
		a.staticRoutes[key] = route
	}

	return nil
}

func (a *App) GET(pattern string, view types.ViewFunc, scopes ...string) error {
	return a.Handle(fasthttp.MethodGet, pattern, view, scopes...)
}

func (a *App) POST(pattern string, view types.ViewFunc, scopes ...string) error {
	return a.Handle(fasthttp.MethodPost, pattern, view, scopes...)
}

func (a *App) PUT(pattern string, view types.ViewFunc, scopes ...string) error {
	return a.Handle(fasthttp.MethodPut, pattern, view, scopes...)
}

func (a *App) DELETE(pattern string, view types.ViewFunc, scopes ...string) error {
	return a.Handle(fasthttp.MethodDelete, pattern, view, scopes...)
}

func (a *App) PATCH(pattern string, view types.ViewFunc, scopes ...string) error {
	return a.Handle(fasthttp.MethodPatch, pattern, view, scopes...)
}

// bindRoute resolves the request's route during context push. Resolution
// failures are recorded on the context, not raised, so that interceptors
// still run for unroutable requests.
func (a *App) bindRoute(ctx *types.RequestCtx) {
	method := strings.ToUpper(string(ctx.Method()))
	path := normalizePath(string(ctx.Path()))

	if route, params := a.matchRoute(method, path); route != nil {
		ctx.SetUserValue(routeKey, route)
		ctx.SetUserValue(paramsKey, params)
		return
	}

	allowed := a.allowedMethods(path)
	switch {
	case len(allowed) == 0:
		ctx.SetUserValue(routingErrKey,
			types.NewHTTPError(fasthttp.StatusNotFound, "The requested URL was not found on the server."))
	case method == fasthttp.MethodOptions:
		ctx.SetUserValue(autoOptsKey, allowed)
	default:
		ctx.SetUserValue(routingErrKey,
			types.NewHTTPError(fasthttp.StatusMethodNotAllowed, "The method is not allowed for the requested URL."))
	}
}

func (a *App) matchRoute(method, path string) (*Route, map[string]string) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if route, ok := a.staticRoutes[method+":"+path]; ok {
		return route, map[string]string{}
	}

	segments := splitPath(path)
	for _, route := range a.dynamicRoutes {
		if route.Method != method {
			continue
		}
		if params, ok := matchSegments(route.segments, segments); ok {
			return route, params
		}
	}

	return nil, nil
}

// allowedMethods lists the methods that have a route for the path, for 405
// responses and automatic OPTIONS.
func (a *App) allowedMethods(path string) []string {
	a.mu.RLock()
	defer a.mu.RUnlock()

	seen := map[string]bool{}
	segments := splitPath(path)

	for _, route := range a.staticRoutes {
		if route.Pattern == path {
			seen[route.Method] = true
		}
	}
	for _, route := range a.dynamicRoutes {
		if _, ok := matchSegments(route.segments, segments); ok {
			seen[route.Method] = true
		}
	}

	if len(seen) == 0 {
		return nil
	}
	if seen[fasthttp.MethodGet] {
		seen[fasthttp.MethodHead] = true
	}
	seen[fasthttp.MethodOptions] = true

	allowed := make([]string, 0, len(seen))
	for method := range seen {
		allowed = append(allowed, method)
	}
	sort.Strings(allowed)
	return allowed
}

// DispatchRoute invokes the matched view. A routing failure recorded at
// push time is raised here, after the interceptor chain has run, matching
// the host's bind-early-raise-late routing contract.
func (a *App) DispatchRoute(ctx *types.RequestCtx) (interface{}, error) {
	if rerr, ok := ctx.UserValue(routingErrKey).(*types.HTTPError); ok {
		return nil, rerr
	}

	if allowed, ok := ctx.UserValue(autoOptsKey).([]string); ok {
		return &optionsResponse{allowed: allowed}, nil
	}

	route, ok := ctx.UserValue(routeKey).(*Route)
	if !ok {
		return nil, types.Errorf(types.ErrContextNotPushed, "%s", string(ctx.Path()))
	}

	return route.View(ctx)
}

func (a *App) RouteScopes(ctx *types.RequestCtx) []string {
	route, ok := ctx.UserValue(routeKey).(*Route)
	if !ok || len(route.Scopes) == 0 {
		return nil
	}
	scopes := make([]string, len(route.Scopes))
	copy(scopes, route.Scopes)
	return scopes
}

func (a *App) RouteParams(ctx *types.RequestCtx) map[string]string {
	if params, ok := ctx.UserValue(paramsKey).(map[string]string); ok {
		return params
	}
	return map[string]string{}
}

func normalizePath(path string) string {
	if path == "" {
		return "/"
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimSuffix(path, "/")
	}
	return path
}

func splitPath(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

func matchSegments(pattern, actual []string) (map[string]string, bool) {
	if len(pattern) != len(actual) {
		return nil, false
	}
	params := map[string]string{}
	for i, segment := range pattern {
		if strings.HasPrefix(segment, ":") {
			params[segment[1:]] = actual[i]
			continue
		}
		if segment != actual[i] {
			return nil, false
		}
	}
	return params, true
}
