package lifecycle

import (
	"github.com/saiset-co/sai-pipeline/types"
)

// Preprocess applies URL-value preprocessors and then before-request hooks,
// iterating scopes from the innermost route scope to the global scope
// (empty name) last. Preprocessors run for side effects only. The first
// before-request hook returning a non-nil value short-circuits the rest and
// becomes the response.
func Preprocess(host types.HostApp, ctx *types.RequestCtx) (interface{}, error) {
	scopes := append(host.RouteScopes(ctx), "")
	params := host.RouteParams(ctx)

	for _, scope := range scopes {
		for _, preprocessor := range host.URLValuePreprocessors(scope) {
			preprocessor(ctx, params)
		}
	}

	for _, scope := range scopes {
		for _, hook := range host.BeforeRequestHooks(scope) {
			rv, err := hook(ctx)
			if err != nil {
				return nil, err
			}
			if rv != nil {
				return rv, nil
			}
		}
	}

	return nil, nil
}
