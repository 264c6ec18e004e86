package pipeline

import (
	"reflect"
	"sync"

	"go.uber.org/zap"

	"github.com/saiset-co/sai-pipeline/types"
)

const MaxMiddlewares = 64

// Registry is the ordered middleware collection, built once at application
// setup. New registrations are inserted at the front, so the first
// registered unit ends up at the tail and runs outermost. Registration must
// finish before traffic starts; the request path reads snapshots without
// locking, so registering concurrently with requests is a programmer error.
type Registry struct {
	mu     sync.Mutex
	units  []types.Middleware
	logger types.Logger
}

func NewRegistry(logger types.Logger) *Registry {
	return &Registry{
		units:  make([]types.Middleware, 0, 8),
		logger: logger,
	}
}

// Register constructs a unit via factory(options) and inserts it at index 0.
// The registry is left untouched when construction fails or the constructed
// value does not satisfy the middleware contract.
func (r *Registry) Register(factory types.MiddlewareFactory, options types.Options) error {
	if factory == nil {
		return types.Errorf(types.ErrMiddlewareRegistration, "factory is nil")
	}

	unit, err := factory(options)
	if err != nil {
		return types.Errorf(types.ErrMiddlewareRegistration, "factory failed: %v", err)
	}

	if !isUsableUnit(unit) {
		return types.Errorf(types.ErrMiddlewareRegistration, "constructed unit does not satisfy the middleware contract")
	}

	name := unit.Name()
	if name == "" {
		return types.Errorf(types.ErrMiddlewareRegistration, "unit has no name")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.units) >= MaxMiddlewares {
		return types.Errorf(types.ErrMiddlewareRegistration, "maximum middleware count exceeded: %d", MaxMiddlewares)
	}

	r.units = append([]types.Middleware{unit}, r.units...)

	if r.logger != nil {
		r.logger.Info("Middleware registered",
			zap.String("name", name),
			zap.Int("position", 0),
			zap.Int("total", len(r.units)))
	}

	return nil
}

// Snapshot returns an independent copy of the current contents, tail =
// outermost unit. Requests copy once at start, so later registry mutations
// never reach in-flight requests.
func (r *Registry) Snapshot() []types.Middleware {
	r.mu.Lock()
	defer r.mu.Unlock()

	snapshot := make([]types.Middleware, len(r.units))
	copy(snapshot, r.units)
	return snapshot
}

func (r *Registry) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.units)
}

// isUsableUnit rejects nil units, including typed nils hiding behind the
// interface.
func isUsableUnit(unit types.Middleware) bool {
	if unit == nil {
		return false
	}
	v := reflect.ValueOf(unit)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Func, reflect.Chan, reflect.Interface:
		return !v.IsNil()
	default:
		return true
	}
}
