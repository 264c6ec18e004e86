package pipeline

import (
	"github.com/saiset-co/sai-pipeline/types"
)

const stackKey = "sai.pipeline.stack"

// RequestStack is the request-scoped execution list: a shallow copy of the
// registry taken when the request began. The dispatcher pops from the tail
// and restores on every exit path, so the stack always returns to its prior
// shape no matter how a nested call exits. One stack per in-flight request,
// never shared.
type RequestStack struct {
	units []types.Middleware
}

func newRequestStack(units []types.Middleware) *RequestStack {
	return &RequestStack{units: units}
}

func (s *RequestStack) Depth() int {
	return len(s.units)
}

func (s *RequestStack) pop() types.Middleware {
	last := len(s.units) - 1
	unit := s.units[last]
	s.units = s.units[:last]
	return unit
}

func (s *RequestStack) push(unit types.Middleware) {
	s.units = append(s.units, unit)
}

// AttachStack binds a fresh stack to the request's dispatch context.
func AttachStack(ctx *types.RequestCtx, stack *RequestStack) {
	ctx.SetUserValue(stackKey, stack)
}

// StackFromRequest returns the request's stack, or nil when the per-request
// builder never ran (requests arriving outside the lifecycle runner).
func StackFromRequest(ctx *types.RequestCtx) *RequestStack {
	stack, _ := ctx.UserValue(stackKey).(*RequestStack)
	return stack
}
