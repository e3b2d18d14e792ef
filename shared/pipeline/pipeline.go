// Package pipeline runs command and query handlers through an ordered chain
// of behaviors. Each behavior receives the request and a continuation for the
// rest of the chain, so cross-cutting concerns like logging, validation and
// transactions wrap the handler without the handler knowing about them.
package pipeline

import (
	"context"
	"fmt"
	"reflect"
)

// Next invokes the remaining behaviors and finally the handler.
type Next func(ctx context.Context) (any, error)

// Behavior is one stage of the pipeline.
type Behavior interface {
	Handle(ctx context.Context, req any, next Next) (any, error)
}

// BehaviorFunc adapts a function to Behavior.
type BehaviorFunc func(ctx context.Context, req any, next Next) (any, error)

func (f BehaviorFunc) Handle(ctx context.Context, req any, next Next) (any, error) {
	return f(ctx, req, next)
}

// Handler is the terminal stage that actually serves a request.
type Handler func(ctx context.Context, req any) (any, error)

// Pipeline is an immutable ordered list of behaviors. The first behavior is
// outermost. A Pipeline is safe for concurrent use.
type Pipeline struct {
	behaviors []Behavior
}

// New returns a pipeline running behaviors in the given order.
func New(behaviors ...Behavior) *Pipeline {
	bs := make([]Behavior, len(behaviors))
	copy(bs, behaviors)
	return &Pipeline{behaviors: bs}
}

// Execute runs req through every behavior and then h.
func (p *Pipeline) Execute(ctx context.Context, req any, h Handler) (any, error) {
	var run func(i int) Next
	run = func(i int) Next {
		return func(ctx context.Context) (any, error) {
			if i == len(p.behaviors) {
				return h(ctx, req)
			}
			return p.behaviors[i].Handle(ctx, req, run(i+1))
		}
	}
	return run(0)(ctx)
}

// Send runs req through p and hands it to a typed handler.
func Send[Req, Resp any](ctx context.Context, p *Pipeline, req Req, h func(context.Context, Req) (Resp, error)) (Resp, error) {
	out, err := p.Execute(ctx, req, func(ctx context.Context, r any) (any, error) {
		return h(ctx, r.(Req))
	})
	if err != nil {
		var zero Resp
		return zero, err
	}
	resp, ok := out.(Resp)
	if !ok && out != nil {
		var zero Resp
		return zero, fmt.Errorf("pipeline: handler for %s returned %T", RequestName(req), out)
	}
	return resp, nil
}

// RequestName returns the type name of req, without package or pointer.
func RequestName(req any) string {
	t := reflect.TypeOf(req)
	if t == nil {
		return "<nil>"
	}
	for t.Kind() == reflect.Pointer {
		t = t.Elem()
	}
	if t.Name() == "" {
		return t.String()
	}
	return t.Name()
}
