package server

import (
	"context"
	"fmt"
	"reflect"
	"sync"

	"golang.org/x/oauth2"
)

// GrantHandler runs the validation pipeline of one grant type and returns
// the token minted by the TokenIssuer.
type GrantHandler interface {
	// GrantType returns the grant_type value this handler serves
	GrantType() string

	// Handle validates req and issues a token. Failures are *Error values.
	Handle(ctx context.Context, req *TokenRequest) (*oauth2.Token, error)
}

// GrantHandlerFactory builds a grant handler from the injected dependencies
type GrantHandlerFactory func(deps *Dependencies) (GrantHandler, error)

// ResponseTypeHandler runs the authorization endpoint pipeline of one
// response type.
type ResponseTypeHandler interface {
	// ResponseType returns the response_type value this handler serves
	ResponseType() string

	// Handle validates req and returns where to send the user agent
	Handle(ctx context.Context, req *AuthorizeRequest) (*AuthorizeResponse, error)
}

// ResponseTypeHandlerFactory builds a response type handler from the injected dependencies
type ResponseTypeHandlerFactory func(deps *Dependencies) (ResponseTypeHandler, error)

// registry is an insertion-ordered map from type identifier to factory.
// The first registered identifier is the default.
type registry[H any] struct {
	deps      *Dependencies
	mu        sync.RWMutex
	order     []string
	factories map[string]func(*Dependencies) (H, error)
}

func (r *registry[H]) init(deps *Dependencies) {
	r.deps = deps
	r.factories = make(map[string]func(*Dependencies) (H, error))
}

func (r *registry[H]) register(id string, factory func(*Dependencies) (H, error)) error {
	if id == "" {
		return fmt.Errorf("type identifier cannot be empty")
	}
	if factory == nil {
		return fmt.Errorf("factory for %q cannot be nil", id)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.factories[id]; exists {
		return fmt.Errorf("%q is already registered", id)
	}
	r.factories[id] = factory
	r.order = append(r.order, id)
	return nil
}

func (r *registry[H]) resolve(id string) (H, error) {
	var zero H

	r.mu.RLock()
	if id == "" && len(r.order) > 0 {
		id = r.order[0]
	}
	factory, ok := r.factories[id]
	r.mu.RUnlock()

	if !ok {
		return zero, ErrUnsupportedGrantType(DescUnsupportedGrantType)
	}

	handler, err := factory(r.deps)
	if err != nil {
		r.deps.logger().Error("Handler factory failed", "type", id, "error", err)
		return zero, ErrUnsupportedGrantType(DescUnsupportedGrantType)
	}
	if isNil(handler) {
		r.deps.logger().Error("Handler factory returned no handler", "type", id)
		return zero, ErrUnsupportedGrantType(DescUnsupportedGrantType)
	}
	return handler, nil
}

// isNil reports whether h is nil or an interface holding a nil pointer
func isNil(h any) bool {
	if h == nil {
		return true
	}
	v := reflect.ValueOf(h)
	switch v.Kind() {
	case reflect.Pointer, reflect.Map, reflect.Slice, reflect.Func, reflect.Interface, reflect.Chan:
		return v.IsNil()
	}
	return false
}

func (r *registry[H]) types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return append([]string(nil), r.order...)
}

// GrantTypeRegistry maps grant_type values to handler factories
type GrantTypeRegistry struct {
	r registry[GrantHandler]
}

// NewGrantTypeRegistry creates an empty registry whose handlers are built from deps
func NewGrantTypeRegistry(deps *Dependencies) *GrantTypeRegistry {
	g := &GrantTypeRegistry{}
	g.r.init(deps)
	return g
}

// Register adds a factory for grantType. Registering an empty or duplicate
// grant type is an error.
func (g *GrantTypeRegistry) Register(grantType string, factory GrantHandlerFactory) error {
	return g.r.register(grantType, factory)
}

// Resolve builds the handler for grantType. An empty grantType resolves to
// the first registered handler. Unknown types, failing factories and nil
// handlers yield unsupported_grant_type.
func (g *GrantTypeRegistry) Resolve(grantType string) (GrantHandler, error) {
	return g.r.resolve(grantType)
}

// Types returns the registered grant types in registration order
func (g *GrantTypeRegistry) Types() []string {
	return g.r.types()
}

// ResponseTypeRegistry maps response_type values to handler factories.
// It follows the same contract as GrantTypeRegistry.
type ResponseTypeRegistry struct {
	r registry[ResponseTypeHandler]
}

// NewResponseTypeRegistry creates an empty registry whose handlers are built from deps
func NewResponseTypeRegistry(deps *Dependencies) *ResponseTypeRegistry {
	rt := &ResponseTypeRegistry{}
	rt.r.init(deps)
	return rt
}

// Register adds a factory for responseType
func (rt *ResponseTypeRegistry) Register(responseType string, factory ResponseTypeHandlerFactory) error {
	return rt.r.register(responseType, factory)
}

// Resolve builds the handler for responseType; see GrantTypeRegistry.Resolve
func (rt *ResponseTypeRegistry) Resolve(responseType string) (ResponseTypeHandler, error) {
	return rt.r.resolve(responseType)
}

// Types returns the registered response types in registration order
func (rt *ResponseTypeRegistry) Types() []string {
	return rt.r.types()
}
