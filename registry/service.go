package registry

import (
	"context"
	"encoding/json"
	"ext-bridge/message"
	"fmt"
	"log/slog"
	"reflect"
	"unicode"
	"unicode/utf8"
)

// RawHandler serves one method with the undecoded positional arguments. The returned
// value is marshalled as the response payload.
type RawHandler func(ctx context.Context, args []json.RawMessage) (any, error)

var (
	errorType   = reflect.TypeOf((*error)(nil)).Elem()
	contextType = reflect.TypeOf((*context.Context)(nil)).Elem()
)

// methodType describes one reflected handler method.
type methodType struct {
	method     reflect.Method
	withCtx    bool
	argTypes   []reflect.Type
	withResult bool
}

// service is the set of handlers registered under one service id. A service is never
// modified once the registry publishes it; changes publish a modified clone.
type service struct {
	id      message.ServiceID
	rcvr    reflect.Value
	methods map[string]*methodType
	raw     map[string]RawHandler
}

func newService(id message.ServiceID) *service {
	return &service{
		id:      id,
		methods: make(map[string]*methodType),
		raw:     make(map[string]RawHandler),
	}
}

// clone returns a copy whose handler maps can be changed without affecting s.
func (s *service) clone() *service {
	c := newService(s.id)
	c.rcvr = s.rcvr
	for name, mt := range s.methods {
		c.methods[name] = mt
	}
	for name, h := range s.raw {
		c.raw[name] = h
	}
	return c
}

// register scans rcvr for exported methods of the form
//
//	func (r *T) Name([ctx context.Context,] args...) error
//	func (r *T) Name([ctx context.Context,] args...) (R, error)
//
// and exposes each under its name with the first rune lower-cased.
func (s *service) register(rcvr any) (int, error) {
	typ := reflect.TypeOf(rcvr)
	if typ == nil || typ.Kind() != reflect.Ptr {
		return 0, fmt.Errorf("registry: receiver for %s must be a pointer, got %T", s.id, rcvr)
	}
	s.rcvr = reflect.ValueOf(rcvr)

	count := 0
	for i := 0; i < typ.NumMethod(); i++ {
		method := typ.Method(i)
		mt, ok := inspect(method)
		if !ok {
			continue
		}
		s.methods[wireName(method.Name)] = mt
		count++
	}
	if count == 0 {
		return 0, fmt.Errorf("registry: %T has no methods usable as handlers", rcvr)
	}
	return count, nil
}

func inspect(method reflect.Method) (*methodType, bool) {
	mtype := method.Type
	if mtype.IsVariadic() {
		return nil, false
	}

	switch mtype.NumOut() {
	case 1:
		if mtype.Out(0) != errorType {
			return nil, false
		}
	case 2:
		if mtype.Out(1) != errorType {
			return nil, false
		}
	default:
		return nil, false
	}

	mt := &methodType{method: method, withResult: mtype.NumOut() == 2}
	// In(0) is the receiver
	first := 1
	if mtype.NumIn() > 1 && mtype.In(1) == contextType {
		mt.withCtx = true
		first = 2
	}
	for i := first; i < mtype.NumIn(); i++ {
		mt.argTypes = append(mt.argTypes, mtype.In(i))
	}
	return mt, true
}

func wireName(name string) string {
	r, size := utf8.DecodeRuneInString(name)
	return string(unicode.ToLower(r)) + name[size:]
}

// has reports whether method is served by s.
func (s *service) has(method string) bool {
	if _, ok := s.raw[method]; ok {
		return true
	}
	_, ok := s.methods[method]
	return ok
}

// call decodes args, invokes the handler for method and returns its result.
// Missing trailing arguments take their zero value; surplus arguments are rejected.
func (s *service) call(ctx context.Context, method string, args []json.RawMessage) (any, error) {
	if h, ok := s.raw[method]; ok {
		return safeCall(s.id, method, func() (any, error) { return h(ctx, args) })
	}

	mt := s.methods[method]
	if len(args) > len(mt.argTypes) {
		return nil, message.NewFault(message.CodeBadArguments, "%s.%s takes %d arguments, got %d", s.id, method, len(mt.argTypes), len(args))
	}

	in := make([]reflect.Value, 0, len(mt.argTypes)+2)
	in = append(in, s.rcvr)
	if mt.withCtx {
		in = append(in, reflect.ValueOf(ctx))
	}
	for i, argType := range mt.argTypes {
		argv := reflect.New(argType)
		if i < len(args) {
			if err := json.Unmarshal(args[i], argv.Interface()); err != nil {
				return nil, message.NewFault(message.CodeBadArguments, "%s.%s argument %d: %v", s.id, method, i, err)
			}
		}
		in = append(in, argv.Elem())
	}

	return safeCall(s.id, method, func() (any, error) {
		results := mt.method.Func.Call(in)
		errv := results[len(results)-1]
		if !errv.IsNil() {
			return nil, errv.Interface().(error)
		}
		if mt.withResult {
			return results[0].Interface(), nil
		}
		return nil, nil
	})
}

// safeCall runs fn and turns a panic into a HandlerFault, so a failing handler never
// takes the session down regardless of the middleware in front of it.
func safeCall(id message.ServiceID, method string, fn func() (any, error)) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error(fmt.Sprintf("%s - handler %s.%s panicked: %v", logPrefix, id, method, r))
			result, err = nil, message.NewFault(message.CodeHandlerFault, "panic in %s.%s: %v", id, method, r)
		}
	}()
	return fn()
}
