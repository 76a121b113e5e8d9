package rpc

import (
	"fmt"
	"reflect"

	"github.com/progrium/boxmux/box"
)

var (
	callType  = reflect.TypeOf(&Call{})
	boxType   = reflect.TypeOf(&box.Box{})
	errorType = reflect.TypeOf((*error)(nil)).Elem()
)

// HandlerFrom uses reflection to return a handler from either a function or
// the methods of a struct. When a struct is used, HandlerFrom creates a
// RespondMux registering each exported method as a command using its
// method name.
//
// Function parameters are filled in order: a *Call receives the call, a
// *box.Box receives the raw arguments and any other type is decoded from
// the arguments with Decode. Functions can return nothing, a single value
// which can be an error, or a value and an error. In the latter case, the
// value is returned if the error is nil, otherwise just the error is
// returned.
func HandlerFrom(v interface{}) Handler {
	rv := reflect.ValueOf(v)
	switch reflect.Indirect(rv).Kind() {
	case reflect.Func:
		return fromFunc(rv, reflect.Value{})
	case reflect.Struct:
		return fromMethods(rv)
	default:
		panic("rpc.HandlerFrom: must be func or struct")
	}
}

func fromMethods(rcvr reflect.Value) Handler {
	t := rcvr.Type()
	mux := NewRespondMux()
	for i := 0; i < t.NumMethod(); i++ {
		m := t.Method(i)
		if m.Name == "RespondRPC" {
			continue
		}
		mux.Handle(m.Name, fromFunc(m.Func, rcvr))
	}
	return mux
}

func fromFunc(fn reflect.Value, rcvr reflect.Value) Handler {
	fntyp := fn.Type()
	if fntyp.NumOut() > 2 {
		panic(fmt.Sprintf("rpc.HandlerFrom: %s returns more than two values", fntyp))
	}

	return HandlerFunc(func(r Responder, c *Call) {
		var params []reflect.Value
		if rcvr.IsValid() {
			params = append(params, rcvr)
		}
		for idx := len(params); idx < fntyp.NumIn(); idx++ {
			switch in := fntyp.In(idx); in {
			case callType:
				params = append(params, reflect.ValueOf(c))
			case boxType:
				params = append(params, reflect.ValueOf(c.Args))
			default:
				arg := reflect.New(in)
				if err := c.Decode(arg.Interface()); err != nil {
					r.Return(fmt.Errorf("rpc: args: %w", err))
					return
				}
				params = append(params, arg.Elem())
			}
		}
		r.Return(parseReturn(fn.Call(params)))
	})
}

// parseReturn turns a slice of reflect.Values into a value or an error
func parseReturn(ret []reflect.Value) interface{} {
	var value interface{}
	for _, v := range ret {
		if v.Type().Implements(errorType) {
			if !v.IsNil() {
				return v.Interface().(error)
			}
			continue
		}
		value = v.Interface()
	}
	return value
}
