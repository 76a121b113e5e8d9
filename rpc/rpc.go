// Package rpc implements ask/answer commands carried in boxes on a route.
//
// A command box names the command under "_command" and, when an answer is
// wanted, a per-peer counter under "_ask". The remaining keys are the
// arguments. Answers echo the counter under "_answer"; failures echo it
// under "_error" together with "_error_code" and "_error_description".
package rpc

import (
	"context"
	"fmt"
	"sort"

	"github.com/mitchellh/mapstructure"
	"github.com/progrium/boxmux/box"
)

// Caller makes commands to the remote side of a route.
type Caller interface {
	Call(ctx context.Context, command string, args, reply interface{}) (*box.Box, error)
}

// Call is an incoming command.
type Call struct {
	Command string
	Args    *box.Box

	// Caller can be used to make commands back to the peer. It must not
	// be waited on from inside a handler: handlers run on the goroutine
	// that would deliver the answer.
	Caller  Caller
	Context context.Context
}

// Decode stores the call arguments in v. See Decode.
func (c *Call) Decode(v interface{}) error {
	return Decode(c.Args, v)
}

// Decode stores the keys of b in the struct or map pointed to by v.
// Struct fields are matched by their "box" tag and converted from
// their string form.
func Decode(b *box.Box, v interface{}) error {
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName:          "box",
		WeaklyTypedInput: true,
		Result:           v,
	})
	if err != nil {
		return err
	}
	input := make(map[string]interface{}, b.Len())
	b.Each(func(key string, value []byte) {
		input[key] = string(value)
	})
	return dec.Decode(input)
}

// Encode converts v to a box. A *box.Box is copied, maps and structs
// have their fields written in key order using the "box" tag, and nil
// gives an empty box.
func Encode(v interface{}) (*box.Box, error) {
	switch x := v.(type) {
	case nil:
		return box.New(), nil
	case *box.Box:
		return x.Clone(), nil
	}

	var m map[string]interface{}
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		TagName: "box",
		Result:  &m,
	})
	if err != nil {
		return nil, err
	}
	if err := dec.Decode(v); err != nil {
		return nil, fmt.Errorf("rpc: encoding %T: %w", v, err)
	}

	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b := box.New()
	for _, k := range keys {
		switch val := m[k].(type) {
		case nil:
		case string:
			b.SetString(k, val)
		case []byte:
			b.Set(k, val)
		default:
			b.SetString(k, fmt.Sprint(val))
		}
	}
	return b, nil
}
