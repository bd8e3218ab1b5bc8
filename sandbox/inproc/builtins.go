package inproc

import (
	"fmt"

	starjson "go.starlark.net/lib/json"
	starmath "go.starlark.net/lib/math"
	"go.starlark.net/starlark"
)

var exceptionNames = []string{
	"Exception",
	"ValueError",
	"TypeError",
	"KeyError",
	"IndexError",
	"RuntimeError",
	"ZeroDivisionError",
}

func predeclared() starlark.StringDict {
	d := starlark.StringDict{
		"frame": frameModule,
		"plot":  plotModule,
		"json":  starjson.Module,
		"math":  starmath.Module,
	}
	for _, name := range exceptionNames {
		d[name] = starlark.NewBuiltin(name, newException)
	}
	return d
}

// exception is the value produced by ValueError("...") and friends. Passed
// to fail, it reports "ValueError: ..." as the error message.
type exception struct {
	kind string
	msg  string
}

func newException(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var msg starlark.Value = starlark.String("")
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0, &msg); err != nil {
		return nil, err
	}
	s, ok := starlark.AsString(msg)
	if !ok {
		s = msg.String()
	}
	return &exception{kind: b.Name(), msg: s}, nil
}

func (x *exception) String() string {
	if x.msg == "" {
		return x.kind
	}
	return fmt.Sprintf("%s: %s", x.kind, x.msg)
}

func (x *exception) Type() string          { return x.kind }
func (x *exception) Freeze()               {}
func (x *exception) Truth() starlark.Bool  { return starlark.True }
func (x *exception) Hash() (uint32, error) { return starlark.String(x.String()).Hash() }
