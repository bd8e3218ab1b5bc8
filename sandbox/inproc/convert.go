package inproc

import (
	"encoding/json"
	"fmt"

	"github.com/go-gota/gota/dataframe"
	starjson "go.starlark.net/lib/json"
	"go.starlark.net/starlark"

	"github.com/tailored-agentic-units/autods/sandbox"
)

// fromGo converts a host value to a Starlark value. Anything without a
// direct mapping goes through its JSON form.
func fromGo(value any) (starlark.Value, error) {
	switch v := value.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case *sandbox.Dataset:
		return newTable(v.Frame, v.Name), nil
	case dataframe.DataFrame:
		return newTable(v, ""), nil
	case bool:
		return starlark.Bool(v), nil
	case string:
		return starlark.String(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case float64:
		return starlark.Float(v), nil
	case []any:
		elems := make([]starlark.Value, 0, len(v))
		for _, item := range v {
			sv, err := fromGo(item)
			if err != nil {
				return nil, err
			}
			elems = append(elems, sv)
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		d := starlark.NewDict(len(v))
		for k, item := range v {
			sv, err := fromGo(item)
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k), sv); err != nil {
				return nil, err
			}
		}
		return d, nil
	}

	data, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %T", sandbox.ErrUnsupportedValue, value)
	}
	decode := starjson.Module.Members["decode"]
	return starlark.Call(&starlark.Thread{Name: "bind"}, decode, starlark.Tuple{starlark.String(data)}, nil)
}

// toGo converts a Starlark value to plain Go data: nil, bool, int64,
// float64, string, []any and map[string]any. Tables become a list of row
// maps and figures their JSON document.
func toGo(v starlark.Value) any {
	switch x := v.(type) {
	case starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(x)
	case starlark.Int:
		if i, ok := x.Int64(); ok {
			return i
		}
		return x.String()
	case starlark.Float:
		return float64(x)
	case starlark.String:
		return string(x)
	case *starlark.List:
		out := make([]any, x.Len())
		for i := range out {
			out[i] = toGo(x.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(x))
		for i, item := range x {
			out[i] = toGo(item)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, x.Len())
		for _, kv := range x.Items() {
			key, ok := starlark.AsString(kv[0])
			if !ok {
				key = kv[0].String()
			}
			out[key] = toGo(kv[1])
		}
		return out
	case *Table:
		return x.rows()
	case *Figure:
		return x.document()
	}
	return v.String()
}

// toFloats reads a list, tuple or other iterable of numbers.
func toFloats(fn string, v starlark.Value) ([]float64, error) {
	iter := starlark.Iterate(v)
	if iter == nil {
		return nil, fmt.Errorf("%s: got %s, want iterable of numbers", fn, v.Type())
	}
	defer iter.Done()

	var out []float64
	var item starlark.Value
	for iter.Next(&item) {
		f, ok := starlark.AsFloat(item)
		if !ok {
			return nil, fmt.Errorf("%s: got %s in sequence, want number", fn, item.Type())
		}
		out = append(out, f)
	}
	return out, nil
}

// toLabels reads an iterable as display strings.
func toLabels(fn string, v starlark.Value) ([]string, error) {
	iter := starlark.Iterate(v)
	if iter == nil {
		return nil, fmt.Errorf("%s: got %s, want iterable", fn, v.Type())
	}
	defer iter.Done()

	var out []string
	var item starlark.Value
	for iter.Next(&item) {
		if s, ok := starlark.AsString(item); ok {
			out = append(out, s)
		} else {
			out = append(out, item.String())
		}
	}
	return out, nil
}
