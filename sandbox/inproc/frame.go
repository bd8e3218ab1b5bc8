package inproc

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/go-gota/gota/dataframe"
	"github.com/go-gota/gota/series"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"

	"github.com/tailored-agentic-units/autods/sandbox"
)

var frameModule = &starlarkstruct.Module{
	Name: "frame",
	Members: starlark.StringDict{
		"table":    starlark.NewBuiltin("frame.table", frameTable),
		"from_csv": starlark.NewBuiltin("frame.from_csv", frameFromCSV),
	},
}

// Table is a dataframe value. Operations return new tables; a table is
// never modified in place.
type Table struct {
	df     dataframe.DataFrame
	source string
}

func newTable(df dataframe.DataFrame, source string) *Table {
	return &Table{df: df, source: source}
}

var (
	_ starlark.HasAttrs = (*Table)(nil)
	_ starlark.Mapping  = (*Table)(nil)
)

func (t *Table) String() string        { return t.df.String() }
func (t *Table) Type() string          { return "table" }
func (t *Table) Freeze()               {}
func (t *Table) Truth() starlark.Bool  { return t.df.Nrow() > 0 }
func (t *Table) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: table") }

type tableMethod func(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error)

var tableMethods = map[string]tableMethod{
	"head":         tableHead,
	"tail":         tableTail,
	"column":       tableColumn,
	"select":       tableSelect,
	"filter":       tableFilter,
	"sort":         tableSort,
	"describe":     tableDescribe,
	"records":      tableRecords,
	"unique":       tableUnique,
	"value_counts": tableValueCounts,
	"groupby":      tableGroupBy,
	"mean":         aggregate("mean"),
	"sum":          aggregate("sum"),
	"min":          aggregate("min"),
	"max":          aggregate("max"),
	"std":          aggregate("std"),
	"median":       aggregate("median"),
	"count":        aggregate("count"),
}

func (t *Table) Attr(name string) (starlark.Value, error) {
	switch name {
	case "columns":
		return stringList(t.df.Names()), nil
	case "shape":
		rows, cols := t.df.Dims()
		return starlark.Tuple{starlark.MakeInt(rows), starlark.MakeInt(cols)}, nil
	case "dtypes":
		d := starlark.NewDict(t.df.Ncol())
		names := t.df.Names()
		for i, typ := range t.df.Types() {
			_ = d.SetKey(starlark.String(names[i]), starlark.String(string(typ)))
		}
		return d, nil
	}

	m, ok := tableMethods[name]
	if !ok {
		return nil, nil
	}
	return starlark.NewBuiltin(name, func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		return m(t, "table."+b.Name(), args, kwargs)
	}), nil
}

func (t *Table) AttrNames() []string {
	names := []string{"columns", "dtypes", "shape"}
	for name := range tableMethods {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Get implements df["col"] and df[["a", "b"]].
func (t *Table) Get(k starlark.Value) (starlark.Value, bool, error) {
	if name, ok := starlark.AsString(k); ok {
		s, err := t.series(name)
		if err != nil {
			return nil, false, err
		}
		return seriesList(s), true, nil
	}
	if _, ok := k.(starlark.Iterable); ok {
		cols, err := toLabels("table[]", k)
		if err != nil {
			return nil, false, err
		}
		out, err := t.derive(t.df.Select(cols))
		return out, err == nil, err
	}
	return nil, false, fmt.Errorf("table index must be a column name or list of names, got %s", k.Type())
}

func (t *Table) derive(df dataframe.DataFrame) (*Table, error) {
	if df.Err != nil {
		return nil, df.Err
	}
	return newTable(df, t.source), nil
}

func (t *Table) series(name string) (series.Series, error) {
	for _, n := range t.df.Names() {
		if n == name {
			return t.df.Col(name), nil
		}
	}
	return series.Series{}, fmt.Errorf("KeyError: column %q not found", name)
}

func (t *Table) state(variable string) *sandbox.DataState {
	ds := &sandbox.Dataset{Name: t.source, Frame: t.df}
	return ds.State(variable)
}

func (t *Table) rows() []any {
	maps := t.df.Maps()
	out := make([]any, len(maps))
	for i, m := range maps {
		out[i] = m
	}
	return out
}

func tableHead(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(fn, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return t.slice(0, n)
}

func tableTail(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	n := 5
	if err := starlark.UnpackArgs(fn, args, kwargs, "n?", &n); err != nil {
		return nil, err
	}
	return t.slice(t.df.Nrow()-n, t.df.Nrow())
}

func (t *Table) slice(from, to int) (starlark.Value, error) {
	rows := t.df.Nrow()
	from = max(from, 0)
	to = min(to, rows)
	if from >= to {
		return t.derive(t.df.Subset([]int{}))
	}
	idx := make([]int, 0, to-from)
	for i := from; i < to; i++ {
		idx = append(idx, i)
	}
	return t.derive(t.df.Subset(idx))
}

func tableColumn(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var name string
	if err := starlark.UnpackPositionalArgs(fn, args, kwargs, 1, &name); err != nil {
		return nil, err
	}
	s, err := t.series(name)
	if err != nil {
		return nil, err
	}
	return seriesList(s), nil
}

func tableSelect(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if len(kwargs) > 0 {
		return nil, fmt.Errorf("%s: unexpected keyword arguments", fn)
	}
	var src starlark.Value = args
	if len(args) == 1 {
		if _, ok := args[0].(starlark.String); !ok {
			src = args[0]
		}
	}
	cols, err := toLabels(fn, src)
	if err != nil {
		return nil, err
	}
	return t.derive(t.df.Select(cols))
}

// filter(col, op, value) keeps rows where col op value holds. op is one of
// ==, !=, >, >=, <, <= or in.
func tableFilter(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var col, op string
	var value starlark.Value
	if err := starlark.UnpackPositionalArgs(fn, args, kwargs, 3, &col, &op, &value); err != nil {
		return nil, err
	}
	if _, err := t.series(col); err != nil {
		return nil, err
	}

	comparando, err := comparandoOf(value)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", fn, err)
	}
	return t.derive(t.df.Filter(dataframe.F{
		Colname:    col,
		Comparator: series.Comparator(op),
		Comparando: comparando,
	}))
}

func comparandoOf(v starlark.Value) (any, error) {
	switch x := v.(type) {
	case starlark.Int:
		i, ok := x.Int64()
		if !ok {
			return nil, fmt.Errorf("integer out of range")
		}
		return int(i), nil
	case starlark.Float:
		return float64(x), nil
	case starlark.String:
		return string(x), nil
	case starlark.Bool:
		return bool(x), nil
	case *starlark.List, starlark.Tuple:
		labels, err := toLabels("in", v)
		if err != nil {
			return nil, err
		}
		return labels, nil
	}
	return nil, fmt.Errorf("cannot compare against %s", v.Type())
}

func tableSort(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var col string
	var reverse bool
	if err := starlark.UnpackArgs(fn, args, kwargs, "col", &col, "reverse?", &reverse); err != nil {
		return nil, err
	}
	order := dataframe.Sort(col)
	if reverse {
		order = dataframe.RevSort(col)
	}
	return t.derive(t.df.Arrange(order))
}

func tableDescribe(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	return t.derive(t.df.Describe())
}

func tableRecords(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(fn, args, kwargs, 0); err != nil {
		return nil, err
	}
	rows := t.rows()
	out := make([]starlark.Value, 0, len(rows))
	for _, row := range rows {
		v, err := fromGo(row)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return starlark.NewList(out), nil
}

func tableUnique(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var col string
	if err := starlark.UnpackPositionalArgs(fn, args, kwargs, 1, &col); err != nil {
		return nil, err
	}
	s, err := t.series(col)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []starlark.Value
	for i := 0; i < s.Len(); i++ {
		key := s.Elem(i).String()
		if seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, elemValue(s, i))
	}
	return starlark.NewList(out), nil
}

func tableValueCounts(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var col string
	if err := starlark.UnpackPositionalArgs(fn, args, kwargs, 1, &col); err != nil {
		return nil, err
	}
	s, err := t.series(col)
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int)
	var order []string
	for _, rec := range s.Records() {
		if counts[rec] == 0 {
			order = append(order, rec)
		}
		counts[rec]++
	}
	sort.SliceStable(order, func(i, j int) bool { return counts[order[i]] > counts[order[j]] })

	d := starlark.NewDict(len(order))
	for _, key := range order {
		if err := d.SetKey(starlark.String(key), starlark.MakeInt(counts[key])); err != nil {
			return nil, err
		}
	}
	return d, nil
}

// groupby(by, col, agg="mean") returns a dict from each distinct value of by
// to the aggregate of col over that group.
func tableGroupBy(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var by, col string
	agg := "mean"
	if err := starlark.UnpackArgs(fn, args, kwargs, "by", &by, "col", &col, "agg?", &agg); err != nil {
		return nil, err
	}
	keys, err := t.series(by)
	if err != nil {
		return nil, err
	}
	values, err := t.series(col)
	if err != nil {
		return nil, err
	}

	groups := make(map[string][]float64)
	var order []string
	nums := values.Float()
	for i, key := range keys.Records() {
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], nums[i])
	}

	d := starlark.NewDict(len(order))
	for _, key := range order {
		v, err := reduce(agg, groups[key])
		if err != nil {
			return nil, fmt.Errorf("%s: %w", fn, err)
		}
		if err := d.SetKey(starlark.String(key), v); err != nil {
			return nil, err
		}
	}
	return d, nil
}

func aggregate(how string) tableMethod {
	return func(t *Table, fn string, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var col string
		if err := starlark.UnpackPositionalArgs(fn, args, kwargs, 1, &col); err != nil {
			return nil, err
		}
		s, err := t.series(col)
		if err != nil {
			return nil, err
		}
		if how != "count" && s.Type() != series.Int && s.Type() != series.Float {
			return nil, fmt.Errorf("TypeError: %s: column %q is %s, not numeric", fn, col, s.Type())
		}
		return reduce(how, s.Float())
	}
}

func reduce(how string, xs []float64) (starlark.Value, error) {
	var vals []float64
	for _, x := range xs {
		if !math.IsNaN(x) {
			vals = append(vals, x)
		}
	}
	if how == "count" {
		return starlark.MakeInt(len(vals)), nil
	}
	if len(vals) == 0 {
		return starlark.Float(math.NaN()), nil
	}

	switch how {
	case "sum", "mean", "std":
		var sum float64
		for _, v := range vals {
			sum += v
		}
		if how == "sum" {
			return starlark.Float(sum), nil
		}
		mean := sum / float64(len(vals))
		if how == "mean" {
			return starlark.Float(mean), nil
		}
		if len(vals) < 2 {
			return starlark.Float(math.NaN()), nil
		}
		var sq float64
		for _, v := range vals {
			sq += (v - mean) * (v - mean)
		}
		return starlark.Float(math.Sqrt(sq / float64(len(vals)-1))), nil
	case "min", "max", "median":
		sort.Float64s(vals)
		switch how {
		case "min":
			return starlark.Float(vals[0]), nil
		case "max":
			return starlark.Float(vals[len(vals)-1]), nil
		}
		mid := len(vals) / 2
		if len(vals)%2 == 1 {
			return starlark.Float(vals[mid]), nil
		}
		return starlark.Float((vals[mid-1] + vals[mid]) / 2), nil
	}
	return nil, fmt.Errorf("unknown aggregation %q", how)
}

// frame.table accepts a dict of column lists or a list of row dicts.
func frameTable(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data starlark.Value
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &data); err != nil {
		return nil, err
	}

	var records [][]string
	switch x := data.(type) {
	case *starlark.Dict:
		header := make([]string, 0, x.Len())
		var columns [][]string
		for _, kv := range x.Items() {
			name, ok := starlark.AsString(kv[0])
			if !ok {
				return nil, fmt.Errorf("%s: column names must be strings", b.Name())
			}
			cells, err := cellStrings(b.Name(), kv[1])
			if err != nil {
				return nil, err
			}
			if len(columns) > 0 && len(cells) != len(columns[0]) {
				return nil, fmt.Errorf("ValueError: %s: column %q has %d values, want %d", b.Name(), name, len(cells), len(columns[0]))
			}
			header = append(header, name)
			columns = append(columns, cells)
		}
		records = append(records, header)
		if len(columns) > 0 {
			for i := range columns[0] {
				row := make([]string, len(columns))
				for j := range columns {
					row[j] = columns[j][i]
				}
				records = append(records, row)
			}
		}
	case *starlark.List:
		var header []string
		for i := 0; i < x.Len(); i++ {
			row, ok := x.Index(i).(*starlark.Dict)
			if !ok {
				return nil, fmt.Errorf("%s: rows must be dicts, got %s", b.Name(), x.Index(i).Type())
			}
			if header == nil {
				for _, k := range row.Keys() {
					s, _ := starlark.AsString(k)
					header = append(header, s)
				}
				records = append(records, header)
			}
			cells := make([]string, len(header))
			for j, name := range header {
				v, found, err := row.Get(starlark.String(name))
				if err != nil {
					return nil, err
				}
				if !found {
					v = starlark.None
				}
				cells[j] = cellString(v)
			}
			records = append(records, cells)
		}
	default:
		return nil, fmt.Errorf("%s: got %s, want dict or list", b.Name(), data.Type())
	}

	if len(records) == 0 || len(records[0]) == 0 {
		return nil, fmt.Errorf("ValueError: %s: no columns", b.Name())
	}
	df := dataframe.LoadRecords(records)
	if df.Err != nil {
		return nil, df.Err
	}
	return newTable(df, ""), nil
}

func frameFromCSV(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var text string
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &text); err != nil {
		return nil, err
	}
	df := dataframe.ReadCSV(strings.NewReader(text))
	if df.Err != nil {
		return nil, df.Err
	}
	return newTable(df, ""), nil
}

func cellStrings(fn string, v starlark.Value) ([]string, error) {
	iter := starlark.Iterate(v)
	if iter == nil {
		return nil, fmt.Errorf("%s: got %s, want list of values", fn, v.Type())
	}
	defer iter.Done()

	var out []string
	var item starlark.Value
	for iter.Next(&item) {
		out = append(out, cellString(item))
	}
	return out, nil
}

func cellString(v starlark.Value) string {
	switch x := v.(type) {
	case starlark.NoneType:
		return "NaN"
	case starlark.String:
		return string(x)
	case starlark.Bool:
		return strconv.FormatBool(bool(x))
	case starlark.Float:
		return strconv.FormatFloat(float64(x), 'g', -1, 64)
	}
	return v.String()
}

func stringList(xs []string) *starlark.List {
	out := make([]starlark.Value, len(xs))
	for i, x := range xs {
		out[i] = starlark.String(x)
	}
	return starlark.NewList(out)
}

func seriesList(s series.Series) *starlark.List {
	out := make([]starlark.Value, s.Len())
	for i := range out {
		out[i] = elemValue(s, i)
	}
	return starlark.NewList(out)
}

func elemValue(s series.Series, i int) starlark.Value {
	e := s.Elem(i)
	if e.IsNA() {
		return starlark.None
	}
	switch s.Type() {
	case series.Int:
		n, err := e.Int()
		if err != nil {
			return starlark.None
		}
		return starlark.MakeInt(n)
	case series.Float:
		return starlark.Float(e.Float())
	case series.Bool:
		bv, err := e.Bool()
		if err != nil {
			return starlark.None
		}
		return starlark.Bool(bv)
	}
	return starlark.String(e.String())
}
