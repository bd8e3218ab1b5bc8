package inproc

import (
	"bytes"
	"encoding/json"
	"fmt"

	gplot "gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/vg"
	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

const (
	figureWidth  = 8 * vg.Inch
	figureHeight = 5 * vg.Inch
	defaultBins  = 10
)

var plotModule = &starlarkstruct.Module{
	Name: "plot",
	Members: starlark.StringDict{
		"line":    starlark.NewBuiltin("plot.line", newSeriesFigure("line")),
		"scatter": starlark.NewBuiltin("plot.scatter", newSeriesFigure("scatter")),
		"bar":     starlark.NewBuiltin("plot.bar", newSeriesFigure("bar")),
		"hist":    starlark.NewBuiltin("plot.hist", newHistFigure),
		"figure":  starlark.NewBuiltin("plot.figure", newCustomFigure),
	},
}

// Figure is a chart drawn by the plot module. Assigned to fig it is
// exported as JSON; otherwise the last figure drawn in a run is rendered as
// a PNG.
type Figure struct {
	kind   string
	title  string
	xlabel string
	ylabel string
	x      []float64
	labels []string
	y      []float64
	bins   int
	custom map[string]any
}

var _ starlark.HasAttrs = (*Figure)(nil)

func (f *Figure) String() string        { return fmt.Sprintf("<figure %s %q>", f.kind, f.title) }
func (f *Figure) Type() string          { return "figure" }
func (f *Figure) Freeze()               {}
func (f *Figure) Truth() starlark.Bool  { return starlark.True }
func (f *Figure) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: figure") }

func (f *Figure) Attr(name string) (starlark.Value, error) {
	switch name {
	case "kind":
		return starlark.String(f.kind), nil
	case "title":
		return starlark.String(f.title), nil
	case "to_json":
		return starlark.NewBuiltin("to_json", func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
				return nil, err
			}
			data, err := json.Marshal(f.document())
			if err != nil {
				return nil, err
			}
			return starlark.String(data), nil
		}), nil
	case "show":
		return starlark.NewBuiltin("show", func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
			return starlark.None, nil
		}), nil
	}
	return nil, nil
}

func (f *Figure) AttrNames() []string {
	return []string{"kind", "show", "title", "to_json"}
}

// document returns the Plotly figure description.
func (f *Figure) document() map[string]any {
	if f.custom != nil {
		return f.custom
	}

	trace := map[string]any{}
	switch f.kind {
	case "line":
		trace["type"], trace["mode"] = "scatter", "lines"
	case "scatter":
		trace["type"], trace["mode"] = "scatter", "markers"
	case "bar":
		trace["type"] = "bar"
	case "hist":
		trace["type"] = "histogram"
		trace["nbinsx"] = f.bins
		trace["x"] = f.y
	}
	if f.kind != "hist" {
		if f.labels != nil {
			trace["x"] = f.labels
		} else {
			trace["x"] = f.x
		}
		trace["y"] = f.y
	}

	layout := map[string]any{}
	if f.title != "" {
		layout["title"] = map[string]any{"text": f.title}
	}
	if f.xlabel != "" {
		layout["xaxis"] = map[string]any{"title": map[string]any{"text": f.xlabel}}
	}
	if f.ylabel != "" {
		layout["yaxis"] = map[string]any{"title": map[string]any{"text": f.ylabel}}
	}
	return map[string]any{"data": []any{trace}, "layout": layout}
}

// render draws the figure as a PNG.
func (f *Figure) render() ([]byte, error) {
	if f.custom != nil {
		return nil, fmt.Errorf("figure built from a JSON description has no raster form; assign it to fig")
	}

	p := gplot.New()
	p.Title.Text = f.title
	p.X.Label.Text = f.xlabel
	p.Y.Label.Text = f.ylabel

	switch f.kind {
	case "line", "scatter":
		pts := make(plotter.XYs, len(f.y))
		for i := range f.y {
			pts[i].X = float64(i)
			if f.x != nil {
				pts[i].X = f.x[i]
			}
			pts[i].Y = f.y[i]
		}
		if f.kind == "line" {
			l, err := plotter.NewLine(pts)
			if err != nil {
				return nil, err
			}
			p.Add(l)
		} else {
			s, err := plotter.NewScatter(pts)
			if err != nil {
				return nil, err
			}
			p.Add(s)
		}
		if f.labels != nil {
			p.NominalX(f.labels...)
		}
	case "bar":
		bars, err := plotter.NewBarChart(plotter.Values(f.y), vg.Points(20))
		if err != nil {
			return nil, err
		}
		p.Add(bars)
		if f.labels != nil {
			p.NominalX(f.labels...)
		}
	case "hist":
		h, err := plotter.NewHist(plotter.Values(f.y), f.bins)
		if err != nil {
			return nil, err
		}
		p.Add(h)
	}

	w, err := p.WriterTo(figureWidth, figureHeight, "png")
	if err != nil {
		return nil, err
	}
	var buf bytes.Buffer
	if _, err := w.WriteTo(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

type figureRecorder struct {
	figures []*Figure
}

func (r *figureRecorder) last() *Figure {
	if r == nil || len(r.figures) == 0 {
		return nil
	}
	return r.figures[len(r.figures)-1]
}

func record(thread *starlark.Thread, f *Figure) *Figure {
	if r, ok := thread.Local(figuresLocal).(*figureRecorder); ok {
		r.figures = append(r.figures, f)
	}
	return f
}

// newSeriesFigure builds plot.line, plot.scatter and plot.bar:
// fn(x, y, title="", xlabel="", ylabel=""). Non-numeric x values become
// category labels.
func newSeriesFigure(kind string) func(*starlark.Thread, *starlark.Builtin, starlark.Tuple, []starlark.Tuple) (starlark.Value, error) {
	return func(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		var xv, yv starlark.Value
		f := &Figure{kind: kind}
		if err := starlark.UnpackArgs(b.Name(), args, kwargs,
			"x", &xv, "y", &yv,
			"title?", &f.title, "xlabel?", &f.xlabel, "ylabel?", &f.ylabel,
		); err != nil {
			return nil, err
		}

		y, err := toFloats(b.Name(), yv)
		if err != nil {
			return nil, err
		}
		f.y = y

		if x, err := toFloats(b.Name(), xv); err == nil && kind != "bar" {
			f.x = x
		} else if f.labels, err = toLabels(b.Name(), xv); err != nil {
			return nil, err
		}
		if n := max(len(f.x), len(f.labels)); n != len(f.y) {
			return nil, fmt.Errorf("ValueError: %s: x has %d values, y has %d", b.Name(), n, len(f.y))
		}
		return record(thread, f), nil
	}
}

// plot.hist(values, bins=10, title="", xlabel="")
func newHistFigure(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var vals starlark.Value
	f := &Figure{kind: "hist", bins: defaultBins, ylabel: "count"}
	if err := starlark.UnpackArgs(b.Name(), args, kwargs,
		"values", &vals, "bins?", &f.bins, "title?", &f.title, "xlabel?", &f.xlabel,
	); err != nil {
		return nil, err
	}
	y, err := toFloats(b.Name(), vals)
	if err != nil {
		return nil, err
	}
	if len(y) == 0 {
		return nil, fmt.Errorf("ValueError: %s: no values", b.Name())
	}
	f.y = y
	return record(thread, f), nil
}

// plot.figure(data=[...], layout={}) wraps a raw Plotly description.
func newCustomFigure(thread *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var data *starlark.List
	var layout *starlark.Dict
	if err := starlark.UnpackArgs(b.Name(), args, kwargs, "data", &data, "layout?", &layout); err != nil {
		return nil, err
	}
	doc := map[string]any{"data": toGo(data), "layout": map[string]any{}}
	if layout != nil {
		doc["layout"] = toGo(layout)
	}
	f := &Figure{kind: "custom", custom: doc}
	if l, ok := doc["layout"].(map[string]any); ok {
		if t, ok := l["title"].(string); ok {
			f.title = t
		}
	}
	return record(thread, f), nil
}
