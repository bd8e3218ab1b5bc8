package dataset

import (
	"encoding/json"
	"math"

	"github.com/go-gota/gota/series"

	"github.com/tailored-agentic-units/autods/sandbox"
)

const headRows = 3

// Profile is a lightweight summary of a dataset, sized for a model prompt
// or a client preview.
type Profile struct {
	Columns       []string          `json:"columns"`
	Dtypes        map[string]string `json:"dtypes"`
	MissingValues map[string]int    `json:"missing_values"`
	Head          []map[string]any  `json:"head"`
	Shape         [2]int            `json:"shape"`
}

// Summarize builds the profile of ds. Missing values in the head rows are
// reported as null.
func Summarize(ds *sandbox.Dataset) *Profile {
	df := ds.Frame
	rows, cols := df.Dims()
	names := df.Names()

	p := &Profile{
		Columns:       names,
		Dtypes:        make(map[string]string, cols),
		MissingValues: make(map[string]int, cols),
		Head:          []map[string]any{},
		Shape:         [2]int{rows, cols},
	}

	for i, t := range df.Types() {
		p.Dtypes[names[i]] = dtype(t)
	}
	for _, name := range names {
		missing := 0
		for _, na := range df.Col(name).IsNaN() {
			if na {
				missing++
			}
		}
		p.MissingValues[name] = missing
	}

	n := min(rows, headRows)
	if n == 0 {
		return p
	}
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	for _, row := range df.Subset(idx).Maps() {
		for k, v := range row {
			if f, ok := v.(float64); ok && (math.IsNaN(f) || math.IsInf(f, 0)) {
				row[k] = nil
			}
		}
		p.Head = append(p.Head, row)
	}
	return p
}

// JSON renders the profile. It never fails: every value in a profile is
// JSON-safe.
func (p *Profile) JSON() []byte {
	data, _ := json.Marshal(p)
	return data
}

// dtype names gota column types the way the Python worker reports them.
func dtype(t series.Type) string {
	switch t {
	case series.Int:
		return "int64"
	case series.Float:
		return "float64"
	case series.Bool:
		return "bool"
	default:
		return "object"
	}
}
