package sandbox

import (
	"fmt"
	"strings"

	"github.com/go-gota/gota/dataframe"
)

// Dataset is a loaded table ready to bind into an environment. Path is the
// file the table was read from; it is empty for query results, in which
// case environments that need a file materialize Frame themselves.
type Dataset struct {
	Name   string
	Path   string
	Format string
	Frame  dataframe.DataFrame
}

// State describes the dataset as it will appear under variable.
func (d *Dataset) State(variable string) *DataState {
	rows, cols := d.Frame.Dims()
	names := d.Frame.Names()
	types := make(map[string]string, len(names))
	for i, t := range d.Frame.Types() {
		types[names[i]] = string(t)
	}
	return &DataState{
		Variable: variable,
		Source:   d.Name,
		Columns:  names,
		Types:    types,
		Rows:     rows,
		Cols:     cols,
	}
}

// DataState is the shape of the bound dataset, described to the model at
// the start of every turn.
type DataState struct {
	Variable string            `json:"variable"`
	Source   string            `json:"source,omitempty"`
	Columns  []string          `json:"columns"`
	Types    map[string]string `json:"types,omitempty"`
	Rows     int               `json:"rows"`
	Cols     int               `json:"cols"`
}

func (s *DataState) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "The variable `%s` holds a table", s.Variable)
	if s.Source != "" {
		fmt.Fprintf(&b, " loaded from %s", s.Source)
	}
	fmt.Fprintf(&b, " with %d rows and %d columns.\nColumns:", s.Rows, s.Cols)
	for _, col := range s.Columns {
		if t, ok := s.Types[col]; ok && t != "" {
			fmt.Fprintf(&b, "\n- %s (%s)", col, t)
		} else {
			fmt.Fprintf(&b, "\n- %s", col)
		}
	}
	return b.String()
}
