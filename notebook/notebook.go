// Package notebook renders a session history as a Jupyter notebook
// (nbformat 4.5): user requests and final answers become markdown cells,
// executed code becomes code cells carrying the observed output.
package notebook

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/tools"
)

// MediaType is the content type of a rendered notebook.
const MediaType = "application/x-ipynb+json"

const (
	errorPrefix = "ERROR:\n"
	dateLayout  = "2006-01-02 15:04:05"
)

// Cell types.
const (
	Markdown = "markdown"
	Code     = "code"
)

// Notebook is an nbformat 4 document.
type Notebook struct {
	Cells         []Cell         `json:"cells"`
	Metadata      map[string]any `json:"metadata"`
	NBFormat      int            `json:"nbformat"`
	NBFormatMinor int            `json:"nbformat_minor"`
}

// Cell is one notebook cell. ExecutionCount and Outputs are only emitted for
// code cells.
type Cell struct {
	CellType       string         `json:"cell_type"`
	ID             string         `json:"id"`
	Metadata       map[string]any `json:"metadata"`
	Source         string         `json:"source"`
	ExecutionCount *int           `json:"execution_count"`
	Outputs        []Output       `json:"outputs"`
}

func (c Cell) MarshalJSON() ([]byte, error) {
	type cell Cell
	if c.CellType == Code {
		if c.Outputs == nil {
			c.Outputs = []Output{}
		}
		return json.Marshal(cell(c))
	}
	return json.Marshal(struct {
		CellType string         `json:"cell_type"`
		ID       string         `json:"id"`
		Metadata map[string]any `json:"metadata"`
		Source   string         `json:"source"`
	}{c.CellType, c.ID, c.Metadata, c.Source})
}

// Output is a stream output of a code cell.
type Output struct {
	OutputType string `json:"output_type"`
	Name       string `json:"name"`
	Text       string `json:"text"`
}

// New creates a notebook with the session title cell.
func New(sessionID string, created time.Time) *Notebook {
	nb := &Notebook{
		Cells: []Cell{},
		Metadata: map[string]any{
			"kernelspec": map[string]any{
				"display_name": "Python 3",
				"language":     "python",
				"name":         "python3",
			},
			"language_info": map[string]any{"name": "python"},
		},
		NBFormat:      4,
		NBFormatMinor: 5,
	}
	nb.AddMarkdown(fmt.Sprintf("# AutoDS Analysis Session\n**Session ID:** `%s`\n**Date:** %s",
		sessionID, created.Format(dateLayout)))
	nb.AddMarkdown("---")
	return nb
}

func (nb *Notebook) AddMarkdown(text string) {
	nb.Cells = append(nb.Cells, Cell{
		CellType: Markdown,
		ID:       cellID(),
		Metadata: map[string]any{},
		Source:   text,
	})
}

// AddCode appends a code cell. An observation starting with the error
// prefix is recorded on stderr.
func (nb *Notebook) AddCode(code, observation string) {
	n := nb.executed() + 1
	cell := Cell{
		CellType:       Code,
		ID:             cellID(),
		Metadata:       map[string]any{},
		Source:         code,
		ExecutionCount: &n,
		Outputs:        []Output{},
	}
	if observation != "" {
		stream := "stdout"
		if strings.HasPrefix(observation, errorPrefix) {
			stream = "stderr"
		}
		cell.Outputs = append(cell.Outputs, Output{OutputType: "stream", Name: stream, Text: observation})
	}
	nb.Cells = append(nb.Cells, cell)
}

func (nb *Notebook) executed() int {
	n := 0
	for _, c := range nb.Cells {
		if c.CellType == Code {
			n++
		}
	}
	return n
}

// JSON encodes the notebook with the one-space indent Jupyter writes.
func (nb *Notebook) JSON() ([]byte, error) {
	data, err := json.MarshalIndent(nb, "", " ")
	if err != nil {
		return nil, fmt.Errorf("encode notebook: %w", err)
	}
	return append(data, '\n'), nil
}

// Option configures Build.
type Option func(*builder)

type builder struct {
	parser  tools.Parser
	request func(protocol.Message) bool
	created time.Time
}

// WithParser sets the parser used to recover code from assistant messages.
// The default reads structured execute_code calls.
func WithParser(p tools.Parser) Option {
	return func(b *builder) { b.parser = p }
}

// WithRequestFilter reports which user messages are requests typed by the
// user. Messages it rejects, such as retry prompts, are left out.
func WithRequestFilter(fn func(protocol.Message) bool) Option {
	return func(b *builder) { b.request = fn }
}

// WithCreated sets the date shown in the title cell.
func WithCreated(t time.Time) Option {
	return func(b *builder) { b.created = t }
}

// Build renders messages as a notebook. Tool messages are matched to the
// invocations of the preceding assistant message in order.
func Build(sessionID string, messages []protocol.Message, opts ...Option) *Notebook {
	b := builder{
		parser:  tools.NewStructured("python"),
		request: func(protocol.Message) bool { return true },
		created: time.Now(),
	}
	for _, opt := range opts {
		opt(&b)
	}

	nb := New(sessionID, b.created)

	var pending []tools.Invocation
	for _, msg := range messages {
		switch msg.Role {
		case protocol.RoleUser:
			pending = flush(nb, pending)
			if b.request(msg) {
				nb.AddMarkdown("### User Request\n" + msg.Text())
			}

		case protocol.RoleAssistant:
			pending = flush(nb, pending)
			invs := b.parser.Parse(msg)
			if len(invs) == 0 {
				if text := strings.TrimSpace(msg.Text()); text != "" {
					nb.AddMarkdown("### Final Insights\n" + text)
				}
				continue
			}
			pending = invs

		case protocol.RoleTool:
			if len(pending) == 0 {
				continue
			}
			inv := pending[0]
			pending = pending[1:]
			if inv.Failed() {
				continue
			}
			if inv.Description != "" {
				nb.AddMarkdown("**Action:** " + inv.Description)
			}
			nb.AddCode(inv.Code, msg.Text())
		}
	}
	flush(nb, pending)
	return nb
}

// flush records invocations that were never observed as code cells without
// output.
func flush(nb *Notebook, pending []tools.Invocation) []tools.Invocation {
	for _, inv := range pending {
		if inv.Failed() {
			continue
		}
		nb.AddCode(inv.Code, "")
	}
	return nil
}

func cellID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
}
