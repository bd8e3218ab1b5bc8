package notebook_test

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/notebook"
	"github.com/tailored-agentic-units/autods/tools"
)

var created = time.Date(2026, 3, 14, 9, 26, 53, 0, time.UTC)

func call(id, code, desc string) protocol.ToolCall {
	args, _ := json.Marshal(map[string]string{"code": code, "description": desc})
	return protocol.NewToolCall(id, tools.ExecuteCode, string(args))
}

func history() []protocol.Message {
	return []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "How many rows?"),
		{
			Role:      protocol.RoleAssistant,
			ToolCalls: []protocol.ToolCall{call("call_1", "print(len(df))", "Count rows")},
		},
		{Role: protocol.RoleTool, ToolCallID: "call_1", Content: "150\n"},
		protocol.NewMessage(protocol.RoleAssistant, "The dataset has 150 rows."),
	}
}

func sources(nb *notebook.Notebook) []string {
	out := make([]string, len(nb.Cells))
	for i, c := range nb.Cells {
		out[i] = c.Source
	}
	return out
}

func TestBuild(t *testing.T) {
	nb := notebook.Build("s-1", history(), notebook.WithCreated(created))

	require.Len(t, nb.Cells, 6)
	assert.Equal(t, []string{
		"# AutoDS Analysis Session\n**Session ID:** `s-1`\n**Date:** 2026-03-14 09:26:53",
		"---",
		"### User Request\nHow many rows?",
		"**Action:** Count rows",
		"print(len(df))",
		"### Final Insights\nThe dataset has 150 rows.",
	}, sources(nb))

	code := nb.Cells[4]
	assert.Equal(t, notebook.Code, code.CellType)
	require.NotNil(t, code.ExecutionCount)
	assert.Equal(t, 1, *code.ExecutionCount)
	require.Len(t, code.Outputs, 1)
	assert.Equal(t, "stdout", code.Outputs[0].Name)
	assert.Equal(t, "150\n", code.Outputs[0].Text)
}

func TestBuild_FailedRunGoesToStderr(t *testing.T) {
	msgs := []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "plot it"),
		{
			Role:      protocol.RoleAssistant,
			ToolCalls: []protocol.ToolCall{call("call_1", "plot(", "Plot")},
		},
		{Role: protocol.RoleTool, ToolCallID: "call_1", Content: "ERROR:\nSyntaxError: unexpected EOF"},
	}

	nb := notebook.Build("s-2", msgs, notebook.WithCreated(created))

	last := nb.Cells[len(nb.Cells)-1]
	require.Len(t, last.Outputs, 1)
	assert.Equal(t, "stderr", last.Outputs[0].Name)
}

func TestBuild_UndecodableCallSkipped(t *testing.T) {
	msgs := []protocol.Message{
		{
			Role: protocol.RoleAssistant,
			ToolCalls: []protocol.ToolCall{
				protocol.NewToolCall("call_1", tools.ExecuteCode, `{"description":"no code"}`),
				call("call_2", "print(2)", ""),
			},
		},
		{Role: protocol.RoleTool, ToolCallID: "call_1", Content: "ERROR:\nmissing code"},
		{Role: protocol.RoleTool, ToolCallID: "call_2", Content: "2\n"},
	}

	nb := notebook.Build("s-3", msgs, notebook.WithCreated(created))

	require.Len(t, nb.Cells, 3)
	assert.Equal(t, "print(2)", nb.Cells[2].Source)
	assert.Equal(t, "2\n", nb.Cells[2].Outputs[0].Text)
}

func TestBuild_RequestFilter(t *testing.T) {
	msgs := append(history(), protocol.NewMessage(protocol.RoleUser, "RETRY: fix the code"))

	nb := notebook.Build("s-4", msgs,
		notebook.WithCreated(created),
		notebook.WithRequestFilter(func(m protocol.Message) bool {
			return !strings.HasPrefix(m.Text(), "RETRY:")
		}),
	)

	for _, src := range sources(nb) {
		assert.NotContains(t, src, "RETRY:")
	}
}

func TestBuild_FreeformParser(t *testing.T) {
	msgs := []protocol.Message{
		protocol.NewMessage(protocol.RoleUser, "sum"),
		protocol.NewMessage(protocol.RoleAssistant, "```python\nprint(1+1)\n```"),
		{Role: protocol.RoleTool, ToolCallID: "call_x", Content: "2\n"},
	}

	nb := notebook.Build("s-5", msgs,
		notebook.WithCreated(created),
		notebook.WithParser(tools.NewFreeform(nil)),
	)

	var code []notebook.Cell
	for _, c := range nb.Cells {
		if c.CellType == notebook.Code {
			code = append(code, c)
		}
	}
	require.Len(t, code, 1)
	assert.Equal(t, "print(1+1)\n", code[0].Source)
	assert.Equal(t, "2\n", code[0].Outputs[0].Text)
}

func TestNotebook_JSON(t *testing.T) {
	nb := notebook.Build("s-1", history(), notebook.WithCreated(created))

	data, err := nb.JSON()
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.EqualValues(t, 4, doc["nbformat"])
	assert.EqualValues(t, 5, doc["nbformat_minor"])

	cells := doc["cells"].([]any)
	md := cells[0].(map[string]any)
	assert.NotContains(t, md, "outputs")
	assert.NotContains(t, md, "execution_count")

	code := cells[4].(map[string]any)
	assert.Equal(t, "code", code["cell_type"])
	assert.Contains(t, code, "outputs")
	assert.EqualValues(t, 1, code["execution_count"])
}
