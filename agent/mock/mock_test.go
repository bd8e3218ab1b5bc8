package mock_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/tailored-agentic-units/autods/agent"
	"github.com/tailored-agentic-units/autods/agent/mock"
	"github.com/tailored-agentic-units/autods/core/protocol"
)

var _ agent.Agent = (*mock.MockAgent)(nil)

func TestMockAgent_Replay(t *testing.T) {
	boom := errors.New("boom")
	m := mock.NewMockAgent(mock.WithID("m1")).
		Reply("", mock.ExecuteCode("call_1", "print(1)")).
		Fail(boom).
		Reply("done")

	ctx := context.Background()
	msgs := protocol.InitMessages(protocol.RoleUser, "hi")

	resp, err := m.Tools(ctx, msgs, nil)
	if err != nil {
		t.Fatalf("first call failed: %v", err)
	}
	msg, _ := resp.Message()
	if len(msg.ToolCalls) != 1 || !strings.Contains(msg.ToolCalls[0].Arguments, "print(1)") {
		t.Errorf("got tool calls %+v", msg.ToolCalls)
	}

	if _, err := m.Tools(ctx, msgs, nil); !errors.Is(err, boom) {
		t.Errorf("got %v, want scripted error", err)
	}

	var deltas []string
	resp, err = m.ToolsStream(ctx, msgs, nil, func(s string) { deltas = append(deltas, s) })
	if err != nil || resp.Content() != "done" {
		t.Errorf("got %v, %v", resp, err)
	}
	if strings.Join(deltas, "") != "done" {
		t.Errorf("got deltas %v", deltas)
	}

	if _, err := m.Tools(ctx, msgs, nil); !errors.Is(err, mock.ErrExhausted) {
		t.Errorf("got %v, want ErrExhausted", err)
	}
	if m.Calls() != 4 {
		t.Errorf("got %d calls, want 4", m.Calls())
	}
	if got := m.Request(0); len(got) != 1 || got[0].Text() != "hi" {
		t.Errorf("request 0 not recorded: %v", got)
	}
}
