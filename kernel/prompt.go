package kernel

import (
	"context"
	"fmt"
	"strings"

	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/observability"
	"github.com/tailored-agentic-units/autods/sandbox"
)

// DefaultSystemPrompt instructs the model to work through the code tool.
const DefaultSystemPrompt = `You are AutoDS, an expert data science agent.

Rules:
1. Never send bare lists or dictionaries as code. Always write complete statements such as print(df.columns).
2. You only see what you print(). To inspect values you must print them.
3. If code returns no output or an ERROR, do not send the same code again. Change your approach.
4. The dataset, when present, is already loaded into the variable df. Do not load it again.

Work in steps: plan the next step, run code, read its output, and continue until the request is fully answered. Then reply with your findings and no code.`

const (
	emptyOutput      = "SYSTEM: Code executed successfully but produced no output. Remember to use print() to see results (e.g., print(df.head()))."
	artifactSuffix   = "\n[Visual Output Generated]"
	errorPrefix      = "ERROR:\n"
	maxStepsNotice   = "I have reached the maximum number of steps for this task. Please refine your request or let me know if you want me to continue."
	maxRetriesNotice = "I could not fix the code after %d attempts. The last error was:\n%s\nPlease refine your request or check the data."

	systemPrefix = "SYSTEM: "
	reflection  = systemPrefix + "The code failed:\n%s\nAnalyze the error, then send a corrected version of the code. Do not repeat code that already failed."
	emptyNudge  = systemPrefix + "Your reply was empty. Either run code with the execution tool or write your final answer."
)

// Observation renders a sandbox result as the text the model sees.
func Observation(r sandbox.Result) string {
	var text string
	if r.Success {
		text = r.Stdout
		if r.Artifact.Present() {
			text += artifactSuffix
		} else if strings.TrimSpace(text) == "" {
			text = emptyOutput
		}
	} else {
		text = errorPrefix + describeFailure(r)
	}
	if r.Notice != "" {
		text += "\n" + systemPrefix + r.Notice
	}
	return text
}

func describeFailure(r sandbox.Result) string {
	var b strings.Builder
	if r.Stdout != "" {
		b.WriteString(r.Stdout)
		if !strings.HasSuffix(r.Stdout, "\n") {
			b.WriteByte('\n')
		}
	}
	if r.Error == nil {
		b.WriteString("unknown error")
		return b.String()
	}
	b.WriteString(r.Error.Error())
	if r.Error.Trace != "" {
		b.WriteString("\n")
		b.WriteString(strings.TrimRight(r.Error.Trace, "\n"))
	}
	return b.String()
}

// IsRetryPrompt reports whether msg was synthesized by the kernel to ask the
// model for corrected code rather than typed by the user.
func IsRetryPrompt(msg protocol.Message) bool {
	return msg.Role == protocol.RoleUser && msg.Synthetic
}

// retryMessage builds a user-role prompt the kernel writes on the model's
// behalf.
func retryMessage(text string) protocol.Message {
	msg := protocol.NewMessage(protocol.RoleUser, text)
	msg.Synthetic = true
	return msg
}

func reflectionPrompt(failures []string) string {
	return fmt.Sprintf(reflection, strings.Join(failures, "\n\n"))
}

// systemContent assembles the system prompt, the current data state and
// the workspace notes. Failures to read optional context are logged and
// skipped.
func (k *Kernel) systemContent(ctx context.Context) string {
	parts := []string{k.systemPrompt}

	state, err := k.env.DataState(ctx)
	switch {
	case err != nil:
		k.emit(ctx, EventError, observability.LevelWarning, map[string]any{"error": err.Error(), "stage": "data_state"})
	case state != nil:
		parts = append(parts, "Current data state:\n"+state.String())
	}

	if k.workspace != nil {
		notes, err := k.workspace.Notes(ctx)
		if err != nil {
			k.emit(ctx, EventError, observability.LevelWarning, map[string]any{"error": err.Error(), "stage": "notes"})
		} else if notes != "" {
			parts = append(parts, "Notes:\n"+notes)
		}
	}

	var b strings.Builder
	for _, p := range parts {
		if strings.TrimSpace(p) == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString(p)
	}
	return b.String()
}

func (k *Kernel) buildMessages(systemContent string) []protocol.Message {
	sessionMsgs := k.session.Messages()

	if systemContent == "" {
		return sessionMsgs
	}

	messages := make([]protocol.Message, 0, len(sessionMsgs)+1)
	messages = append(messages, protocol.NewMessage(protocol.RoleSystem, systemContent))
	messages = append(messages, sessionMsgs...)
	return messages
}
