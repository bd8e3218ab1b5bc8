package tools

import (
	"regexp"
	"strings"

	"github.com/tailored-agentic-units/autods/core/protocol"
)

// DefaultLanguages are the fence tags Freeform treats as executable.
var DefaultLanguages = []string{"python", "py", "starlark", "star"}

var fence = regexp.MustCompile("(?ms)^[ \\t]*```[ \\t]*([A-Za-z0-9_+-]*)[^\\n]*\\n(.*?)^[ \\t]*```")

// Freeform reads fenced code blocks from the reply text.
type Freeform struct {
	languages map[string]bool
	opts      options
}

// NewFreeform executes fences tagged with one of languages, or
// DefaultLanguages when none are given.
func NewFreeform(languages []string, opts ...Option) *Freeform {
	if len(languages) == 0 {
		languages = DefaultLanguages
	}
	set := make(map[string]bool, len(languages))
	for _, l := range languages {
		set[strings.ToLower(l)] = true
	}
	return &Freeform{languages: set, opts: buildOptions(opts)}
}

func (f *Freeform) Protocol() protocol.Protocol { return protocol.Chat }

func (f *Freeform) Tools() []protocol.Tool { return nil }

func (f *Freeform) Parse(msg protocol.Message) []Invocation {
	var invocations []Invocation
	for _, m := range fence.FindAllStringSubmatch(msg.Text(), -1) {
		if !f.languages[strings.ToLower(m[1])] {
			continue
		}
		inv := Invocation{ID: newCallID(), Name: ExecuteCode, Code: m[2]}
		if strings.TrimSpace(inv.Code) == "" {
			inv.Err = ErrMissingCode
		}
		invocations = append(invocations, f.opts.verify(inv))
	}
	return invocations
}
