package main

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/glamour"
	"golang.org/x/term"

	"github.com/tailored-agentic-units/autods/kernel"
)

// renderer prints turn updates. On a terminal, final answers are rendered
// as markdown.
type renderer struct {
	w        io.Writer
	language string
	streamed bool
	markdown *glamour.TermRenderer
}

func newRenderer(w io.Writer, language string) *renderer {
	r := &renderer{w: w, language: language}
	if width, ok := terminalWidth(w); ok {
		md, err := glamour.NewTermRenderer(
			glamour.WithAutoStyle(),
			glamour.WithWordWrap(min(width, 120)),
			glamour.WithPreservedNewLines(),
		)
		if err == nil {
			r.markdown = md
		}
	}
	return r
}

// terminalWidth reports the width of w when it is a terminal.
func terminalWidth(w any) (int, bool) {
	f, ok := w.(*os.File)
	if !ok {
		return 0, false
	}
	fd := int(f.Fd())
	if !term.IsTerminal(fd) {
		return 0, false
	}
	width, _, err := term.GetSize(fd)
	if err != nil || width <= 0 {
		return 80, true
	}
	return width, true
}

func (r *renderer) update(u kernel.Update) {
	switch u.Type {
	case kernel.UpdateThinking:
		r.streamed = false
	case kernel.UpdateDelta:
		r.streamed = true
		fmt.Fprint(r.w, u.Content)
	case kernel.UpdateExecution:
		r.endStream()
		if u.Description != "" {
			fmt.Fprintf(r.w, "> %s\n", u.Description)
		}
		fmt.Fprintf(r.w, "```%s\n%s\n```\n", r.language, strings.TrimRight(u.Code, "\n"))
	case kernel.UpdateResult:
		fmt.Fprintln(r.w, strings.TrimRight(u.Content, "\n"))
		if u.Result != nil && u.Result.Artifact.Present() {
			fmt.Fprintf(r.w, "[%s artifact, %d bytes]\n", u.Result.Artifact.Kind, len(u.Result.Artifact.Data))
		}
	case kernel.UpdateFinal:
		if r.streamed {
			r.endStream()
			return
		}
		if r.markdown != nil {
			if out, err := r.markdown.Render(u.Content); err == nil {
				fmt.Fprint(r.w, out)
				return
			}
		}
		fmt.Fprintln(r.w, u.Content)
	case kernel.UpdateNotice:
		r.endStream()
		fmt.Fprintln(r.w, u.Content)
	case kernel.UpdateError:
		r.endStream()
		fmt.Fprintf(r.w, "error: %s\n", u.Content)
	}
}

func (r *renderer) endStream() {
	if r.streamed {
		fmt.Fprintln(r.w)
		r.streamed = false
	}
}
