package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/autods/memory"
)

func newWorkspaceCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "workspace",
		Short: "Inspect the durable workspace configured with --memory",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "notes",
			Short: "Print the notes injected into the system prompt",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withWorkspace(func(ws *memory.Workspace) error {
					notes, err := ws.Notes(cmd.Context())
					if err != nil {
						return err
					}
					if notes != "" {
						fmt.Fprintln(cmd.OutOrStdout(), notes)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "note <name> [text|-]",
			Short: "Store a note; text is read from stdin when omitted or -",
			Args:  cobra.RangeArgs(1, 2),
			RunE: func(cmd *cobra.Command, args []string) error {
				text, err := noteText(cmd.InOrStdin(), args[1:])
				if err != nil {
					return err
				}
				name := args[0]
				if !strings.Contains(name, ".") {
					name += ".md"
				}
				return a.withWorkspace(func(ws *memory.Workspace) error {
					return ws.AddNote(cmd.Context(), name, text)
				})
			},
		},
		&cobra.Command{
			Use:   "sessions",
			Short: "List sessions with stored transcripts or notebooks",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, _ []string) error {
				return a.withWorkspace(func(ws *memory.Workspace) error {
					ids, err := ws.Sessions(cmd.Context())
					if err != nil {
						return err
					}
					for _, id := range ids {
						fmt.Fprintln(cmd.OutOrStdout(), id)
					}
					return nil
				})
			},
		},
		&cobra.Command{
			Use:   "transcript <session>",
			Short: "Print the last transcript snapshot of a session",
			Args:  cobra.ExactArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return a.withWorkspace(func(ws *memory.Workspace) error {
					msgs, err := ws.Transcript(cmd.Context(), args[0])
					if err != nil {
						return err
					}
					out := cmd.OutOrStdout()
					for _, m := range msgs {
						fmt.Fprintf(out, "[%s]", m.Role)
						for _, tc := range m.ToolCalls {
							fmt.Fprintf(out, " %s(%s)", tc.Name, tc.Arguments)
						}
						fmt.Fprintf(out, "\n%s\n\n", strings.TrimRight(m.Text(), "\n"))
					}
					return nil
				})
			},
		},
	)
	return cmd
}

// withWorkspace opens the configured store for the duration of fn.
func (a *app) withWorkspace(fn func(*memory.Workspace) error) error {
	cfg, err := a.config()
	if err != nil {
		return err
	}
	store, err := memory.NewStore(&cfg.Memory)
	if err != nil {
		return err
	}
	if store == nil {
		return errors.New("no workspace configured: pass --memory or set memory.path")
	}
	if c, ok := store.(io.Closer); ok {
		defer c.Close()
	}
	return fn(memory.NewWorkspace(store))
}

func noteText(stdin io.Reader, args []string) (string, error) {
	if len(args) == 1 && args[0] != "-" {
		return args[0], nil
	}
	if stdin == nil {
		stdin = os.Stdin
	}
	data, err := io.ReadAll(stdin)
	if err != nil {
		return "", fmt.Errorf("read note: %w", err)
	}
	return string(data), nil
}
