package main

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/autods/dataset"
	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/sandbox"
	"github.com/tailored-agentic-units/autods/session"
)

const chatHelp = `Commands:
  /data             describe the bound dataset
  /load <file>      load a CSV, TSV or JSON file as df
  /notebook <file>  write the session as a Jupyter notebook
  /reset            clear the conversation (sandbox variables are kept)
  /exit             quit`

func newChatCmd(a *app) *cobra.Command {
	var (
		data      string
		database  string
		query     string
		sessionID string
		nbPath    string
	)

	cmd := &cobra.Command{
		Use:   "chat",
		Short: "Start an interactive analysis session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			_, obs, err := a.observer(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			opts := []kernel.Option{kernel.WithObserver(obs)}
			if sessionID != "" {
				s, err := session.Open(&cfg.Session, sessionID)
				if err != nil {
					return err
				}
				if c, ok := s.(io.Closer); ok {
					defer c.Close()
				}
				opts = append(opts, kernel.WithSession(s))
			}

			k, err := kernel.New(ctx, cfg, opts...)
			if err != nil {
				return err
			}
			defer k.Close()

			out := cmd.OutOrStdout()
			ds, err := loadDataset(ctx, data, database, query)
			if err != nil {
				return err
			}
			if ds != nil {
				if err := bindDataset(ctx, k, ds, out); err != nil {
					return err
				}
			}

			fmt.Fprintf(out, "AutoDS session %s. Type /help for commands.\n", k.ID())
			if err := repl(ctx, k, cmd.InOrStdin(), out); err != nil {
				return err
			}

			if nbPath != "" {
				return writeNotebook(k, nbPath, out)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&data, "data", "", "CSV, TSV or JSON file to load as df")
	cmd.Flags().StringVar(&database, "database", "", "Database URI for --query (sqlite://path)")
	cmd.Flags().StringVar(&query, "query", "", "Read-only SQL query whose result is loaded as df")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to resume (requires a durable session store)")
	cmd.Flags().StringVar(&nbPath, "notebook", "", "Write the session notebook to this file on exit")

	return cmd
}

func repl(ctx context.Context, k *kernel.Kernel, in io.Reader, out io.Writer) error {
	r := newRenderer(out, k.Environment().Language())
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	_, interactive := terminalWidth(in)

	for {
		if interactive {
			fmt.Fprint(out, "> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			cmd, arg, _ := strings.Cut(line, " ")
			arg = strings.TrimSpace(arg)
			switch cmd {
			case "/exit", "/quit":
				return nil
			case "/help":
				fmt.Fprintln(out, chatHelp)
			case "/reset":
				if err := k.Reset(ctx); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			case "/data":
				state, err := k.Environment().DataState(ctx)
				switch {
				case err != nil:
					fmt.Fprintf(out, "error: %v\n", err)
				case state == nil:
					fmt.Fprintln(out, "No dataset loaded.")
				default:
					fmt.Fprintln(out, state.String())
				}
			case "/load":
				ds, err := dataset.Load(arg)
				if err == nil {
					err = bindDataset(ctx, k, ds, out)
				}
				if err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			case "/notebook":
				if arg == "" {
					arg = "autods-" + k.ID() + ".ipynb"
				}
				if err := writeNotebook(k, arg, out); err != nil {
					fmt.Fprintf(out, "error: %v\n", err)
				}
			default:
				fmt.Fprintf(out, "unknown command %s\n%s\n", cmd, chatHelp)
			}
			continue
		}

		if _, err := k.Stream(ctx, line, r.update); err != nil && ctx.Err() != nil {
			return ctx.Err()
		}
	}
}

func bindDataset(ctx context.Context, k *kernel.Kernel, ds *sandbox.Dataset, out io.Writer) error {
	if err := k.Bind(ctx, sandbox.DatasetVariable, ds); err != nil {
		return err
	}
	fmt.Fprintln(out, ds.State(sandbox.DatasetVariable).String())
	return nil
}

func writeNotebook(k *kernel.Kernel, path string, out io.Writer) error {
	data, err := k.Notebook().JSON()
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return fmt.Errorf("write notebook: %w", err)
	}
	fmt.Fprintf(out, "Notebook written to %s\n", path)
	return nil
}
