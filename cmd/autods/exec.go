package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/sandbox"
)

func newExecCmd(a *app) *cobra.Command {
	var (
		code     string
		data     string
		database string
		query    string
		asJSON   bool
	)

	cmd := &cobra.Command{
		Use:   "exec [file|-]",
		Short: "Run code once in a fresh sandbox and print the observation",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			src, err := readSource(code, args, cmd.InOrStdin())
			if err != nil {
				return err
			}
			cfg, err := a.config()
			if err != nil {
				return err
			}
			_, obs, err := a.observer(cmd.ErrOrStderr())
			if err != nil {
				return err
			}
			ctx := cmd.Context()

			env, err := kernel.NewEnvironment(ctx, &cfg.Sandbox, obs)
			if err != nil {
				return err
			}
			defer env.Close()

			ds, err := loadDataset(ctx, data, database, query)
			if err != nil {
				return err
			}
			if ds != nil {
				if err := env.Bind(ctx, sandbox.DatasetVariable, ds); err != nil {
					return err
				}
			}

			res := env.Run(ctx, src, cfg.Sandbox.Timeout.Std())
			out := cmd.OutOrStdout()
			if asJSON {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(res); err != nil {
					return err
				}
			} else {
				fmt.Fprintln(out, kernel.Observation(res))
			}

			if !res.Success {
				return fmt.Errorf("execution failed: %s", res.Error.Kind)
			}
			return nil
		},
	}

	cmd.Flags().StringVarP(&code, "code", "c", "", "Code to run instead of a file")
	cmd.Flags().StringVar(&data, "data", "", "CSV, TSV or JSON file to bind as df first")
	cmd.Flags().StringVar(&database, "database", "", "Database URI for --query (sqlite://path)")
	cmd.Flags().StringVar(&query, "query", "", "Read-only SQL query whose result is bound as df first")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the full result as JSON")

	return cmd
}

func readSource(code string, args []string, stdin io.Reader) (string, error) {
	switch {
	case code != "":
		return code, nil
	case len(args) == 0:
		return "", errors.New("nothing to run: pass a file, - for stdin, or --code")
	case args[0] == "-":
		b, err := io.ReadAll(stdin)
		return string(b), err
	}
	b, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("read %s: %w", args[0], err)
	}
	return string(b), nil
}
