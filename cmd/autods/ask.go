package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/tailored-agentic-units/autods/transport"
)

func newAskCmd(a *app) *cobra.Command {
	var (
		sessionID string
		agentName string
		data      string
	)

	cmd := &cobra.Command{
		Use:   "ask <prompt>",
		Short: "Run one turn on a running server and stream the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			out := cmd.OutOrStdout()
			client := transport.NewClient(nil, a.v.GetString("server"))

			if data != "" {
				content, err := os.ReadFile(data)
				if err != nil {
					return err
				}
				loaded, err := client.LoadData(ctx, &transport.LoadDataRequest{
					SessionID: sessionID,
					Name:      filepath.Base(data),
					Content:   string(content),
				})
				if err != nil {
					return err
				}
				sessionID = loaded.SessionID
				fmt.Fprintln(cmd.ErrOrStderr(), loaded.Message)
			}

			r := newRenderer(out, "python")
			id, err := client.Chat(ctx, &transport.ChatRequest{
				SessionID: sessionID,
				Prompt:    args[0],
				Agent:     agentName,
			}, func(u *transport.ChatUpdate) {
				r.update(u.Update)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "session %s\n", id)
			return nil
		},
	}

	cmd.Flags().String("server", "http://localhost:8080", "Server base URL")
	cmd.Flags().StringVar(&sessionID, "session", "", "Session id to continue")
	cmd.Flags().StringVar(&agentName, "agent", "", "Named agent to use for this turn")
	cmd.Flags().StringVar(&data, "data", "", "CSV, TSV or JSON file to upload as df first")
	a.v.BindPFlag("server", cmd.Flags().Lookup("server"))

	return cmd
}
