package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

const redacted = "[redacted]"

func newConfigCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as JSON",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			if p := cfg.Agent.Provider; p != nil && p.APIKey != "" {
				p.APIKey = redacted
			}
			for name, ac := range cfg.Agents {
				if ac.Provider != nil && ac.Provider.APIKey != "" {
					p := *ac.Provider
					p.APIKey = redacted
					ac.Provider = &p
					cfg.Agents[name] = ac
				}
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(cfg)
		},
	}
}
