package main

import (
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tailored-agentic-units/autods/core/config"
	"github.com/tailored-agentic-units/autods/core/protocol"
	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/memory"
	"github.com/tailored-agentic-units/autods/observability"
	"github.com/tailored-agentic-units/autods/sandbox"
)

const envPrefix = "AUTODS"

// app carries the settings shared by every subcommand. Values come from
// flags, then AUTODS_* environment variables, then the config file.
type app struct {
	v *viper.Viper
}

func newRootCmd() *cobra.Command {
	a := &app{v: viper.New()}

	rootCmd := &cobra.Command{
		Use:           "autods",
		Short:         "AutoDS: an agent that analyzes data by writing and running code",
		Long:          "autods drives a language model through a think, execute, observe loop against a stateful sandbox holding your dataset. Run it as an interactive REPL, a one-off executor, or a server.",
		SilenceUsage:  true,
		SilenceErrors: false,
	}

	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "Path to a kernel config file (.json or .toml)")
	flags.String("log-format", "text", "Log format: text or json")
	flags.Bool("verbose", false, "Enable debug logging")
	flags.StringSlice("observers", []string{"slog"}, "Event observers: slog, noop")
	flags.String("provider", "", "Model provider: openai, anthropic or ollama")
	flags.String("model", "", "Model name")
	flags.String("base-url", "", "Provider base URL")
	flags.String("api-key", "", "Provider API key")
	flags.String("protocol", "", "Protocol: tools (structured) or chat (freeform)")
	flags.String("sandbox", "", "Sandbox kind: inproc or worker")
	flags.String("python", "", "Python interpreter for the worker sandbox")
	flags.Duration("timeout", 0, "Per-execution timeout")
	flags.Int("max-iterations", -1, "Model calls per turn before giving up")
	flags.Int("max-retries", -1, "Failed executions per turn before giving up")
	flags.String("memory", "", "Workspace directory or sqlite:// URI for notes, transcripts and notebooks")
	flags.Bool("stream", false, "Stream model output")
	flags.Bool("syntax-check", false, "Check Python syntax before execution")

	a.v.SetEnvPrefix(envPrefix)
	a.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	a.v.AutomaticEnv()
	if err := a.v.BindPFlags(flags); err != nil {
		rootCmd.RunE = func(_ *cobra.Command, _ []string) error { return err }
		return rootCmd
	}

	rootCmd.AddCommand(
		newServeCmd(a),
		newChatCmd(a),
		newExecCmd(a),
		newAskCmd(a),
		newConfigCmd(a),
		newWorkspaceCmd(a),
	)

	return rootCmd
}

// config builds the kernel config: the file (or defaults) with flag and
// environment overrides applied on top.
func (a *app) config() (*kernel.Config, error) {
	cfg := kernel.DefaultConfig()
	if file := a.v.GetString("config"); file != "" {
		loaded, err := kernel.LoadConfig(file)
		if err != nil {
			return nil, err
		}
		cfg = *loaded
	}

	if cfg.Agent.Provider == nil {
		cfg.Agent.Provider = &config.ProviderConfig{}
	}
	if cfg.Agent.Model == nil {
		cfg.Agent.Model = &config.ModelConfig{}
	}
	setString(&cfg.Agent.Provider.Name, a.v.GetString("provider"))
	setString(&cfg.Agent.Provider.BaseURL, a.v.GetString("base-url"))
	setString(&cfg.Agent.Provider.APIKey, a.v.GetString("api-key"))
	setString(&cfg.Agent.Model.Name, a.v.GetString("model"))
	setString(&cfg.Sandbox.Kind, a.v.GetString("sandbox"))
	setString(&cfg.Sandbox.Python, a.v.GetString("python"))
	if m := a.v.GetString("memory"); m != "" {
		if path, ok := strings.CutPrefix(m, "sqlite://"); ok {
			cfg.Memory.Backend = memory.BackendSQLite
			m = path
		}
		cfg.Memory.Path = m
	}

	if p := a.v.GetString("protocol"); p != "" {
		cfg.Protocol = protocol.Protocol(p)
	}
	if d := a.v.GetDuration("timeout"); d > 0 {
		cfg.Sandbox.Timeout = sandbox.Duration(d)
	}
	if n := a.v.GetInt("max-iterations"); n >= 0 {
		cfg.MaxIterations = n
	}
	if n := a.v.GetInt("max-retries"); n >= 0 {
		cfg.MaxRetries = n
	}
	if a.v.GetBool("stream") {
		cfg.Stream = true
	}
	if a.v.GetBool("syntax-check") {
		cfg.SyntaxCheck = true
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setString(dst *string, v string) {
	if v != "" {
		*dst = v
	}
}

// logger builds the slog logger for --log-format and --verbose.
func (a *app) logger(w io.Writer) (*slog.Logger, error) {
	level := slog.LevelInfo
	if a.v.GetBool("verbose") {
		level = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: level}

	switch format := a.v.GetString("log-format"); format {
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	default:
		return nil, fmt.Errorf("unknown log format %q", format)
	}
}

func (a *app) observer(w io.Writer) (*slog.Logger, observability.Observer, error) {
	logger, err := a.logger(w)
	if err != nil {
		return nil, nil, err
	}
	observability.RegisterObserver("slog", observability.NewSlogObserver(logger))
	obs, err := observability.Select(a.v.GetStringSlice("observers")...)
	if err != nil {
		return nil, nil, err
	}
	return logger, obs, nil
}
