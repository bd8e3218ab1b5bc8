package main

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/tailored-agentic-units/autods/kernel"
	"github.com/tailored-agentic-units/autods/transport"
)

func newServeCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve sessions over Connect, WebSocket and HTTP",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := a.config()
			if err != nil {
				return err
			}
			logger, obs, err := a.observer(cmd.ErrOrStderr())
			if err != nil {
				return err
			}

			reg, err := kernel.NewRegistry(cfg,
				kernel.WithRegistryObserver(obs),
				kernel.WithKernelOptions(kernel.WithObserver(obs)),
			)
			if err != nil {
				return err
			}

			srv := transport.NewServer(reg,
				transport.WithObserver(obs),
				transport.WithLogger(logger),
			)

			addr := a.v.GetString("addr")
			g, ctx := errgroup.WithContext(cmd.Context())
			g.Go(func() error {
				return srv.ListenAndServe(ctx, addr)
			})
			g.Go(func() error {
				<-ctx.Done()
				logger.Info("shutting down", "sessions", len(reg.IDs()))
				return nil
			})

			serveErr := g.Wait()
			closeErr := reg.CloseAll(context.Background())
			return errors.Join(serveErr, closeErr)
		},
	}

	cmd.Flags().String("addr", ":8080", "Listen address")
	a.v.BindPFlag("addr", cmd.Flags().Lookup("addr"))

	return cmd
}
