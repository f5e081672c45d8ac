package main

import (
	"github.com/spf13/cobra"
)

func serveCMD(cfgPath *string) *cobra.Command {
	var addr string
	serve := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, err := buildApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer app.Close()
			if addr != "" {
				app.Config.Server.Address = addr
			}
			return app.Serve(cmd.Context())
		},
	}
	serve.Flags().StringVar(&addr, "addr", "", "listen address (overrides server.address)")
	return serve
}
