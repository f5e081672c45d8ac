package main

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/newser-evidence/mcp"
)

func mcpCMD(cfgPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "mcp",
		Short: "Serve the evidence tools over stdio JSON-RPC",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, err := buildApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer app.Close()

			srv := mcp.NewServer(app.Gateway, app.Harvester, app.Pipeline, app.Rerank, app.Config.Server.RequestTimeout, logger)
			return srv.Serve(cmd.Context(), os.Stdin, os.Stdout)
		},
	}
}
