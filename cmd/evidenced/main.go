package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/mohammad-safakhou/newser-evidence/config"
	"github.com/mohammad-safakhou/newser-evidence/internal/logging"
	"github.com/mohammad-safakhou/newser-evidence/internal/runtime"
)

func main() {
	var cfgPath string
	root := &cobra.Command{
		Use:           "evidenced",
		Short:         "Gather ranked web evidence for research queries",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default searches ./config and .)")

	root.AddCommand(serveCMD(&cfgPath), gatherCMD(&cfgPath), harvestCMD(&cfgPath), mcpCMD(&cfgPath))
	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// buildApp loads configuration and wires the application. The caller owns
// the returned app and logger.
func buildApp(ctx context.Context, cfgPath string) (*runtime.App, *zap.Logger, error) {
	cfg, err := config.LoadConfig(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(cfg.General)
	if err != nil {
		return nil, nil, err
	}
	app, err := runtime.Build(ctx, cfg, logger)
	if err != nil {
		_ = logger.Sync()
		return nil, nil, err
	}
	return app, logger, nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	return enc.Encode(v)
}
