package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/newser-evidence/internal/pipeline"
	fetchmodels "github.com/mohammad-safakhou/newser-evidence/tools/web_fetch/models"
	"github.com/mohammad-safakhou/newser-evidence/tools/web_search/models"
)

func gatherCMD(cfgPath *string) *cobra.Command {
	var (
		req       pipeline.Request
		depth     string
		pretty    bool
		citations bool
	)
	gather := &cobra.Command{
		Use:   "gather <query>",
		Short: "Run discovery, harvesting and reranking for a query and print the result as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, err := buildApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer app.Close()

			req.Query = strings.Join(args, " ")
			req.Depth = models.Depth(depth)
			res, err := app.Pipeline.Gather(cmd.Context(), req)
			if err != nil {
				return err
			}
			if citations {
				for _, line := range fetchmodels.Citations(res.Evidence, 0) {
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
				return nil
			}
			return writeJSON(cmd.OutOrStdout(), res, pretty)
		},
	}
	f := gather.Flags()
	f.IntVarP(&req.MaxResults, "max-results", "n", 0, "discovery results to keep (default pipeline.max_results)")
	f.StringSliceVar(&req.IncludeDomains, "include", nil, "domains or topics to restrict discovery to")
	f.StringSliceVar(&req.ExcludeDomains, "exclude", nil, "domains or topics to leave out")
	f.StringVar(&depth, "depth", string(models.DepthBasic), "provider search depth: basic or advanced")
	f.BoolVar(&pretty, "pretty", false, "indent JSON output")
	f.BoolVar(&citations, "citations", false, "print numbered citation lines instead of JSON")
	return gather
}

func harvestCMD(cfgPath *string) *cobra.Command {
	var pretty bool
	harvest := &cobra.Command{
		Use:   "harvest <url>...",
		Short: "Fetch pages directly and print the extracted evidence as JSON",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, logger, err := buildApp(cmd.Context(), *cfgPath)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()
			defer app.Close()

			hits := make([]models.Hit, 0, len(args))
			for _, raw := range args {
				hit, err := models.NewHit("", "", raw)
				if err != nil {
					return err
				}
				hits = append(hits, hit)
			}
			return writeJSON(cmd.OutOrStdout(), app.Harvester.HarvestAll(cmd.Context(), hits), pretty)
		},
	}
	harvest.Flags().BoolVar(&pretty, "pretty", false, "indent JSON output")
	return harvest
}
