package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/crawlrunner/internal/crawler"
)

func newCrawlCmd() *cobra.Command {
	var (
		maxPages int
		depth    int
		strategy string
		query    string
		waitTime int

		captureNetwork     bool
		captureConsole     bool
		captureHTML        bool
		captureScreenshots bool
	)
	cmd := &cobra.Command{
		Use:   "crawl URL",
		Short: "Runs one crawl and prints the result JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := resolveApp(cmd.Context())
			if err != nil {
				return err
			}

			req := crawler.CrawlRequest{URL: args[0]}
			flags := cmd.Flags()
			if flags.Changed("max-pages") {
				req.MaxPages = &maxPages
			}
			if flags.Changed("depth") {
				req.Depth = &depth
			}
			if flags.Changed("strategy") {
				s := crawler.Strategy(strategy)
				req.Strategy = &s
			}
			if flags.Changed("query") {
				req.Query = &query
			}
			if flags.Changed("wait-time") {
				req.WaitTime = &waitTime
			}
			if flags.Changed("capture-network-traffic") {
				req.CaptureNetworkTraffic = &captureNetwork
			}
			if flags.Changed("capture-console") {
				req.CaptureConsole = &captureConsole
			}
			if flags.Changed("capture-html") {
				req.CaptureHTML = &captureHTML
			}
			if flags.Changed("capture-screenshots") {
				req.CaptureScreenshots = &captureScreenshots
			}

			params, err := a.Config().CrawlDefaults().Resolve(req)
			if err != nil {
				return err
			}
			exec, err := a.Pipeline().Execute(cmd.Context(), params)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), string(exec.Result.Raw))
			if !exec.Result.Parsed.Success {
				return fmt.Errorf("crawl of %s failed", params.URL)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&maxPages, "max-pages", 1, "maximum pages to visit")
	cmd.Flags().IntVar(&depth, "depth", 0, "link depth beyond the start URL")
	cmd.Flags().StringVar(&strategy, "strategy", string(crawler.StrategyBFS), "deep crawl strategy: bfs, dfs or best_first")
	cmd.Flags().StringVar(&query, "query", "", "relevance query for best_first")
	cmd.Flags().IntVar(&waitTime, "wait-time", 2000, "milliseconds to wait after page load")
	cmd.Flags().BoolVar(&captureNetwork, "capture-network-traffic", false, "include network requests in the result")
	cmd.Flags().BoolVar(&captureConsole, "capture-console", false, "include browser console messages in the result")
	cmd.Flags().BoolVar(&captureHTML, "capture-html", false, "include the page HTML in the result")
	cmd.Flags().BoolVar(&captureScreenshots, "capture-screenshots", false, "include screenshots in the result")
	return cmd
}
