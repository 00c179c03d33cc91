package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/storyvec/internal/document"
	"github.com/Aman-CERP/storyvec/internal/output"
	"github.com/Aman-CERP/storyvec/internal/search"
)

type searchOptions struct {
	contentType string
	limit       int
	threshold   float64
	jsonOutput  bool
}

func newSearchCmd() *cobra.Command {
	opts := &searchOptions{}

	cmd := &cobra.Command{
		Use:   "search <query>",
		Short: "Search an indexed collection",
		Example: `  storyvec search "missing girl"
  storyvec search "the lighthouse keeper" --type stories -n 5
  storyvec search "storm at sea" --threshold 0.4 --json`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req := search.Request{
				Query:       strings.Join(args, " "),
				ContentType: document.ContentType(opts.contentType),
				Limit:       opts.limit,
			}
			if cmd.Flags().Changed("threshold") {
				req.ScoreThreshold = &opts.threshold
			}
			return runSearch(cmd, req, opts.jsonOutput)
		},
	}

	cmd.Flags().StringVarP(&opts.contentType, "type", "t", string(document.ContentTypeCaptions), "Content type: captions or stories")
	cmd.Flags().IntVarP(&opts.limit, "limit", "n", 0, "Maximum results (default: search.top_k)")
	cmd.Flags().Float64Var(&opts.threshold, "threshold", 0, "Minimum score (default: search.score_threshold)")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output results as JSON")

	return cmd
}

func runSearch(cmd *cobra.Command, req search.Request, jsonOutput bool) error {
	ctx := cmd.Context()

	a, err := newApp(ctx, loadedConfig, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	resp, err := a.searcher.Search(ctx, req)
	if err != nil {
		return err
	}

	if jsonOutput {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	}
	printResults(cmd.OutOrStdout(), resp)
	return nil
}

func printResults(w io.Writer, resp *search.Response) {
	out := output.New(w)
	if len(resp.Results) == 0 {
		out.Warningf("no %s matched %q", resp.ContentType, resp.Query)
		return
	}

	out.Heading(fmt.Sprintf("%d %s result(s) for %q", len(resp.Results), resp.ContentType, resp.Query))
	for i, r := range resp.Results {
		out.Statusf(fmt.Sprintf("%2d.", i+1), "[%.3f] %s", r.Score, output.Truncate(r.Text, 100))
		if path, ok := r.Metadata[document.MetaFilePath]; ok {
			out.Dim(fmt.Sprint(path))
		}
	}
}
