package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/storyvec/internal/document"
	sverrors "github.com/Aman-CERP/storyvec/internal/errors"
	"github.com/Aman-CERP/storyvec/internal/index"
	"github.com/Aman-CERP/storyvec/internal/output"
)

type indexOptions struct {
	contentType string
	jsonOutput  bool
}

func newIndexCmd() *cobra.Command {
	opts := &indexOptions{}

	cmd := &cobra.Command{
		Use:   "index",
		Short: "Index captions and stories into the vector store",
		Long: `Extract text from the data directory, embed it in batches and upsert it
into the collection for each content type.

Batches that still fail after one retry are reported and the command exits
non-zero; the remaining batches are kept.`,
		Example: `  storyvec index
  storyvec index --type captions
  storyvec index --json`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runIndex(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.contentType, "type", "t", "all", "Content type: captions, stories or all")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "Output summaries as JSON")

	return cmd
}

func parseTypes(s string) ([]document.ContentType, error) {
	if s == "" || s == "all" {
		return document.ContentTypes, nil
	}
	ct, err := document.ParseContentType(s)
	if err != nil {
		return nil, sverrors.InvalidInput(err.Error()).
			WithSuggestion("use --type captions, --type stories or --type all")
	}
	return []document.ContentType{ct}, nil
}

func runIndex(cmd *cobra.Command, opts *indexOptions) error {
	types, err := parseTypes(opts.contentType)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(ctx, loadedConfig, logger)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	results, runErr := a.indexer.IndexAll(ctx, types)

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		if err := enc.Encode(results); err != nil {
			return err
		}
	} else {
		printSummaries(out, types, results)
	}

	if runErr != nil {
		return runErr
	}
	failed := 0
	for ct, s := range results {
		if s.Error != "" {
			return fmt.Errorf("%s: %s", ct, s.Error)
		}
		failed += len(s.FailedBatches)
	}
	if failed > 0 {
		return fmt.Errorf("%d batch(es) failed to index", failed)
	}
	return nil
}

func printSummaries(w io.Writer, types []document.ContentType, results map[document.ContentType]*index.Summary) {
	out := output.New(w)
	for _, ct := range types {
		s, ok := results[ct]
		if !ok {
			continue
		}
		if s.OK() {
			out.Successf("%s: indexed %d documents into %q", ct, s.Indexed, s.Collection)
		} else {
			out.Warningf("%s: indexed %d of %d documents into %q", ct, s.Indexed, s.Documents, s.Collection)
		}
		out.KeyValue("model", fmt.Sprintf("%s (%d dims)", s.Model, s.Dimensions), 10)
		out.KeyValue("batches", s.Batches, 10)
		out.KeyValue("skipped", s.Skipped, 10)
		if s.Unchanged > 0 {
			out.KeyValue("unchanged", s.Unchanged, 10)
		}
		out.KeyValue("duration", s.Duration.Round(time.Millisecond), 10)
		if s.Error != "" {
			out.Errorf("collection %q: %s", s.Collection, s.Error)
		}
		for _, f := range s.FailedBatches {
			out.Errorf("batch %d (%d documents): %s", f.Index, len(f.IDs), f.Error)
		}
		for _, skip := range s.SkippedUnits {
			out.Dim(fmt.Sprintf("skipped %s: %s", skip.Path, skip.Reason))
		}
	}
}
