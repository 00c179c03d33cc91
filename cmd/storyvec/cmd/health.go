package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Aman-CERP/storyvec/internal/config"
	"github.com/Aman-CERP/storyvec/internal/embed"
	"github.com/Aman-CERP/storyvec/internal/output"
	"github.com/Aman-CERP/storyvec/internal/preflight"
	"github.com/Aman-CERP/storyvec/internal/vectorstore"
)

// healthReport mirrors the services block of GET /health.
type healthReport struct {
	Status   string                  `json:"status"`
	Embedder *embed.EmbedderInfo     `json:"embedder,omitempty"`
	Services map[string]serviceCheck `json:"services"`
	Checks   []preflight.CheckResult `json:"checks"`
}

type serviceCheck struct {
	OK    bool   `json:"ok"`
	Error string `json:"error,omitempty"`
}

func newHealthCmd() *cobra.Command {
	var jsonOutput bool
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "health",
		Short: "Check the embedding backend and vector store",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			report := checkHealth(ctx, loadedConfig)

			if jsonOutput {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(report); err != nil {
					return err
				}
			} else {
				printHealth(cmd, report)
			}

			if report.Status != "ok" {
				return errors.New("one or more services are unhealthy")
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&jsonOutput, "json", false, "Output as JSON")
	cmd.Flags().DurationVar(&timeout, "timeout", 30*time.Second, "Overall health check timeout")

	return cmd
}

func checkHealth(ctx context.Context, cfg *config.Config) healthReport {
	report := healthReport{Status: "ok", Services: map[string]serviceCheck{}}

	embedder, err := embed.NewEmbedder(ctx, cfg.Embeddings, logger)
	if err != nil {
		report.Services["embeddings"] = serviceCheck{Error: err.Error()}
	} else {
		defer func() { _ = embedder.Close() }()
		info := embed.GetInfo(ctx, embedder)
		report.Embedder = &info
		p := serviceCheck{OK: info.Available}
		if !info.Available {
			p.Error = "backend not responding"
		}
		report.Services["embeddings"] = p
	}

	store, err := vectorstore.New(cfg, logger)
	if err == nil {
		defer func() { _ = store.Close() }()
		err = store.Health(ctx)
	}
	if err != nil {
		report.Services["vector_store"] = serviceCheck{Error: err.Error()}
	} else {
		report.Services["vector_store"] = serviceCheck{OK: true}
	}

	for _, p := range report.Services {
		if !p.OK {
			report.Status = "degraded"
		}
	}

	report.Checks = preflight.New().RunAll(ctx, cfg)
	if preflight.HasCriticalFailures(report.Checks) {
		report.Status = "degraded"
	}
	return report
}

func printHealth(cmd *cobra.Command, report healthReport) {
	out := output.New(cmd.OutOrStdout())
	for _, name := range []string{"embeddings", "vector_store"} {
		p := report.Services[name]
		label := name
		if name == "embeddings" && report.Embedder != nil {
			label = fmt.Sprintf("embeddings (%s, %s, %d dims)",
				report.Embedder.Provider, report.Embedder.Model, report.Embedder.Dimensions)
		}
		if p.OK {
			out.Success(label)
		} else {
			out.Errorf("%s: %s", label, p.Error)
		}
	}
	printChecks(out, report.Checks)
}

func printChecks(out *output.Writer, checks []preflight.CheckResult) {
	for _, c := range checks {
		switch c.Status {
		case preflight.StatusPass:
			out.Successf("%s: %s", c.Name, c.Message)
		case preflight.StatusWarn:
			out.Warningf("%s: %s", c.Name, c.Message)
		default:
			out.Errorf("%s: %s", c.Name, c.Message)
		}
		if c.Details != "" {
			out.Dim(c.Details)
		}
	}
}
