package main

import (
	"context"
	"fmt"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/visibility-cli/internal/cache"
	"github.com/sells-group/visibility-cli/internal/discovery"
	"github.com/sells-group/visibility-cli/internal/model"
)

var analyzeFresh bool

var analyzeCmd = &cobra.Command{
	Use:   "analyze <url>",
	Short: "Run the full visibility analysis for a domain",
	Long:  "Onboards the URL (or resumes its unfinished run), walks every pipeline stage, and prints the computed dashboard summary.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initEnv(ctx, "analyze")
		if err != nil {
			return err
		}
		defer env.Close()

		rawURL := strings.TrimSpace(args[0])
		domain, version, err := resolveRun(ctx, env, rawURL)
		if err != nil {
			return err
		}

		progress, err := env.Machine.Resume(ctx, domain.ID, version.ID)
		if err != nil {
			return err
		}
		zap.L().Info("analysis run",
			zap.String("domain_id", domain.ID),
			zap.String("domain_version_id", version.ID),
			zap.String("resuming_at", progress.CurrentStep.String()),
		)

		if err := runStages(ctx, env, domain, version, progress); err != nil {
			return err
		}

		analysis, err := env.Artifacts.GetOrCompute(ctx, domain.ID)
		if err != nil {
			return err
		}
		printDashboard(cmd, analysis)
		return nil
	},
}

// resolveRun finds or creates the domain and the run to work on.
func resolveRun(ctx context.Context, env *appEnv, rawURL string) (*model.Domain, *model.DomainVersion, error) {
	domain, err := env.Store.GetDomainByURL(ctx, rawURL)
	if err != nil {
		return nil, nil, err
	}
	if domain == nil {
		domain, err = env.Store.CreateDomain(ctx, rawURL)
		if err != nil {
			return nil, nil, err
		}
	}

	if !analyzeFresh {
		version, err := env.Store.GetLatestVersion(ctx, domain.ID)
		if err != nil {
			return nil, nil, err
		}
		if version != nil {
			p, err := env.Store.GetProgress(ctx, domain.ID, version.ID)
			if err != nil {
				return nil, nil, err
			}
			if p == nil || !p.IsCompleted {
				return domain, version, nil
			}
		}
	}

	version, err := env.Store.CreateVersion(ctx, domain.ID)
	if err != nil {
		return nil, nil, err
	}
	if err := env.Artifacts.MarkStale(ctx, domain.ID); err != nil {
		zap.L().Warn("mark stale failed", zap.Error(err))
	}
	return domain, version, nil
}

// runStages advances the run from wherever it stands to completion, executing
// each stage's work locally.
func runStages(ctx context.Context, env *appEnv, domain *model.Domain, version *model.DomainVersion, progress *model.OnboardingProgress) error {
	brand := cache.BrandFromURL(domain.URL)
	var content *discovery.SiteContent

	for !progress.IsCompleted {
		var payload model.StepData
		var err error

		switch progress.CurrentStep {
		case model.StepSubmission:
			payload.Submission = &model.SubmissionData{URL: domain.URL}

		case model.StepExtraction:
			var data *model.ExtractionData
			data, content, err = env.Discovery.RunExtraction(ctx, domain.URL)
			if err != nil {
				return eris.Wrap(err, "extraction stage")
			}
			payload.Extraction = data

		case model.StepKeywordDiscovery:
			var data *model.KeywordDiscoveryData
			data, err = env.Discovery.RunKeywordDiscovery(ctx, version.ID, domain.URL, brand, content)
			if err != nil {
				return eris.Wrap(err, "keyword stage")
			}
			payload.Keywords = data

		case model.StepPhraseGeneration:
			var data *model.PhraseGenerationData
			data, err = env.Discovery.RunPhraseGeneration(ctx, version.ID, domain.URL, brand)
			if err != nil {
				return eris.Wrap(err, "phrase stage")
			}
			payload.Phrases = data

		case model.StepAIQuerying:
			// The machine runs the fan-out itself.
		}

		progress, err = env.Machine.Advance(ctx, domain.ID, version.ID, payload)
		if err != nil {
			return err
		}
		zap.L().Info("stage complete", zap.String("now_at", progress.CurrentStep.String()))
	}
	return nil
}

func printDashboard(cmd *cobra.Command, a *model.DashboardAnalysis) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Visibility score: %.1f/100\n", a.Metrics.VisibilityScore)
	fmt.Fprintf(out, "Mention rate:     %.1f%% (%d of %d queries)\n",
		a.Metrics.MentionRate, a.Metrics.SuccessfulQueries, a.Metrics.TotalQueries)
	if a.Metrics.PartialCoverage {
		fmt.Fprintln(out, "Coverage:         partial (some queries failed)")
	}
	if a.Insights.Summary != "" {
		fmt.Fprintf(out, "\n%s\n", a.Insights.Summary)
	}
	for _, mp := range a.Metrics.ModelPerformance {
		fmt.Fprintf(out, "  %-24s %3d queries  %.1f%% mentions  $%.4f\n",
			mp.Model, mp.Queries, mp.MentionRate, mp.TotalCostUSD)
	}
}

func init() {
	analyzeCmd.Flags().BoolVar(&analyzeFresh, "fresh", false, "start a new run even if the last one completed")
	rootCmd.AddCommand(analyzeCmd)
}
