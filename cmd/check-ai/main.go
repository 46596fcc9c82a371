package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/kdimtricp/vsearch/internal/ai"
	"github.com/kdimtricp/vsearch/internal/app"
	"github.com/kdimtricp/vsearch/internal/config"
	"github.com/kdimtricp/vsearch/internal/database"
	"github.com/kdimtricp/vsearch/internal/models"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:          "check-ai",
		Short:        "Check model services and summarize stored analyses",
		SilenceUsage: true,
	}
	cli, err := app.NewCLI(cmd)
	if err != nil {
		panic(err)
	}
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Second, "Timeout for each health check")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cli.Load()
		if err != nil {
			return err
		}
		out := cmd.OutOrStdout()

		fmt.Fprintln(out, "Checking analysis services")
		fmt.Fprintln(out, "==========================")
		healthy := checkServices(cmd.Context(), out, cfg, logger, timeout)
		fmt.Fprintln(out)

		if err := printVideos(cmd.Context(), out, cfg, logger); err != nil {
			return err
		}
		if !healthy {
			return fmt.Errorf("one or more required services are unavailable")
		}
		return nil
	}
	return cmd
}

type healthChecker interface {
	Health(ctx context.Context) error
}

// checkServices reports false when a required service is down. OpenAI is
// optional.
func checkServices(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger, timeout time.Duration) bool {
	healthy := true

	if _, err := ai.NewFrameExtractor(logger); err != nil {
		fmt.Fprintf(out, "ffmpeg:            unavailable (%v)\n", err)
		healthy = false
	} else {
		fmt.Fprintln(out, "ffmpeg:            ok")
	}

	client := &http.Client{}
	services := []struct {
		name    string
		url     string
		checker healthChecker
	}{
		{"detector", cfg.Models.DetectorURL, ai.NewHTTPDetector(cfg.Models.DetectorURL, cfg.Models.DetectorConfidence, client)},
		{"primary attribute", cfg.Models.PrimaryAttributeURL, ai.NewHTTPAttributeModel(cfg.Models.PrimaryAttributeURL, client)},
	}
	for _, s := range services {
		checkCtx, cancel := context.WithTimeout(ctx, timeout)
		err := s.checker.Health(checkCtx)
		cancel()
		if err != nil {
			fmt.Fprintf(out, "%-18s unavailable at %s (%v)\n", s.name+":", s.url, err)
			healthy = false
			continue
		}
		fmt.Fprintf(out, "%-18s ok (%s)\n", s.name+":", s.url)
	}

	if cfg.Models.OpenAIAPIKey == "" {
		fmt.Fprintln(out, "openai:            not configured (fallback and captions disabled)")
	} else {
		fmt.Fprintf(out, "openai:            configured (fallback %s, captions %s)\n",
			cfg.Models.FallbackModel, cfg.Models.CaptionModel)
	}
	return healthy
}

func printVideos(ctx context.Context, out io.Writer, cfg *config.Config, logger *slog.Logger) error {
	db, err := database.NewDB(ctx, cfg.Database.DB(), logger)
	if err != nil {
		return err
	}
	defer db.Close()

	videos, err := database.NewVideoRepository(db).ListVideos(ctx)
	if err != nil {
		return err
	}

	counts := map[models.AnalysisStatus]int{}
	var cost float64
	for _, v := range videos {
		counts[v.AnalysisStatus]++
		cost += v.AnalysisCost
	}

	fmt.Fprintf(out, "Total videos: %d\n", len(videos))
	for _, s := range []models.AnalysisStatus{models.StatusPending, models.StatusAnalyzing, models.StatusCompleted, models.StatusFailed} {
		fmt.Fprintf(out, "  %-10s %d\n", s, counts[s])
	}
	fmt.Fprintf(out, "Total fallback spend: $%.3f\n", cost)

	limit := min(5, len(videos))
	if limit > 0 {
		fmt.Fprintln(out, "\nMost recent:")
	}
	for _, v := range videos[:limit] {
		fmt.Fprintf(out, "  %s  %-30.30s %-10s %s\n", v.ID, v.Title, v.AnalysisStatus, v.AnalysisMessage)
	}
	return nil
}
