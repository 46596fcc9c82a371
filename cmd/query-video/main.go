package main

import (
	"context"
	"encoding/json"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kdimtricp/vsearch/internal/app"
	"github.com/kdimtricp/vsearch/internal/config"
	"github.com/kdimtricp/vsearch/internal/database"
	"github.com/kdimtricp/vsearch/internal/query"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "query-video <video-id> <query text>",
		Short:        "Query an analyzed video and print the JSON response",
		Example:      `  query-video 3f2a9c1e-... "분홍색 옷 입은 사람"`,
		Args:         cobra.MinimumNArgs(2),
		SilenceUsage: true,
	}
	cli, err := app.NewCLI(cmd)
	if err != nil {
		panic(err)
	}
	cmd.Flags().Int("max-results", 20, "Maximum number of frames returned")
	if err := cli.Bind(cmd, "query.maxresults", "max-results"); err != nil {
		panic(err)
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := cli.Load()
		if err != nil {
			return err
		}

		resp, err := runQuery(cmd.Context(), cfg, logger, args[0], strings.Join(args[1:], " "))
		if err != nil {
			return err
		}

		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		enc.SetEscapeHTML(false)
		return enc.Encode(resp)
	}
	return cmd
}

// runQuery opens only the database, so it works without ffmpeg or the
// model sidecars.
func runQuery(ctx context.Context, cfg *config.Config, logger *slog.Logger, videoID, text string) (query.Response, error) {
	db, err := database.NewDB(ctx, cfg.Database.DB(), logger)
	if err != nil {
		return query.Response{}, err
	}
	defer db.Close()

	engine := query.NewEngine(
		database.NewVideoRepository(db),
		database.NewIndexRepository(db),
		query.Config{MaxResults: cfg.Query.MaxResults},
		nil,
		logger,
	)
	return engine.Query(ctx, query.Request{VideoID: videoID, QueryText: text}), nil
}
