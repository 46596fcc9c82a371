package main

import (
	"context"
	"errors"
	"fmt"
	"mime"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kdimtricp/vsearch/internal/app"
	"github.com/kdimtricp/vsearch/internal/models"
	"github.com/kdimtricp/vsearch/internal/storage"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	var file, title string

	cmd := &cobra.Command{
		Use:   "analyze-video [video-id]",
		Short: "Run a video analysis in the foreground",
		Long: `Analyze a stored video by id, or register a local file with --file and
analyze it. Progress is printed as it is reported.`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
	}
	cli, err := app.NewCLI(cmd)
	if err != nil {
		panic(err)
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Register and analyze a local video file")
	cmd.Flags().StringVar(&title, "title", "", "Title for a file registered with --file")

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		if (len(args) == 0) == (file == "") {
			return errors.New("provide either a video id or --file")
		}

		cfg, logger, err := cli.Load()
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		services, err := app.New(ctx, cfg, logger)
		if err != nil {
			return err
		}
		defer services.Close(context.Background())

		videoID := ""
		if len(args) == 1 {
			videoID = args[0]
		} else {
			video, err := register(ctx, services, file, title)
			if err != nil {
				return err
			}
			videoID = video.ID
			fmt.Printf("Registered %s as %s\n", file, video.ID)
		}

		updates, unsubscribe := services.Jobs.Subscribe(videoID)
		defer unsubscribe()
		go func() {
			for u := range updates {
				fmt.Printf("[%3d%%] %s %s\n", u.Progress, u.Status, u.Message)
			}
		}()

		if err := services.Jobs.Run(ctx, videoID); err != nil {
			return fmt.Errorf("analysis failed: %w", err)
		}

		video, err := services.Videos.GetVideoByID(context.Background(), videoID)
		if err != nil {
			return err
		}
		fmt.Printf("%s (run %s, cost $%.3f)\n", video.AnalysisMessage, video.RunID, video.AnalysisCost)
		return nil
	}
	return cmd
}

func register(ctx context.Context, s *app.Services, path, title string) (*models.Video, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}

	contentType := mime.TypeByExtension(strings.ToLower(filepath.Ext(path)))
	if contentType == "" {
		contentType = "application/octet-stream"
	}
	name := filepath.Base(path)
	if title == "" {
		title = strings.TrimSuffix(name, filepath.Ext(name))
	}

	stored, err := s.Uploads.SaveFile(f, storage.FileInfo{Filename: name, ContentType: contentType, Size: stat.Size()})
	if err != nil {
		return nil, fmt.Errorf("store video: %w", err)
	}
	video := models.NewVideo(title, "", stored, contentType, stat.Size())
	if err := s.Videos.InsertVideo(ctx, video); err != nil {
		s.Uploads.DeleteFile(stored)
		return nil, fmt.Errorf("register video: %w", err)
	}
	return video, nil
}
