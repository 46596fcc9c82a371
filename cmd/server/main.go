package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/kdimtricp/vsearch/internal/app"
)

func main() {
	if err := newCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "server",
		Short:        "Serve the vsearch HTTP API",
		SilenceUsage: true,
	}
	cli, err := app.NewCLI(cmd)
	if err != nil {
		panic(err)
	}
	cmd.Flags().IntP("port", "p", 8080, "Port to listen on")
	if err := cli.Bind(cmd, "server.port", "port"); err != nil {
		panic(err)
	}

	cmd.RunE = func(cmd *cobra.Command, args []string) error {
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

		srv := &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
			Handler: services.Router(),
		}

		errCh := make(chan error, 1)
		go func() {
			logger.Info("Server starting",
				"port", cfg.Server.Port,
				"database", cfg.Database.Type,
				"upload_dir", cfg.Storage.UploadDir,
				"frame_dir", cfg.Storage.FrameDir,
				"max_upload_size", cfg.Server.MaxUploadSize)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errCh <- err
			}
			close(errCh)
		}()

		select {
		case err := <-errCh:
			if err != nil {
				services.Close(context.Background())
				return fmt.Errorf("listen: %w", err)
			}
		case <-ctx.Done():
		}

		logger.Info("Shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("HTTP shutdown failed", "error", err)
		}
		return services.Close(shutdownCtx)
	}
	return cmd
}
