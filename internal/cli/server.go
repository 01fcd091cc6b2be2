package cli

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"exam-session-service/internal/app"
	"exam-session-service/internal/broadcast"
	transport "exam-session-service/internal/transport/http"
	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam session server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, log, err := loadConfig(configPath)
	if err != nil {
		return err
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}

	b, err := openBackends(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer b.close()

	overflow := broadcast.DropOldest
	if cfg.Broadcast.Disconnect {
		overflow = broadcast.Disconnect
	}
	bus := broadcast.New(broadcast.Options{
		QueueSize: cfg.Broadcast.QueueSize,
		Overflow:  overflow,
		Logger:    log,
	})
	defer bus.Close()

	session := app.NewSessionService(app.Deps{
		Exams:       b.exams,
		Submissions: b.submissions,
		Blobs:       b.blobs,
		Checkpoints: b.checkpoints,
		Bus:         bus,
		Logger:      log,
	})
	if err := session.Restore(ctx); err != nil {
		log.Error().Err(err).Msg("restore session failed, starting idle")
	}
	catalog := app.NewCatalogService(b.exams, b.blobs, catalogOptions(cfg), log)

	gin.SetMode(gin.ReleaseMode)
	router := transport.NewRouter(
		transport.NewAdminHandler(session, catalog, cfg.MaxPackageBytes(), log),
		transport.NewWSHandler(session, log, cfg.Server.AllowedOrigins),
		transport.RouterOptions{AllowedOrigins: cfg.Server.AllowedOrigins, BlobPrefix: b.blobPrefix},
	)

	server := &http.Server{
		Addr:              ":" + finalPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("port", finalPort).Msg("starting exam session service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(stop)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	case err := <-errCh:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
