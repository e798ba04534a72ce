package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/valuation-cli/internal/progress"
)

var (
	servePort    int
	serveOffline bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API with live batch progress over websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}
		cfg.Server.Port = port

		mode := "serve"
		if serveOffline {
			mode = "serve-offline"
		}
		if err := cfg.Validate(mode); err != nil {
			return err
		}

		hub := progress.NewHub(cfg.Server.AllowedOrigins...)
		env, err := initValuation(ctx, envOptions{Offline: serveOffline, Publisher: hub})
		if err != nil {
			return err
		}
		defer env.Close()

		api := &apiServer{
			ctx:            ctx,
			orch:           env.Orchestrator,
			feedback:       env.Feedback,
			hub:            hub,
			store:          env.Store,
			allowedOrigins: cfg.Server.AllowedOrigins,
			maxUpload:      int64(cfg.Server.MaxUploadMB) << 20,
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           api.routes(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		// Graceful shutdown
		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()

		zap.L().Info("starting server", zap.Int("port", port), zap.Bool("offline", serveOffline))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		// Let a running batch record its cancellation before the store closes.
		waitCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		_ = env.Orchestrator.Wait(waitCtx)
		return nil
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	serveCmd.Flags().BoolVar(&serveOffline, "offline", false, "use deterministic stand-ins instead of external APIs")
	rootCmd.AddCommand(serveCmd)
}
