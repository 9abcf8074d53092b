package callerpro

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	ctrllog "sigs.k8s.io/controller-runtime/pkg/log"

	"github.com/eburon/callerpro/pkg/callcenter"
)

const shutdownTimeout = 10 * time.Second

// NewServeCmd creates the serve command
func NewServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the caller API over HTTP",
		Long: `Serve the caller API: dial, utterances, hold, resume and hang-up, the
agent catalog, a websocket stream of call events and Prometheus metrics.

Examples:
  callerpro serve
  callerpro serve --port 9090
  CALLERPRO_AUDIO_DEVICE=silent callerpro serve --config callerpro.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context(), v)
		},
	}

	cmd.Flags().String("host", "", "Listen host (overrides server.host)")
	cmd.Flags().Int("port", 0, "Listen port (overrides server.port)")
	_ = v.BindPFlag("server.host", cmd.Flags().Lookup("host"))
	_ = v.BindPFlag("server.port", cmd.Flags().Lookup("port"))

	return cmd
}

func runServe(ctx context.Context, v *viper.Viper) error {
	log := ctrllog.Log.WithName("serve")

	cfg, err := loadConfig(v)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx = ctrllog.IntoContext(ctx, log)

	app, err := callcenter.NewApp(ctx, cfg)
	if err != nil {
		return fmt.Errorf("failed to create app: %w", err)
	}
	defer func() {
		if err := app.Close(context.Background()); err != nil {
			log.Error(err, "Failed to release resources")
		}
	}()

	go app.Preload(ctx)

	server, err := app.Build(ctx)
	if err != nil {
		return fmt.Errorf("failed to build server: %w", err)
	}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Caller API listening", "addr", server.Addr, "audio", cfg.Audio.Device, "crm", cfg.CRM.Driver)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case err := <-errChan:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	log.Info("Shutdown signal received, gracefully stopping")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shutdown gracefully: %w", err)
	}
	log.Info("Shutdown complete")
	return nil
}
