package commands

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/configdesk/configdesk/pkg/api"
	"github.com/configdesk/configdesk/pkg/session"
	"github.com/configdesk/configdesk/pkg/stores"
	"github.com/configdesk/configdesk/pkg/telemetry"
)

func newServeCommand(version string) *cobra.Command {
	var (
		listen string
		watch  bool
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the editor API server",
		Long: `Start the HTTP API used by the editor front end.

The server holds one editing session over the configured store. Edits are
persisted after the session debounce delay; pending edits are flushed on
shutdown. With --watch and the file store, changes made to the file by
other programs are loaded into the session.`,
		Example: `  # Serve on the default address with the file store
  configdesk serve

  # Serve with SQLite history on a custom port
  CONFIGDESK_STORE_DRIVER=sqlite configdesk serve --listen :9000

  # Reload the file when it is edited outside the editor
  configdesk serve --watch`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadSettings()
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("listen") {
				cfg.Server.Listen = listen
			}
			if cmd.Flags().Changed("watch") {
				cfg.Server.Watch = watch
			}
			if verbose {
				cfg.Telemetry.Logging.Level = "debug"
			}

			ctx := cmd.Context()

			tel, err := telemetry.NewTelemetry(cfg.TelemetryConfig(version))
			if err != nil {
				return fmt.Errorf("failed to initialize telemetry: %w", err)
			}
			defer func() {
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := tel.Shutdown(shutdownCtx); err != nil {
					log.Warn().Err(err).Msg("Telemetry shutdown failed")
				}
			}()
			if err := tel.StartMetricsServer(); err != nil {
				return fmt.Errorf("failed to start metrics server: %w", err)
			}

			logger := tel.Logger.NewComponentLogger("serve")

			store, err := cfg.OpenStore(ctx, *tel.Logger.NewComponentLogger("store").Zerolog())
			if err != nil {
				return err
			}
			defer store.Close()

			sess, err := session.Open(ctx, store,
				session.WithTelemetry(tel),
				session.WithDebounce(cfg.Session.Debounce),
				session.WithSaveTimeout(cfg.Session.SaveTimeout),
				session.WithNotifier(session.NotifierFunc(func(n session.Notification) {
					logger.Zerolog().Warn().
						Err(n.Err).
						Str("session_id", n.SessionID).
						Int("revision", n.Revision).
						Msg("Config could not be saved; edits are kept in memory")
				})),
			)
			if err != nil {
				return err
			}
			defer sess.Close()

			if cfg.Server.Watch {
				fs, ok := store.(*stores.FileStore)
				if !ok {
					return fmt.Errorf("--watch requires the file store, got %s", store.Name())
				}
				go watchStore(ctx, fs, sess, tel)
			}

			srv := api.NewServer(api.Config{
				Addr:         cfg.Server.Listen,
				Session:      sess,
				Telemetry:    tel,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			})

			logger.Zerolog().Info().
				Str("listen", cfg.Server.Listen).
				Str("store", store.Name()).
				Str("path", cfg.Store.Path).
				Dur("debounce", cfg.Session.Debounce).
				Msg("Starting configdesk server")

			errCh := make(chan error, 1)
			go func() { errCh <- srv.ListenAndServe() }()

			select {
			case err := <-errCh:
				return err
			case <-ctx.Done():
			}

			shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				return fmt.Errorf("failed to shut down cleanly: %w", err)
			}
			if err := <-errCh; err != nil {
				return err
			}
			logger.Info("Server stopped")
			return nil
		},
	}

	cmd.Flags().StringVar(&listen, "listen", ":8000", "HTTP listen address")
	cmd.Flags().BoolVar(&watch, "watch", false, "reload the config file when it changes on disk")

	return cmd
}

// watchStore feeds external modifications of the file into the session
// until ctx is cancelled.
func watchStore(ctx context.Context, fs *stores.FileStore, sess *session.Session, tel *telemetry.Telemetry) {
	err := fs.Watch(ctx, func(snap *stores.Snapshot) {
		_ = tel.Events.PublishStoreChanged(fs.Name(), fs.Path())
		res := sess.Reload(ctx, snap.Text)
		if !res.OK() {
			log.Warn().Str("path", fs.Path()).Str("status", string(res.Status)).Msg(res.Message)
			return
		}
		log.Info().Str("path", fs.Path()).Int("revision", res.Document.Revision).Msg("Reloaded config changed on disk")
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		log.Error().Err(err).Msg("Config file watch stopped")
	}
}
