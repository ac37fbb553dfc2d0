package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/archsync/archsync-coordinator/internal/analyzer"
	"github.com/archsync/archsync-coordinator/internal/auth"
	"github.com/archsync/archsync-coordinator/internal/config"
	"github.com/archsync/archsync-coordinator/internal/coordinator"
	"github.com/archsync/archsync-coordinator/internal/healthcheck"
	"github.com/archsync/archsync-coordinator/internal/httpapi"
	"github.com/archsync/archsync-coordinator/internal/mutator"
	"github.com/archsync/archsync-coordinator/internal/poolmgr"
	"github.com/archsync/archsync-coordinator/internal/server"
	"github.com/archsync/archsync-coordinator/internal/statemgr"
	"github.com/archsync/archsync-coordinator/internal/storage"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the archsyncd HTTP/WS coordinator",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(viper.GetViper())
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		level := slog.LevelInfo
		_ = level.UnmarshalText([]byte(cfg.LoggingLevel))
		var handler slog.Handler
		if cfg.LoggingStructured {
			handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: level})
		} else {
			handler = slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level})
		}
		log := slog.New(handler)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		sig := make(chan os.Signal, 1)
		signal.Notify(sig, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)
		go func() {
			<-sig
			log.Info("received shutdown signal")
			cancel()
		}()

		db, err := storage.Open(cfg)
		if err != nil {
			return fmt.Errorf("failed to open database: %w", err)
		}
		defer db.Close()

		if err := storage.Schema.Run(ctx, log, db); err != nil {
			return fmt.Errorf("failed to apply schema migrations: %w", err)
		}

		store := storage.NewStore(db)
		state := statemgr.New(store, cfg.SnapshotsRetainPerEndpoint)
		pools := poolmgr.New(store, state)
		az := analyzer.New(store)
		authn := auth.New(store, cfg.AuthTokenSigningSecret, cfg.TokenTTL, cfg.AdminTokens)
		coord := coordinator.New(store, &mutator.Stub{}, log)
		health := healthcheck.NewHealthChecker(storage.HealthCheck{DB: db})

		log.Info("recovering interrupted operations")
		if err := coord.RecoverInterrupted(ctx); err != nil {
			return fmt.Errorf("failed to recover interrupted operations: %w", err)
		}

		go runHeartbeatSweep(ctx, coord, log, cfg.HeartbeatOfflineThreshold)

		httpSrv := httpapi.NewServer(httpapi.Deps{
			Store:              store,
			Pools:              pools,
			State:              state,
			Analyzer:           az,
			Coordinator:        coord,
			Auth:               authn,
			Health:             health,
			Log:                log,
			CORSAllowedOrigins: cfg.CORSAllowedOrigins,
		})

		srv := server.New(cfg.Addr(), httpSrv.Router(), log, cfg.ShutdownGracefulTimeout)
		return srv.Run(ctx)
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)

	serveCmd.Flags().String("database-kind", "embedded", "Storage driver: embedded or server")
	serveCmd.Flags().String("database-url", "", "Database connection string (required for database-kind=server)")
	serveCmd.Flags().String("server-host", "0.0.0.0", "HTTP listen host")
	serveCmd.Flags().Int("server-port", 8080, "HTTP listen port")
	serveCmd.Flags().String("auth-token-signing-secret", "", "HMAC signing secret for endpoint bearer tokens")
	serveCmd.Flags().StringSlice("admin-tokens", nil, "Admin bearer tokens")

	_ = viper.BindPFlag("database.kind", serveCmd.Flags().Lookup("database-kind"))
	_ = viper.BindPFlag("database.url", serveCmd.Flags().Lookup("database-url"))
	_ = viper.BindPFlag("server.host", serveCmd.Flags().Lookup("server-host"))
	_ = viper.BindPFlag("server.port", serveCmd.Flags().Lookup("server-port"))
	_ = viper.BindPFlag("security.auth_token_signing_secret", serveCmd.Flags().Lookup("auth-token-signing-secret"))
	_ = viper.BindPFlag("security.admin_tokens", serveCmd.Flags().Lookup("admin-tokens"))
}

// runHeartbeatSweep periodically marks endpoints offline once their
// heartbeat has gone silent for longer than threshold (spec 4.F
// "heartbeat_lost"), until ctx is cancelled.
func runHeartbeatSweep(ctx context.Context, coord *coordinator.Coordinator, log *slog.Logger, threshold time.Duration) {
	ticker := time.NewTicker(threshold / 2)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := coord.SweepStaleEndpoints(ctx, threshold); err != nil {
				log.Error("heartbeat sweep failed", "error", err)
			}
		}
	}
}
