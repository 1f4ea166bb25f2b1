package cli

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rileyhilliard/gpustat/internal/config"
	"github.com/rileyhilliard/gpustat/internal/server"
	"github.com/spf13/cobra"
)

var serveAddrFlag string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve host status over HTTP",
	Long: `Start the HTTP endpoint. GET / polls every configured host (cached for
server.cache_ttl) and returns a JSON array in host order. GET /health
reports liveness and the number of open connections.

Idle connections are closed by a background sweep every
connection.sweep_interval once they are older than connection.lifetime.

Examples:
  gpustat serve
  gpustat serve --addr 127.0.0.1:8080
  HOSTNAMES=gpu-01,gpu-02 GPUSER_NAME=ml GPUSER_PASSWORD=... gpustat serve`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveCommand(cmd.Context(), serveAddrFlag)
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddrFlag, "addr", "", "listen address (overrides server.addr)")
	rootCmd.AddCommand(serveCmd)
}

func serveCommand(ctx context.Context, addrFlag string) error {
	cfg, err := loadConfig(func(cfg *config.Config) {
		if addrFlag != "" {
			cfg.Server.Addr = addrFlag
		}
	})
	if err != nil {
		return err
	}
	if err := config.ValidateServer(cfg); err != nil {
		return err
	}

	a, err := newApp(cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	sweeper := a.startSweeper()

	if cfg.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	srv := server.New(a.poller, a.registry, server.Options{
		Hosts:       cfg.Hosts,
		Credential:  a.credential(),
		CacheTTL:    cfg.Server.CacheTTL,
		Debug:       cfg.Debug,
		CORSOrigins: cfg.Server.CORSOrigins,
	})

	a.log.Info("Serving %d host(s), connection lifetime %s", len(cfg.Hosts), cfg.Connection.Lifetime)
	if ctx == nil {
		ctx = context.Background()
	}
	serveErr := srv.ListenAndServe(ctx, cfg.Server.Addr)

	// Stop sweeping before closing connections so the two never overlap
	stopCtx, cancel := context.WithTimeout(context.Background(), server.ShutdownTimeout)
	defer cancel()
	if err := sweeper.Stop(stopCtx); err != nil {
		a.log.Warn("Sweeper did not stop cleanly: %v", err)
	}
	a.log.Info("Shutdown complete")
	return serveErr
}
