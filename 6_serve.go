package recommender

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/karelholub/article-recommender/internal/api"
	"github.com/karelholub/article-recommender/internal/logging"
	"github.com/karelholub/article-recommender/internal/supervisor"
)

// ServeCmd runs the HTTP API and the background refit loop until the process
// is interrupted.
var ServeCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve recommendations over HTTP",
	Run: func(cmd *cobra.Command, args []string) {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		if err := serve(ctx); err != nil {
			// A supervisor restarting the process must see the failure.
			logging.Fatal().Err(err).Msg("server stopped with error")
		}
		logging.Info().Msg("server stopped")
	},
}

func serve(ctx context.Context) error {
	app, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer app.Close()

	refitEvery, err := Config.Cluster.RefitEvery()
	if err != nil {
		return err
	}

	srvCfg := api.DefaultServerConfig()
	srvCfg.DefaultN = Config.Recommend.DefaultN
	srvCfg.MaxN = Config.Recommend.MaxN
	srvCfg.Timeout = Config.Recommend.Timeout
	srvCfg.CORSOrigins = Config.Server.CORSOrigins
	srvCfg.RateLimit = Config.Server.RateLimit
	handler := api.NewServer(app.engine, srvCfg, logging.Component("api")).Router()

	server := &http.Server{
		Addr:         Config.Server.Addr(),
		Handler:      handler,
		ReadTimeout:  Config.Server.ReadTimeout,
		WriteTimeout: Config.Server.WriteTimeout,
	}

	tree := supervisor.NewTree(logging.NewSlogLogger(), supervisor.DefaultTreeConfig())
	tree.AddEngineService(supervisor.NewRefitService(app.engine, supervisor.RefitServiceConfig{
		RefitOnStartup: Config.Cluster.RefitOnStartup,
		Interval:       refitEvery,
	}, logging.Component("refit")))
	tree.AddAPIService(supervisor.NewHTTPService(server, Config.Server.ShutdownTimeout, logging.Component("http")))

	logging.Info().
		Str("addr", server.Addr).
		Str("embedding_model", app.engine.Status().EmbeddingModel).
		Dur("refit_interval", refitEvery).
		Msg("starting server")

	err = tree.Serve(ctx)
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}
