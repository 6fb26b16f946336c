package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/pflag"

	"iquitos-ems/internal/api"
	"iquitos-ems/internal/config"
	"iquitos-ems/internal/logging"
	"iquitos-ems/internal/repository"
	"iquitos-ems/internal/telemetry"
	"iquitos-ems/internal/training"
)

func main() {
	fs := pflag.NewFlagSet("api", pflag.ExitOnError)
	cfgPath := fs.StringP("config", "c", "", "pipeline config (defaults plus EMS_* environment when empty)")
	port := fs.String("port", envOr("API_PORT", "8080"), "listen port")
	origins := fs.String("origins", os.Getenv("API_ALLOWED_ORIGINS"), "comma-separated CORS origins")
	level := fs.String("log-level", "info", "log level")
	pretty := fs.Bool("pretty", false, "human-readable logs")
	_ = fs.Parse(os.Args[1:])

	if err := logging.Setup(*level, *pretty, os.Stdout); err != nil {
		os.Stderr.WriteString(err.Error() + "\n")
		os.Exit(1)
	}
	log := logging.Component("api")

	cfg, err := loadConfig(*cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("config")
	}
	if os.Getenv("API_ENV") == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	deps := api.Deps{
		OutputDir:   cfg.OE3.Training.OutputDir,
		SummaryPath: filepath.Join(cfg.OE3.Training.OutputDir, "balance", "summary.json"),
	}
	if *origins != "" {
		deps.AllowedOrigins = strings.Split(*origins, ",")
	}
	if cfg.OE3.Training.MetricsDB != "" {
		repo, err := repository.New(cfg.OE3.Training.MetricsDB)
		if err != nil {
			log.Fatal().Err(err).Str("path", cfg.OE3.Training.MetricsDB).Msg("open metrics db")
		}
		defer repo.Close()
		deps.Episodes = repo
	}

	metrics := telemetry.New()
	seedMetrics(metrics, cfg.OE3.Training.OutputDir)
	deps.Metrics = metrics.Handler()

	srv := &http.Server{
		Addr:              ":" + *port,
		Handler:           api.NewRouter(deps),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdown)
	}()

	log.Info().Str("addr", srv.Addr).Str("output_dir", deps.OutputDir).Msg("starting API server")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("server")
	}
}

func loadConfig(path string) (*config.Config, error) {
	if path == "" {
		return config.Default()
	}
	return config.Load(path)
}

// seedMetrics publishes the final state of every bundle already on disk so a
// scrape of the API reflects finished runs.
func seedMetrics(m *telemetry.Metrics, outputDir string) {
	log := logging.Component("api")
	bundles, err := training.ReadBundles(outputDir)
	if err != nil {
		log.Warn().Err(err).Msg("read result bundles")
		return
	}
	for _, b := range bundles {
		m.ObserveStep(b.Agent, b.Steps, b.MovingAverage.RewardMean)
		if n := len(b.EpisodeStats); n > 0 {
			m.ObserveEpisode(b.Agent, b.EpisodeStats[n-1].EpisodeTotals)
		}
	}
	log.Info().Int("bundles", len(bundles)).Msg("metrics seeded")
}

func envOr(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
