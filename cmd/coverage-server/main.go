package main

import (
	"context"
	"encoding/json"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"time"

	"github.com/signalsfoundry/coverage-engine/core"
	"github.com/signalsfoundry/coverage-engine/elevation"
	"github.com/signalsfoundry/coverage-engine/internal/logging"
	"github.com/signalsfoundry/coverage-engine/internal/observability"
	"github.com/signalsfoundry/coverage-engine/internal/server"
)

// serverConfig is the JSON file layout; flags override the file.
type serverConfig struct {
	ListenAddr  string `json:"listen_addr"`
	MetricsAddr string `json:"metrics_addr"`

	TileDir     string `json:"tile_dir"`
	TileURL     string `json:"tile_url"`
	CachePath   string `json:"cache_path"`
	RemoteURL   string `json:"remote_url"`
	RemoteOff   bool   `json:"remote_disabled"`
	AntennaPath string `json:"antenna_pattern"`
}

func main() {
	configPath := flag.String("config", "configs/server.json", "Path to the JSON server config")
	listenAddr := flag.String("listen-addr", "", "HTTP address the API listens on (overrides config)")
	metricsAddr := flag.String("metrics-addr", "", "HTTP address for Prometheus /metrics (overrides config)")
	flag.Parse()

	log := logging.NewFromEnv()
	ctx := context.Background()

	cfg := loadConfig(ctx, log, *configPath)
	if *listenAddr != "" {
		cfg.ListenAddr = *listenAddr
	}
	if *metricsAddr != "" {
		cfg.MetricsAddr = *metricsAddr
	}

	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		log.Error(ctx, "failed to initialise tracing", logging.Err(err))
		os.Exit(1)
	}
	defer observability.ShutdownWithTimeout(ctx, shutdownTracing, log)

	collector, err := observability.NewCoverageCollector(nil)
	if err != nil {
		log.Error(ctx, "failed to initialise metrics collector", logging.Err(err))
		os.Exit(1)
	}
	metricsSrv := serveMetrics(cfg.MetricsAddr, collector, log)

	store, cleanup, err := buildStore(cfg, log, collector)
	if err != nil {
		log.Error(ctx, "failed to build elevation store", logging.Err(err))
		os.Exit(1)
	}
	defer cleanup()

	pattern := core.NewOmniPattern()
	if cfg.AntennaPath != "" {
		f, err := os.Open(cfg.AntennaPath)
		if err != nil {
			log.Warn(ctx, "antenna pattern unavailable, using omni", logging.String("path", cfg.AntennaPath), logging.Err(err))
		} else {
			if err := pattern.LoadXML(f); err != nil {
				log.Warn(ctx, "antenna pattern parse failed, using omni", logging.String("path", cfg.AntennaPath), logging.Err(err))
			}
			f.Close()
		}
	}

	engine := core.NewEngine(
		core.WithPattern(pattern),
		core.WithElevationProvider(store),
		core.WithLogger(log),
		core.WithMetricsRecorder(collector),
	)

	api := server.New(engine, store, collector, log)
	srv := &http.Server{
		Addr:    cfg.ListenAddr,
		Handler: api.Router(),
	}

	log.Info(ctx, "starting coverage API server", logging.String("addr", cfg.ListenAddr))
	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error(ctx, "API server exited", logging.Err(err))
		}
	}()

	stopCtx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	<-stopCtx.Done()

	log.Info(ctx, "shutting down coverage server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(shutdownCtx)
	if metricsSrv != nil {
		_ = metricsSrv.Shutdown(shutdownCtx)
	}
}

func loadConfig(ctx context.Context, log logging.Logger, path string) serverConfig {
	cfg := serverConfig{
		ListenAddr:  ":8080",
		MetricsAddr: ":9090",
		TileDir:     "tiles",
		CachePath:   "elevation-cache.db",
	}
	data, err := os.ReadFile(path)
	if err != nil {
		log.Warn(ctx, "config file unavailable, using defaults", logging.String("path", path), logging.Err(err))
		return cfg
	}
	if err := json.Unmarshal(data, &cfg); err != nil {
		log.Warn(ctx, "config file malformed, using defaults", logging.String("path", path), logging.Err(err))
	}
	return cfg
}

func buildStore(cfg serverConfig, log logging.Logger, collector *observability.CoverageCollector) (*elevation.Store, func(), error) {
	cache, err := elevation.OpenPointCache(cfg.CachePath)
	if err != nil {
		return nil, nil, err
	}

	tiles, err := elevation.NewTileStore(cfg.TileDir,
		elevation.WithTileURL(cfg.TileURL),
		elevation.WithTileLogger(log),
	)
	if err != nil {
		cache.Close()
		return nil, nil, err
	}

	opts := []elevation.StoreOption{
		elevation.WithCache(cache),
		elevation.WithTiles(tiles),
		elevation.WithStoreLogger(log),
		elevation.WithLookupMetrics(collector),
	}
	if !cfg.RemoteOff {
		opts = append(opts, elevation.WithRemote(elevation.NewRemoteClient(
			elevation.WithRemoteURL(cfg.RemoteURL),
			elevation.WithRemoteLogger(log),
		)))
	}

	return elevation.NewStore(opts...), func() { _ = cache.Close() }, nil
}

func serveMetrics(addr string, collector *observability.CoverageCollector, log logging.Logger) *http.Server {
	if collector == nil || addr == "" {
		return nil
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", collector.Handler())

	srv := &http.Server{
		Addr:    addr,
		Handler: mux,
	}

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Warn(context.Background(), "metrics server exited", logging.Err(err))
		}
	}()

	log.Info(context.Background(), "serving Prometheus metrics", logging.String("addr", addr))
	return srv
}
