// Command api runs the posterforge HTTP service: async poster render jobs,
// a content-addressed artifact cache, and a websocket feed of job updates.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"posterforge/internal/artifact"
	"posterforge/internal/httpapi"
	"posterforge/internal/httpapi/handlers"
	"posterforge/internal/jobstore"
	"posterforge/internal/orchestrator"
	"posterforge/internal/pkg/logger"
	"posterforge/internal/pkg/shutdown"
	"posterforge/internal/poster"
	"posterforge/internal/render"
	"posterforge/internal/ws"
)

func main() {
	_ = godotenv.Load()

	log := logger.New(logger.Config{
		Level:       getEnv("LOG_LEVEL", "info"),
		Format:      getEnv("LOG_FORMAT", "json"),
		ServiceName: "posterforge",
	})
	log.Info("starting posterforge api")

	ctx := context.Background()
	sd := shutdown.NewManager(log, 30*time.Second)

	jobs, closeJobs, err := jobstore.New(ctx, jobstore.Config{
		Backend:     getEnv("JOB_STORE_BACKEND", "fs"),
		Dir:         getEnv("JOBS_DIR", "jobs"),
		RedisAddr:   os.Getenv("REDIS_ADDR"),
		DatabaseURL: os.Getenv("DATABASE_URL"),
	})
	if err != nil {
		log.LogFatal("failed to initialize job store", err)
	}
	sd.Register("job store", func(ctx context.Context) error {
		return closeJobs()
	})

	cache, err := artifact.NewCache(getEnv("CACHE_DIR", "cache"))
	if err != nil {
		log.LogFatal("failed to initialize artifact cache", err)
	}
	catalog := poster.NewCatalog(getEnv("THEMES_DIR", "themes"))

	invoker := render.NewInvoker(render.Config{
		Command:          strings.Fields(getEnv("RENDER_CMD", "python create_map_poster.py")),
		PostersDir:       getEnv("POSTERS_DIR", "posters"),
		Timeout:          getEnvDuration("RENDER_TIMEOUT", 240*time.Second, log),
		FallbackDistance: getEnvInt("RENDER_FALLBACK_DISTANCE", 2000, log),
		SettleDelay:      getEnvDuration("RENDER_SETTLE_DELAY", 500*time.Millisecond, log),
		Log:              log,
	})

	hub := ws.NewHub(log)
	hubCtx, stopHub := context.WithCancel(ctx)
	go hub.Run(hubCtx)
	sd.Register("websocket hub", func(ctx context.Context) error {
		stopHub()
		return nil
	})

	orch := orchestrator.New(orchestrator.Deps{
		Jobs:     jobs,
		Cache:    cache,
		Catalog:  catalog,
		Invoker:  invoker,
		Gate:     render.NewGate(getEnvDuration("GATE_WAIT", 10*time.Second, log)),
		Notifier: hub,
		Log:      log,
	})
	sd.Register("render workers", orch.Shutdown)

	h := handlers.New(handlers.Deps{
		Orchestrator: orch,
		Jobs:         jobs,
		Catalog:      catalog,
		CacheDir:     cache.Dir(),
		Hub:          hub,
		Log:          log,
	})
	router := httpapi.NewRouter(h, log, httpapi.Config{
		AllowedOrigins: splitCSV(getEnv("CORS_ALLOWED_ORIGINS", "*")),
	})

	server := &http.Server{
		Addr:              ":" + getEnv("HTTP_PORT", "8000"),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	sd.Register("http server", server.Shutdown)

	go func() {
		log.Info("http server listening", "addr", server.Addr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.LogFatal("http server failed", err)
		}
	}()

	sd.Wait()
	log.Info("posterforge api stopped")
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int, log *logger.Logger) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Warn("invalid integer in environment, using default", "key", key, "value", v)
		return fallback
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration, log *logger.Logger) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Warn("invalid duration in environment, using default", "key", key, "value", v)
		return fallback
	}
	return d
}

func splitCSV(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
