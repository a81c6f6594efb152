// Command judge-engine runs the submission gateway and worker pool: it
// accepts code submissions over HTTP, queues them to a bounded set of
// workers, and executes each in an isolated Docker container.
package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/joho/godotenv"
	"go.uber.org/zap"

	"judge-engine/internal/catalog"
	"judge-engine/internal/config"
	"judge-engine/internal/dispatcher"
	"judge-engine/internal/gateway"
	"judge-engine/internal/logging"
	"judge-engine/internal/metrics"
	"judge-engine/internal/middleware"
	"judge-engine/internal/sandbox"
	"judge-engine/internal/store"
)

func main() {
	if err := godotenv.Load(); err != nil {
		if err := godotenv.Load("../.env"); err != nil {
			log.Println("WARNING: no .env file found, using environment variables")
		}
	}

	cfg := config.Load()
	logging.Init()
	logger := logging.L()
	defer logging.Sync()

	logger.Info("starting judge engine", zap.String("environment", cfg.Environment))

	addr := cfg.APIHost + ":" + strconv.Itoa(cfg.APIPort)

	// Start a bootstrap HTTP listener immediately so health checks succeed
	// while slower initialization (database, Docker preflight) is still
	// running.
	var startupReady atomic.Bool
	var activeRouter atomic.Value

	bootstrapRouter := gin.New()
	bootstrapRouter.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"status": "starting",
			"ready":  startupReady.Load(),
		})
	})
	activeRouter.Store(bootstrapRouter)

	serverErrors := make(chan error, 1)
	httpServer := &http.Server{
		Addr:              addr,
		ReadHeaderTimeout: 10 * time.Second,
		Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			activeRouter.Load().(*gin.Engine).ServeHTTP(w, r)
		}),
	}
	go func() {
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErrors <- err
		}
	}()
	logger.Info("bootstrap listener started", zap.String("addr", addr))

	repo, err := store.Open(cfg.DatabaseURL)
	if err != nil {
		logger.Fatal("failed to open job store", zap.Error(err))
	}

	sandboxCfg := sandbox.DefaultConfig()
	sandboxCfg.DockerHost = cfg.DockerHost
	sandboxCfg.NetworkEnabled = cfg.EnableNetwork
	sandboxCfg.MaxMemoryMB = cfg.MaxMemoryMB
	sandboxCfg.MaxWallTime = cfg.MaxWallTime()
	sandboxCfg.CompileTimeout = cfg.CompilationTimeout()
	sandboxCfg.ImagePrefix = cfg.ImagePrefix
	sandboxCfg.ImageOverrides = make(map[string]string)
	for _, lang := range catalog.All() {
		if image, ok := config.ImageOverride(string(lang.ID)); ok {
			sandboxCfg.ImageOverrides[string(lang.ID)] = image
		}
	}

	driver, err := sandbox.NewDriver(sandboxCfg)
	if err != nil {
		logger.Fatal("failed to initialize sandbox driver", zap.Error(err))
	}
	defer driver.Close()

	if err := driver.Preflight(context.Background()); err != nil {
		logger.Warn("sandbox preflight failed at startup, will retry per-job", zap.Error(err))
	}

	pool := dispatcher.New(dispatcher.Config{Workers: cfg.MaxWorkers}, repo, driver, logger)
	pool.Start()
	metrics.Get().WorkerCapacity.Set(float64(pool.Capacity()))

	gw := gateway.New(repo, pool)

	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(middleware.ErrorHandler())
	router.Use(middleware.RequestID())
	router.Use(metrics.PrometheusMiddleware())
	router.GET("/metrics", metrics.PrometheusHandler())

	submissions := router.Group("/")
	submissions.Use(middleware.RateLimit())
	gw.Register(submissions)

	activeRouter.Store(router)
	startupReady.Store(true)
	logger.Info("judge engine ready", zap.Int("workers", cfg.MaxWorkers))

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		logger.Error("http server error", zap.Error(err))
	case sig := <-stop:
		logger.Info("shutdown signal received", zap.String("signal", sig.String()))
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", zap.Error(err))
	}

	pool.Shutdown(shutdownCtx)
	logger.Info("judge engine stopped")
}
