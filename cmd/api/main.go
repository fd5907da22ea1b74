package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"multicarrier-planner/internal/api"
	"multicarrier-planner/internal/compile"
	"multicarrier-planner/internal/config"
	"multicarrier-planner/internal/data"
	"multicarrier-planner/internal/logging"
	"multicarrier-planner/internal/observability"
	"multicarrier-planner/internal/runlog"
	"multicarrier-planner/internal/solver"

	"github.com/gin-gonic/gin"
)

func main() {
	srv := config.ServerFromEnv()
	log := logging.New(logging.FromEnv(logging.Config{Format: "json"}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, srv, log); err != nil {
		log.Error(ctx, "api server failed", logging.Err(err))
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, srv config.Server, log logging.Logger) error {
	shutdownTracing, err := observability.InitTracing(ctx, observability.TracingConfigFromEnv(), log)
	if err != nil {
		return err
	}
	defer observability.ShutdownWithTimeout(context.WithoutCancel(ctx), shutdownTracing, log)

	metrics, err := observability.NewMetrics(nil)
	if err != nil {
		return err
	}

	var runs *runlog.Log
	if srv.RunLogPath != "" {
		if runs, err = runlog.Open(ctx, srv.RunLogPath); err != nil {
			return err
		}
		defer runs.Close()
		log.Info(ctx, "run log opened", logging.String("path", srv.RunLogPath))
	}

	cache := data.CacheFromEnv[compile.Summary]()
	defer cache.Close()

	// Set up Gin router
	if srv.Production() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := api.NewRouter(api.Deps{
		Engine:      compile.New(log, metrics),
		Solvers:     func(name string) (solver.Solver, error) { return solver.New(name, srv.SolverBinary) },
		Cache:       cache,
		Runs:        runs,
		Metrics:     metrics,
		Log:         log,
		CORSOrigins: srv.CORSOrigins,
	})

	httpServer := &http.Server{
		Addr:              fmt.Sprintf(":%s", srv.Port),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	errCh := make(chan error, 1)
	go func() {
		log.Info(ctx, "starting api server", logging.String("addr", httpServer.Addr), logging.String("env", srv.Env))
		errCh <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	log.Info(ctx, "shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	return httpServer.Shutdown(shutdownCtx)
}
