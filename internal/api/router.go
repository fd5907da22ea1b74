// Package api assembles the HTTP surface of the planner.
package api

import (
	"net/http"

	"multicarrier-planner/internal/api/handlers"
	"multicarrier-planner/internal/api/middleware"
	"multicarrier-planner/internal/compile"
	"multicarrier-planner/internal/data"
	"multicarrier-planner/internal/logging"
	"multicarrier-planner/internal/observability"
	"multicarrier-planner/internal/runlog"

	"github.com/gin-gonic/gin"
)

// Deps are the collaborators of the router. Everything but Engine and
// Solvers may be nil.
type Deps struct {
	Engine      *compile.Engine
	Solvers     handlers.SolverFactory
	Cache       *data.Cache[compile.Summary]
	Runs        *runlog.Log
	Metrics     *observability.Metrics
	Log         logging.Logger
	CORSOrigins []string
}

// NewRouter wires middleware and routes.
func NewRouter(d Deps) *gin.Engine {
	router := gin.New()
	router.Use(middleware.CORS(d.CORSOrigins))
	router.Use(middleware.Logger(d.Log, d.Metrics))
	router.Use(middleware.ErrorHandler(d.Log))

	compileHandler := handlers.NewCompileHandler(d.Engine, d.Cache, d.Runs, d.Solvers, d.Metrics, d.Log)
	runsHandler := handlers.NewRunsHandler(d.Runs)

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/metrics", gin.WrapH(d.Metrics.Handler()))

	api := router.Group("/api/v1")
	{
		api.POST("/compile", compileHandler.Compile)
		api.POST("/solve", compileHandler.Solve)

		api.GET("/runs", runsHandler.ListRuns)
		api.GET("/runs/:id", runsHandler.GetRun)
	}

	router.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{"error": gin.H{"code": "NOT_FOUND", "message": "Not found"}})
	})
	return router
}
