package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"multicarrier-planner/internal/api/middleware"
	"multicarrier-planner/internal/api/models"
	"multicarrier-planner/internal/runlog"

	"github.com/gin-gonic/gin"
)

const maxRunsLimit = 500

// RunsHandler lists recorded runs.
type RunsHandler struct {
	runs *runlog.Log
}

func NewRunsHandler(runs *runlog.Log) *RunsHandler {
	return &RunsHandler{runs: runs}
}

// ListRuns handles GET /api/v1/runs?limit=N
func (h *RunsHandler) ListRuns(c *gin.Context) {
	if h.runs == nil {
		c.JSON(http.StatusOK, models.RunsResponse{Runs: []runlog.Run{}})
		return
	}
	limit := 50
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n <= 0 {
			badField(c, "limit", errors.New("limit must be a positive integer"))
			return
		}
		limit = min(n, maxRunsLimit)
	}
	runs, err := h.runs.Recent(c.Request.Context(), limit)
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, models.RunsResponse{Runs: runs})
}

// GetRun handles GET /api/v1/runs/:id
func (h *RunsHandler) GetRun(c *gin.Context) {
	if h.runs == nil {
		notFound(c, "run log disabled")
		return
	}
	run, err := h.runs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, runlog.ErrNotFound) {
		notFound(c, err.Error())
		return
	}
	if err != nil {
		middleware.Abort(c, err)
		return
	}
	c.JSON(http.StatusOK, run)
}

func notFound(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusNotFound, models.ErrorResponse{
		Error: models.ErrorDetail{Code: "NOT_FOUND", Message: msg},
	})
}
