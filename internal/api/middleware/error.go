package middleware

import (
	"context"
	"errors"
	"net/http"

	"multicarrier-planner/internal/api/models"
	"multicarrier-planner/internal/compile"
	"multicarrier-planner/internal/logging"
	"multicarrier-planner/internal/model"

	"github.com/gin-gonic/gin"
)

// ErrorHandler middleware handles panics
func ErrorHandler(log logging.Logger) gin.HandlerFunc {
	if log == nil {
		log = logging.Noop()
	}
	return gin.CustomRecovery(func(c *gin.Context, recovered any) {
		ctx := c.Request.Context()
		logging.FromContext(ctx, log).Error(ctx, "panic", logging.Any("recovered", recovered))

		message := "An unexpected error occurred"
		if s, ok := recovered.(string); ok {
			message = s
		}
		c.AbortWithStatusJSON(http.StatusInternalServerError, models.ErrorResponse{
			Error: models.ErrorDetail{Code: "INTERNAL_ERROR", Message: message},
		})
	})
}

// Abort writes the error envelope for err and stops the handler chain.
func Abort(c *gin.Context, err error) {
	status, detail := Classify(err)
	c.AbortWithStatusJSON(status, models.ErrorResponse{Error: detail})
}

// BadRequest rejects an unreadable request body.
func BadRequest(c *gin.Context, err error) {
	c.AbortWithStatusJSON(http.StatusBadRequest, models.ErrorResponse{
		Error: models.ErrorDetail{Code: "INVALID_REQUEST", Message: err.Error()},
	})
}

// Classify maps a pipeline error onto an HTTP status and error detail.
func Classify(err error) (int, models.ErrorDetail) {
	detail := models.ErrorDetail{Message: err.Error()}

	var (
		schema   *model.SchemaError
		dangling *model.DanglingReferenceError
		missing  *model.MissingParameterError
		domain   *model.FormulaDomainError
		gen      *model.ConstraintGenerationError
		status   *model.SolveStatusError
	)
	switch {
	case errors.As(err, &schema):
		detail.Code = "SCHEMA_ERROR"
		detail.Details = map[string]any{"table": schema.Table, "row": schema.Row, "field": schema.Field}
		return http.StatusBadRequest, detail
	case errors.As(err, &dangling):
		detail.Code = "DANGLING_REFERENCE"
		detail.Details = map[string]any{"kind": dangling.Kind, "id": dangling.ID, "field": dangling.Field, "ref": dangling.Ref}
		return http.StatusUnprocessableEntity, detail
	case errors.As(err, &missing):
		detail.Code = "MISSING_PARAMETER"
		detail.Details = map[string]any{"name": missing.Name, "sub": missing.Sub, "carrier": string(missing.Carrier)}
		if missing.Entity != "" {
			detail.Details["entity"] = missing.Entity
		}
		return http.StatusUnprocessableEntity, detail
	case errors.As(err, &domain):
		detail.Code = "FORMULA_DOMAIN"
		detail.Details = map[string]any{"entity": domain.Entity, "quantity": domain.Quantity, "value": domain.Value}
		return http.StatusUnprocessableEntity, detail
	case errors.Is(err, compile.ErrPreSolveFailed):
		detail.Code = "PRE_SOLVE_FAILED"
		return http.StatusUnprocessableEntity, detail
	case errors.As(err, &status):
		detail.Code = "SOLVE_STATUS"
		detail.Details = map[string]any{"status": status.Status}
		return http.StatusUnprocessableEntity, detail
	case errors.As(err, &gen):
		detail.Code = "GENERATION_FAILED"
		detail.Details = map[string]any{"family": gen.Family}
		return http.StatusInternalServerError, detail
	case errors.Is(err, context.DeadlineExceeded):
		detail.Code = "TIMEOUT"
		return http.StatusGatewayTimeout, detail
	case errors.Is(err, context.Canceled):
		detail.Code = "CANCELED"
		// nginx's client-closed-request
		return 499, detail
	default:
		detail.Code = "INTERNAL_ERROR"
		return http.StatusInternalServerError, detail
	}
}
