package eligibility

import (
	"errors"

	"github.com/casevine/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/clients/:clientId/evaluation", authMW)
	g.POST("", h.startEvaluation)
	g.GET("", h.getLatest)
}

// POST /clients/:clientId/evaluation  [auth]
func (h *Handler) startEvaluation(c *gin.Context) {
	task, err := h.svc.StartEvaluation(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		switch {
		case errors.Is(err, ErrEvaluationInProgress):
			response.Conflict(c, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			response.NotFound(c)
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Accepted(c, gin.H{"task": task})
}

// GET /clients/:clientId/evaluation  [auth]
func (h *Handler) getLatest(c *gin.Context) {
	report, err := h.svc.GetLatest(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if report == nil {
		response.NotFoundMsg(c, "no evaluation exists for this client yet")
		return
	}
	response.OK(c, report)
}
