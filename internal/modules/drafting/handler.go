package drafting

import (
	"errors"

	"github.com/casevine/core/internal/models"
	"github.com/casevine/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type GenerateDTO struct {
	Kind          models.DraftKind `json:"kind"          binding:"required"`
	RecommenderID *string          `json:"recommenderId"`
}

type RegenerateSectionDTO struct {
	Instructions string `json:"instructions"`
}

type ManualEditDTO struct {
	Tree *models.DocNode `json:"tree" binding:"required"`
}

type AutosaveDTO struct {
	Tree *models.DocNode `json:"tree" binding:"required"`
}

type UpdateStatusDTO struct {
	Status models.DraftStatus `json:"status" binding:"required"`
}

type SaveVersionDTO struct {
	Note string `json:"note"`
}

type Handler struct {
	svc       *Service
	autosaver *Autosaver
}

func NewHandler(svc *Service, autosaver *Autosaver) *Handler {
	return &Handler{svc: svc, autosaver: autosaver}
}

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/clients/:clientId/drafts", authMW)
	g.GET("", h.list)
	g.POST("/generate", h.generate)
	g.GET("/:draftId", h.get)
	g.GET("/:draftId/html", h.renderHTML)
	g.PATCH("/:draftId", h.manualEdit)
	g.PUT("/:draftId/autosave", h.autosave)
	g.PATCH("/:draftId/status", h.updateStatus)
	g.POST("/:draftId/sections/:sectionId/regenerate", h.regenerateSection)
	g.POST("/:draftId/versions", h.saveVersion)
	g.GET("/:draftId/versions", h.listVersions)
	g.POST("/:draftId/versions/:versionId/restore", h.restoreVersion)
}

// GET /clients/:clientId/drafts  [auth]
func (h *Handler) list(c *gin.Context) {
	drafts, err := h.svc.List(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, drafts)
}

// POST /clients/:clientId/drafts/generate  [auth]
func (h *Handler) generate(c *gin.Context) {
	var dto GenerateDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	draft, task, err := h.svc.StartGeneration(c.Request.Context(), c.Param("clientId"), dto.Kind, dto.RecommenderID)
	if err != nil {
		switch {
		case errors.Is(err, ErrGenerationInProgress):
			response.Conflict(c, err.Error())
		case errors.Is(err, ErrUnknownKind), errors.Is(err, ErrRecommenderRequired):
			response.BadRequest(c, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			response.NotFound(c)
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Accepted(c, gin.H{"draft": draft, "task": task})
}

// GET /clients/:clientId/drafts/:draftId  [auth]
func (h *Handler) get(c *gin.Context) {
	draft, err := h.svc.Get(c.Request.Context(), c.Param("clientId"), c.Param("draftId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if draft == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, draft)
}

// GET /clients/:clientId/drafts/:draftId/html  [auth]
func (h *Handler) renderHTML(c *gin.Context) {
	html, err := h.svc.RenderHTML(c.Request.Context(), c.Param("clientId"), c.Param("draftId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, gin.H{"html": html})
}

// PATCH /clients/:clientId/drafts/:draftId  [auth]
func (h *Handler) manualEdit(c *gin.Context) {
	var dto ManualEditDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	draft, err := h.svc.ManualEdit(c.Request.Context(), c.Param("clientId"), c.Param("draftId"), dto.Tree)
	if err != nil {
		if errors.Is(err, ErrDraftLocked) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	if draft == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, draft)
}

// PUT /clients/:clientId/drafts/:draftId/autosave  [auth]
func (h *Handler) autosave(c *gin.Context) {
	var dto AutosaveDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	draft, err := h.svc.Get(c.Request.Context(), c.Param("clientId"), c.Param("draftId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if draft == nil {
		response.NotFound(c)
		return
	}
	if draft.Status == models.DraftGenerating {
		response.Conflict(c, ErrDraftLocked.Error())
		return
	}
	h.autosaver.Queue(draft.ID, dto.Tree)
	response.Accepted(c, gin.H{"queued": true})
}

// PATCH /clients/:clientId/drafts/:draftId/status  [auth]
func (h *Handler) updateStatus(c *gin.Context) {
	var dto UpdateStatusDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	draft, err := h.svc.UpdateStatus(c.Request.Context(), c.Param("clientId"), c.Param("draftId"), dto.Status)
	if err != nil {
		if errors.Is(err, ErrDraftLocked) {
			response.Conflict(c, err.Error())
			return
		}
		response.BadRequest(c, err.Error())
		return
	}
	if draft == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, draft)
}

// POST /clients/:clientId/drafts/:draftId/sections/:sectionId/regenerate  [auth]
func (h *Handler) regenerateSection(c *gin.Context) {
	var dto RegenerateSectionDTO
	if err := c.ShouldBindJSON(&dto); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, err.Error())
		return
	}
	draft, task, err := h.svc.StartSectionRegeneration(
		c.Request.Context(), c.Param("clientId"), c.Param("draftId"), c.Param("sectionId"), dto.Instructions)
	if err != nil {
		switch {
		case errors.Is(err, ErrGenerationInProgress):
			response.Conflict(c, err.Error())
		case errors.Is(err, ErrSectionNotFound):
			response.NotFoundMsg(c, err.Error())
		case errors.Is(err, gorm.ErrRecordNotFound):
			response.NotFound(c)
		default:
			response.InternalError(c, err)
		}
		return
	}
	response.Accepted(c, gin.H{"draft": draft, "task": task})
}

// POST /clients/:clientId/drafts/:draftId/versions  [auth]
func (h *Handler) saveVersion(c *gin.Context) {
	var dto SaveVersionDTO
	if err := c.ShouldBindJSON(&dto); err != nil && err.Error() != "EOF" {
		response.BadRequest(c, err.Error())
		return
	}
	version, err := h.svc.SaveVersion(c.Request.Context(), c.Param("clientId"), c.Param("draftId"), dto.Note)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, version)
}

// GET /clients/:clientId/drafts/:draftId/versions  [auth]
func (h *Handler) listVersions(c *gin.Context) {
	versions, err := h.svc.ListVersions(c.Request.Context(), c.Param("clientId"), c.Param("draftId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.OK(c, versions)
}

// POST /clients/:clientId/drafts/:draftId/versions/:versionId/restore  [auth]
func (h *Handler) restoreVersion(c *gin.Context) {
	draft, err := h.svc.RestoreVersion(c.Request.Context(), c.Param("clientId"), c.Param("draftId"), c.Param("versionId"))
	if err != nil {
		if errors.Is(err, ErrDraftLocked) {
			response.Conflict(c, err.Error())
			return
		}
		response.InternalError(c, err)
		return
	}
	if draft == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, draft)
}
