package casefile

import (
	"context"
	"errors"

	"github.com/casevine/core/internal/models"
	"github.com/casevine/core/internal/pkg/pagination"
	"github.com/casevine/core/internal/pkg/response"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type CreateClientDTO struct {
	Name            string `json:"name"            binding:"required"`
	Email           string `json:"email"`
	VisaCategory    string `json:"visaCategory"    binding:"required"`
	FieldOfEndeavor string `json:"fieldOfEndeavor" binding:"required"`
	ProfileSummary  string `json:"profileSummary"`
}

type UpdateClientDTO struct {
	Name            *string `json:"name"`
	Email           *string `json:"email"`
	VisaCategory    *string `json:"visaCategory"`
	FieldOfEndeavor *string `json:"fieldOfEndeavor"`
	ProfileSummary  *string `json:"profileSummary"`
}

type CreateEvidenceDTO struct {
	Name      string `json:"name"      binding:"required"`
	DocType   string `json:"docType"`
	CorpusRef string `json:"corpusRef"`
}

// ClientService handles case file business logic.
type ClientService struct {
	db *gorm.DB
}

func NewClientService(db *gorm.DB) *ClientService {
	return &ClientService{db: db}
}

func (s *ClientService) List(ctx context.Context, q pagination.Query, search string) ([]models.ClientModel, response.Pagination, error) {
	tx := s.db.WithContext(ctx).Model(&models.ClientModel{}).Order("created_at desc")
	if search != "" {
		like := "%" + search + "%"
		tx = tx.Where("name LIKE ? OR email LIKE ? OR field_of_endeavor LIKE ?", like, like, like)
	}
	var clients []models.ClientModel
	pag, err := pagination.Paginate(tx, q, &clients)
	return clients, pag, err
}

func (s *ClientService) GetByID(ctx context.Context, id string) (*models.ClientModel, error) {
	var client models.ClientModel
	err := s.db.WithContext(ctx).Where("id = ?", id).First(&client).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &client, nil
}

func (s *ClientService) Create(ctx context.Context, dto CreateClientDTO) (*models.ClientModel, error) {
	client := &models.ClientModel{
		Name:             dto.Name,
		Email:            dto.Email,
		VisaCategory:     dto.VisaCategory,
		FieldOfEndeavor:  dto.FieldOfEndeavor,
		ProfileSummary:   dto.ProfileSummary,
		EvaluationStatus: models.EvaluationNone,
	}
	return client, s.db.WithContext(ctx).Create(client).Error
}

func (s *ClientService) Update(ctx context.Context, id string, dto UpdateClientDTO) (*models.ClientModel, error) {
	client, err := s.GetByID(ctx, id)
	if err != nil || client == nil {
		return client, err
	}

	updates := map[string]interface{}{}
	if dto.Name != nil {
		updates["name"] = *dto.Name
	}
	if dto.Email != nil {
		updates["email"] = *dto.Email
	}
	if dto.VisaCategory != nil {
		updates["visa_category"] = *dto.VisaCategory
	}
	if dto.FieldOfEndeavor != nil {
		updates["field_of_endeavor"] = *dto.FieldOfEndeavor
	}
	if dto.ProfileSummary != nil {
		updates["profile_summary"] = *dto.ProfileSummary
	}
	if len(updates) == 0 {
		return client, nil
	}
	if err := s.db.WithContext(ctx).Model(client).Updates(updates).Error; err != nil {
		return nil, err
	}
	return client, nil
}

// Delete removes a client and its dependent rows (soft delete via Base).
func (s *ClientService) Delete(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("client_id = ?", id).Delete(&models.EvidenceDocumentModel{}).Error; err != nil {
			return err
		}
		if err := tx.Where("client_id = ?", id).Delete(&models.RecommenderModel{}).Error; err != nil {
			return err
		}
		return tx.Where("id = ?", id).Delete(&models.ClientModel{}).Error
	})
}

func (s *ClientService) ListEvidence(ctx context.Context, clientID string) ([]models.EvidenceDocumentModel, error) {
	var docs []models.EvidenceDocumentModel
	err := s.db.WithContext(ctx).Where("client_id = ?", clientID).
		Order("created_at asc").Find(&docs).Error
	return docs, err
}

func (s *ClientService) AddEvidence(ctx context.Context, clientID string, dto CreateEvidenceDTO) (*models.EvidenceDocumentModel, error) {
	client, err := s.GetByID(ctx, clientID)
	if err != nil {
		return nil, err
	}
	if client == nil {
		return nil, gorm.ErrRecordNotFound
	}
	doc := &models.EvidenceDocumentModel{
		ClientID:  clientID,
		Name:      dto.Name,
		DocType:   dto.DocType,
		CorpusRef: dto.CorpusRef,
	}
	return doc, s.db.WithContext(ctx).Create(doc).Error
}

func (s *ClientService) RemoveEvidence(ctx context.Context, clientID, docID string) error {
	result := s.db.WithContext(ctx).
		Where("id = ? AND client_id = ?", docID, clientID).
		Delete(&models.EvidenceDocumentModel{})
	if result.Error != nil {
		return result.Error
	}
	if result.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

type ClientHandler struct {
	svc *ClientService
}

func NewClientHandler(svc *ClientService) *ClientHandler { return &ClientHandler{svc: svc} }

func (h *ClientHandler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/clients", authMW)
	g.GET("", h.list)
	g.POST("", h.create)
	g.GET("/:clientId", h.get)
	g.PATCH("/:clientId", h.update)
	g.DELETE("/:clientId", h.delete)
	g.GET("/:clientId/evidence", h.listEvidence)
	g.POST("/:clientId/evidence", h.addEvidence)
	g.DELETE("/:clientId/evidence/:docId", h.removeEvidence)
}

// GET /clients  [auth]
func (h *ClientHandler) list(c *gin.Context) {
	q := pagination.FromContext(c)
	clients, pag, err := h.svc.List(c.Request.Context(), q, c.Query("search"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Paged(c, clients, pag)
}

// POST /clients  [auth]
func (h *ClientHandler) create(c *gin.Context) {
	var dto CreateClientDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	client, err := h.svc.Create(c.Request.Context(), dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.Created(c, client)
}

// GET /clients/:clientId  [auth]
func (h *ClientHandler) get(c *gin.Context) {
	client, err := h.svc.GetByID(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if client == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, client)
}

// PATCH /clients/:clientId  [auth]
func (h *ClientHandler) update(c *gin.Context) {
	var dto UpdateClientDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	client, err := h.svc.Update(c.Request.Context(), c.Param("clientId"), dto)
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if client == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, client)
}

// DELETE /clients/:clientId  [auth]
func (h *ClientHandler) delete(c *gin.Context) {
	if err := h.svc.Delete(c.Request.Context(), c.Param("clientId")); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}

// GET /clients/:clientId/evidence  [auth]
func (h *ClientHandler) listEvidence(c *gin.Context) {
	docs, err := h.svc.ListEvidence(c.Request.Context(), c.Param("clientId"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	response.OK(c, docs)
}

// POST /clients/:clientId/evidence  [auth]
func (h *ClientHandler) addEvidence(c *gin.Context) {
	var dto CreateEvidenceDTO
	if err := c.ShouldBindJSON(&dto); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	doc, err := h.svc.AddEvidence(c.Request.Context(), c.Param("clientId"), dto)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.Created(c, doc)
}

// DELETE /clients/:clientId/evidence/:docId  [auth]
func (h *ClientHandler) removeEvidence(c *gin.Context) {
	err := h.svc.RemoveEvidence(c.Request.Context(), c.Param("clientId"), c.Param("docId"))
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			response.NotFound(c)
			return
		}
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
