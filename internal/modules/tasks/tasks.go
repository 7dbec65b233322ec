package tasks

import (
	"strconv"

	"github.com/casevine/core/internal/pkg/pagination"
	"github.com/casevine/core/internal/pkg/response"
	"github.com/casevine/core/internal/pkg/taskqueue"
	"github.com/gin-gonic/gin"
)

// Handler exposes polling endpoints for background generation tasks.
// Tasks are grouped by client ID so the UI can watch everything running
// for one case.
type Handler struct{ taskSvc *taskqueue.Service }

func NewHandler(taskSvc *taskqueue.Service) *Handler { return &Handler{taskSvc: taskSvc} }

func (h *Handler) RegisterRoutes(rg *gin.RouterGroup, authMW gin.HandlerFunc) {
	g := rg.Group("/tasks", authMW)
	g.GET("", h.list)
	g.GET("/:id", h.get)
	g.GET("/group/:groupKey", h.listByGroup)
	g.POST("/:id/cancel", h.cancel)
	g.DELETE("/:id", h.delete)
	g.DELETE("", h.batchDelete)
}

// GET /tasks?type=&status=  [auth]
func (h *Handler) list(c *gin.Context) {
	q := pagination.FromContext(c)

	var taskTypePtr *string
	var statusPtr *taskqueue.TaskStatus
	if taskType := c.Query("type"); taskType != "" {
		taskTypePtr = &taskType
	}
	if statusStr := c.Query("status"); statusStr != "" {
		s := taskqueue.TaskStatus(statusStr)
		statusPtr = &s
	}

	items, total, err := h.taskSvc.List(c.Request.Context(), q.Page, q.Size, taskTypePtr, statusPtr)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	totalPages := int((total + int64(q.Size) - 1) / int64(q.Size))
	response.Paged(c, items, response.Pagination{
		Total:       total,
		CurrentPage: q.Page,
		TotalPage:   totalPages,
		Size:        q.Size,
		HasNextPage: q.Page < totalPages,
	})
}

// GET /tasks/:id  [auth]
func (h *Handler) get(c *gin.Context) {
	task, err := h.taskSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFound(c)
		return
	}
	response.OK(c, task)
}

// GET /tasks/group/:groupKey  [auth]
func (h *Handler) listByGroup(c *gin.Context) {
	groupKey := c.Param("groupKey")
	if groupKey == "" {
		response.BadRequest(c, "group key is required")
		return
	}

	all, _, err := h.taskSvc.List(c.Request.Context(), 1, 1000, nil, nil)
	if err != nil {
		response.InternalError(c, err)
		return
	}

	filtered := make([]*taskqueue.Task, 0)
	for _, t := range all {
		if t.GroupKey == groupKey {
			filtered = append(filtered, t)
		}
	}
	response.OK(c, filtered)
}

// POST /tasks/:id/cancel  [auth]
func (h *Handler) cancel(c *gin.Context) {
	task, err := h.taskSvc.GetByID(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.InternalError(c, err)
		return
	}
	if task == nil {
		response.NotFound(c)
		return
	}
	switch task.Status {
	case taskqueue.TaskCompleted, taskqueue.TaskFailed, taskqueue.TaskCancelled:
		response.BadRequest(c, "task already finished")
		return
	case taskqueue.TaskRunning:
		if err := h.taskSvc.UpdateStatus(c.Request.Context(), task.ID, taskqueue.TaskCancelled, nil, "cancelled by user"); err != nil {
			response.InternalError(c, err)
			return
		}
		response.NoContent(c)
		return
	}
	if err := h.taskSvc.Cancel(c.Request.Context(), task.ID); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.NoContent(c)
}

// DELETE /tasks/:id  [auth]
func (h *Handler) delete(c *gin.Context) {
	if err := h.taskSvc.DeleteByID(c.Request.Context(), c.Param("id")); err != nil {
		response.BadRequest(c, err.Error())
		return
	}
	response.NoContent(c)
}

// DELETE /tasks?before=<unix_ms>  [auth]
func (h *Handler) batchDelete(c *gin.Context) {
	var before int64
	if beforeStr := c.Query("before"); beforeStr != "" {
		if v, err := strconv.ParseInt(beforeStr, 10, 64); err == nil {
			before = v
		}
	}
	if err := h.taskSvc.DeleteCompleted(c.Request.Context(), before); err != nil {
		response.InternalError(c, err)
		return
	}
	response.NoContent(c)
}
