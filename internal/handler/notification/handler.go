package notification

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	notificationService "github.com/medihub/access-api/internal/service/notification"
	"github.com/medihub/access-api/pkg/errors"
	"github.com/medihub/access-api/pkg/httputil"
)

type Handler struct {
	service notificationService.Service
}

func NewHandler(service notificationService.Service) *Handler {
	return &Handler{service: service}
}

func (h *Handler) RegisterRoutes(r *gin.RouterGroup) {
	notifications := r.Group("/patients/:patientId/notifications")
	{
		notifications.GET("", h.List)
		notifications.PUT("/:notificationId/read", h.MarkRead)
		notifications.DELETE("/:notificationId", h.Delete)
	}
}

func (h *Handler) List(c *gin.Context) {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid patient ID", err))
		return
	}

	feed, err := h.service.ListForPatient(c.Request.Context(), patientID)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, feed)
}

func (h *Handler) MarkRead(c *gin.Context) {
	patientID, notificationID, ok := parseIDs(c)
	if !ok {
		return
	}

	if err := h.service.MarkRead(c.Request.Context(), patientID, notificationID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Notification marked as read")
}

func (h *Handler) Delete(c *gin.Context) {
	patientID, notificationID, ok := parseIDs(c)
	if !ok {
		return
	}

	if err := h.service.Delete(c.Request.Context(), patientID, notificationID); err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithMessage(c, "Notification deleted")
}

func parseIDs(c *gin.Context) (uuid.UUID, uuid.UUID, bool) {
	patientID, err := uuid.Parse(c.Param("patientId"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid patient ID", err))
		return uuid.Nil, uuid.Nil, false
	}
	notificationID, err := uuid.Parse(c.Param("notificationId"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid notification ID", err))
		return uuid.Nil, uuid.Nil, false
	}
	return patientID, notificationID, true
}
