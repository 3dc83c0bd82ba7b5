package access

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/medihub/access-api/internal/model"
	accessService "github.com/medihub/access-api/internal/service/access"
	"github.com/medihub/access-api/pkg/errors"
	"github.com/medihub/access-api/pkg/httputil"
	"github.com/medihub/access-api/pkg/validator"
)

type Handler struct {
	ledger   accessService.LedgerService
	verifier accessService.VerifierService
}

func NewHandler(ledger accessService.LedgerService, verifier accessService.VerifierService) *Handler {
	return &Handler{ledger: ledger, verifier: verifier}
}

// RegisterRoutes mounts the doctor side of the exchange. Middlewares in
// verify run only on the verify route.
func (h *Handler) RegisterRoutes(r *gin.RouterGroup, verify ...gin.HandlerFunc) {
	requests := r.Group("/doctors/:doctorId/access-requests")
	{
		requests.POST("", h.RequestAccess)
		requests.POST("/verify", append(verify, h.Verify)...)
	}
}

func (h *Handler) RequestAccess(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid doctor ID", err))
		return
	}

	var req model.RequestAccessRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		httputil.RespondWithError(c, errors.BadRequest("a valid patient_email is required", err))
		return
	}

	result, err := h.ledger.RequestAccess(c.Request.Context(), doctorID, req.PatientEmail)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}

	message := "Access code sent to patient"
	if result.Reused {
		message = "Access request already sent. Waiting for patient verification."
	}
	httputil.RespondWithSuccess(c, model.AccessRequestResponse{
		Message:       message,
		PassKeySentTo: result.PatientName,
		PatientName:   result.PatientName,
		Passkey:       result.Grant.Passkey,
		ExpiresAt:     result.Grant.ExpiresAt,
		ExpiresIn:     expiresIn(time.Until(result.Grant.ExpiresAt)),
		Reused:        result.Reused,
	})
}

func (h *Handler) Verify(c *gin.Context) {
	doctorID, err := uuid.Parse(c.Param("doctorId"))
	if err != nil {
		httputil.RespondWithError(c, errors.BadRequest("invalid doctor ID", err))
		return
	}

	var req model.VerifyPasskeyRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		if validator.HasField(err, "passkey") {
			httputil.RespondWithError(c, errors.NewInvalidFormat("access code must be 5 letters or digits"))
			return
		}
		httputil.RespondWithError(c, errors.BadRequest("patient_email and passkey are required", err))
		return
	}

	bundle, err := h.verifier.Verify(c.Request.Context(), doctorID, req.PatientEmail, req.Passkey)
	if err != nil {
		httputil.RespondWithError(c, err)
		return
	}
	httputil.RespondWithSuccess(c, bundle)
}

func expiresIn(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	minutes := int(d.Round(time.Minute) / time.Minute)
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}
