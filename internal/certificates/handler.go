package certificates

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NoviyantoPutraR/lms-kerjabaik-sub002/pkg/security"
)

// HeaderSerial carries the serial number of the returned certificate.
const HeaderSerial = "X-Certificate-Serial"

// Handler handles HTTP requests for certificate operations
type Handler struct {
	service Service
	logger  *zap.Logger
}

// NewHandler creates a new certificates handler
func NewHandler(service Service, logger *zap.Logger) *Handler {
	return &Handler{
		service: service,
		logger:  logger,
	}
}

// GenerateRequest is the body of POST /certificates/generate.
type GenerateRequest struct {
	CourseID string `json:"id_kursus"`
}

// RegisterRoutes registers certificate routes. Extra middleware is applied to
// the generate endpoint only.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, generate ...gin.HandlerFunc) {
	certificates := router.Group("/certificates")
	{
		certificates.POST("/generate", append(generate, h.generate)...)
		certificates.GET("/verify/:serial", h.verify)
	}
}

// generate handles POST /api/v1/certificates/generate
func (h *Handler) generate(c *gin.Context) {
	token, ok := security.BearerToken(c.GetHeader("Authorization"))
	if !ok {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrAuth, security.ErrMissingToken))
		return
	}

	var req GenerateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("%w: %w", ErrInvalidRequest, err))
		return
	}
	courseID, err := uuid.Parse(req.CourseID)
	if err != nil {
		h.fail(c, http.StatusBadRequest, fmt.Errorf("%w: id_kursus: %w", ErrInvalidRequest, err))
		return
	}

	result, err := h.service.Issue(c.Request.Context(), IssueRequest{Token: token, CourseID: courseID})
	if err != nil {
		h.fail(c, http.StatusBadRequest, err)
		return
	}

	serial := result.Certificate.SerialNumber
	c.Header(HeaderSerial, serial)
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="sertifikat-%s.pdf"`, serial))
	c.Data(http.StatusOK, "application/pdf", result.Document)
}

// verify handles GET /api/v1/certificates/verify/:serial
func (h *Handler) verify(c *gin.Context) {
	v, err := h.service.Verify(c.Request.Context(), c.Param("serial"))
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, ErrCertificateNotFound) {
			status = http.StatusNotFound
		}
		h.fail(c, status, err)
		return
	}
	c.JSON(http.StatusOK, v)
}

func (h *Handler) fail(c *gin.Context, status int, err error) {
	switch {
	case errors.Is(err, ErrStorage), status >= http.StatusInternalServerError:
		h.logger.Error("Certificate request failed", zap.String("path", c.FullPath()), zap.Error(err))
	default:
		h.logger.Info("Certificate request rejected", zap.String("path", c.FullPath()), zap.Error(err))
	}
	c.JSON(status, gin.H{"error": ClientMessage(err)})
}
