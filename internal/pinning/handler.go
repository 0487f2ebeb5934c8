package pinning

import (
	"encoding/json"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// Handler exposes the pinning proxy routes. Clients upload through here so
// the Pinata credentials never leave the server.
type Handler struct {
	client *Client
	log    *zap.Logger
}

func NewHandler(client *Client, log *zap.Logger) *Handler {
	return &Handler{client: client, log: log}
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/file", h.handlePinFile)
	rg.POST("/json", h.handlePinJSON)
}

// maxUploadBytes caps book cover uploads.
const maxUploadBytes = 10 << 20

func (h *Handler) handlePinFile(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxUploadBytes)

	file, header, err := c.Request.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "missing file field"})
		return
	}
	defer file.Close()

	pr, err := h.client.PinFile(c.Request.Context(), header.Filename, file)
	if err != nil {
		h.log.Warn("pin file failed", zap.String("filename", header.Filename), zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "pinning service unavailable"})
		return
	}

	c.JSON(http.StatusOK, pr)
}

func (h *Handler) handlePinJSON(c *gin.Context) {
	var content json.RawMessage
	if err := c.ShouldBindJSON(&content); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid JSON body"})
		return
	}

	pr, err := h.client.PinJSON(c.Request.Context(), content)
	if err != nil {
		h.log.Warn("pin json failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "pinning service unavailable"})
		return
	}

	c.JSON(http.StatusOK, pr)
}
