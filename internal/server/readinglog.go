package server

import (
	"net/http"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/librolabs/libro-paymaster/internal/readinglog"
)

type createLogRequest struct {
	Title     string `json:"title" binding:"required"`
	Author    string `json:"author" binding:"required"`
	ISBN      string `json:"isbn"`
	Review    string `json:"review"`
	ImageHash string `json:"image_hash"`
}

// handleCreateReadingLog runs the full log-entry flow: pin the token
// metadata to IPFS, assemble the createReadingLog call, and open a
// sponsored session for it. The caller follows up with strategy selection
// and confirm on the session routes.
func (h *Handler) handleCreateReadingLog(c *gin.Context) {
	if h.books.Pin == nil || h.books.Contract == (common.Address{}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "reading log is not configured"})
		return
	}

	var body createLogRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	meta := readinglog.NewTokenMetadata(h.books.Gateway, body.Title, body.Author, body.ISBN, body.Review, body.ImageHash)
	pinned, err := h.books.Pin.PinJSON(c.Request.Context(), meta)
	if err != nil {
		h.log.Warn("pin token metadata failed", zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "pinning service unavailable"})
		return
	}
	tokenURI := h.books.Gateway + pinned.IpfsHash

	req, err := readinglog.CreateReadingLogRequest(wallet(c), h.books.Contract, body.Title, body.Author, body.ISBN, tokenURI)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	h.openSession(c, req)
}

// handleIncrementCounter opens a sponsored session for the demo counter
// contract.
func (h *Handler) handleIncrementCounter(c *gin.Context) {
	if h.books.Counter == (common.Address{}) {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "counter is not configured"})
		return
	}

	req, err := readinglog.IncrementCounterRequest(wallet(c), h.books.Counter)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	h.openSession(c, req)
}
