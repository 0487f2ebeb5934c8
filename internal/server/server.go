// Package server wires the paymaster session manager, redis persistence,
// and the pinning proxy into the HTTP API.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/librolabs/libro-paymaster/internal/auth"
	"github.com/librolabs/libro-paymaster/internal/paymaster"
	"github.com/librolabs/libro-paymaster/internal/pinning"
)

// Handler serves the paymaster session API.
type Handler struct {
	manager *paymaster.Manager
	rdb     *redis.Client
	tokens  []paymaster.ERC20Token
	books   ReadingLogConfig
	log     *zap.Logger
}

// ReadingLogConfig wires the reading-log routes: the pinning client that
// stores token metadata and the contracts the sponsored calls target. A nil
// Pin or zero Contract disables the corresponding route.
type ReadingLogConfig struct {
	Pin      *pinning.Client
	Contract common.Address
	Counter  common.Address
	Gateway  string
}

func NewHandler(manager *paymaster.Manager, rdb *redis.Client, tokens []paymaster.ERC20Token, books ReadingLogConfig, log *zap.Logger) *Handler {
	return &Handler{manager: manager, rdb: rdb, tokens: tokens, books: books, log: log}
}

// NewRouter assembles the full engine: health check, authenticated session
// routes, and the pinning proxy.
func NewRouter(h *Handler, pin *pinning.Handler, rdb *redis.Client, log *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())

	r.GET("/healthz", func(c *gin.Context) {
		if err := rdb.Ping(c.Request.Context()).Err(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "degraded", "redis": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	api := r.Group("/api", auth.Middleware(rdb))
	h.Register(api.Group("/paymaster"))
	pin.Register(api.Group("/pinning"))
	api.POST("/readinglog", h.handleCreateReadingLog)
	api.POST("/counter/increment", h.handleIncrementCounter)
	return r
}

func (h *Handler) Register(rg *gin.RouterGroup) {
	rg.POST("/session", h.handleOpen)
	rg.GET("/session", h.handleGet)
	rg.PUT("/session/strategy", h.handleStrategy)
	rg.POST("/session/confirm", h.handleConfirm)
	rg.DELETE("/session", h.handleClose)
	rg.GET("/history", h.handleHistory)
}

func wallet(c *gin.Context) common.Address {
	return common.HexToAddress(c.GetString(auth.WalletKey))
}

// Token resolves a configured fee token by address.
func (h *Handler) token(addr string) (*paymaster.ERC20Token, bool) {
	for i := range h.tokens {
		if strings.EqualFold(h.tokens[i].Address.Hex(), addr) {
			return &h.tokens[i], true
		}
	}
	return nil, false
}

func httpStatus(err error) int {
	switch {
	case errors.Is(err, paymaster.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, paymaster.ErrRequestMissing):
		return http.StatusNotFound
	case errors.Is(err, paymaster.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, paymaster.ErrChainUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusConflict
	}
}

// confirmTimeout bounds the detached submit-and-settle run. Generous: the
// receipt wait retries at the poll interval until the chain answers.
const confirmTimeout = 10 * time.Minute
