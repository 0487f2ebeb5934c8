package server

import (
	"context"
	"math/big"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/librolabs/libro-paymaster/internal/paymaster"
	"github.com/librolabs/libro-paymaster/internal/store"
)

type openRequest struct {
	Name  string `json:"name" binding:"required"`
	To    string `json:"to" binding:"required"`
	Data  string `json:"data"`
	Value string `json:"value"`
}

type strategyRequest struct {
	Strategy string `json:"strategy" binding:"required"`
	Token    string `json:"token"`
}

func (h *Handler) handleOpen(c *gin.Context) {
	var body openRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	var value *big.Int
	if body.Value != "" {
		v, ok := new(big.Int).SetString(body.Value, 10)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid value"})
			return
		}
		value = v
	}

	w := wallet(c)
	req, err := paymaster.ParseRequest(body.Name, w.Hex(), body.To, body.Data, value)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}

	h.openSession(c, req)
}

// openSession creates (or replaces) the caller's session for a validated
// request, persists the durable record, and writes the 201 view.
func (h *Handler) openSession(c *gin.Context, req paymaster.PaymasterRequest) {
	walletHex := wallet(c).Hex()
	var session *paymaster.Session
	onSuccess := func(out paymaster.TxOutcome) {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		// The session resets on close, so the settled strategy comes from
		// the persisted record.
		strategy := string(paymaster.KindGeneral)
		if rec, err := store.GetSession(ctx, h.rdb, walletHex); err == nil && rec != nil {
			strategy = rec.Strategy
		}
		o := store.Outcome{
			SessionID: session.ID(),
			Name:      req.Name,
			Strategy:  strategy,
			TxHash:    out.TxHash.Hex(),
			Status:    string(out.Status),
			SettledAt: time.Now().Unix(),
		}
		if err := store.AppendOutcome(ctx, h.rdb, walletHex, o); err != nil {
			h.log.Warn("append outcome failed", zap.String("wallet", walletHex), zap.Error(err))
		}
	}

	session, err := h.manager.Open(wallet(c), req, onSuccess)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}

	rec := store.Record{
		SessionID: session.ID(),
		Wallet:    walletHex,
		Name:      req.Name,
		Target:    req.To.Hex(),
		Strategy:  string(session.Strategy().Kind),
		OpenedAt:  time.Now().Unix(),
	}
	if err := store.SaveSession(c.Request.Context(), h.rdb, rec); err != nil {
		h.log.Warn("persist session failed", zap.String("wallet", walletHex), zap.Error(err))
	}

	c.JSON(http.StatusCreated, session.View())
}

func (h *Handler) handleGet(c *gin.Context) {
	session, ok := h.manager.Get(wallet(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session"})
		return
	}
	c.JSON(http.StatusOK, session.View())
}

func (h *Handler) handleStrategy(c *gin.Context) {
	var body strategyRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}

	session, ok := h.manager.Get(wallet(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session"})
		return
	}

	var strategy paymaster.Strategy
	switch paymaster.StrategyKind(body.Strategy) {
	case paymaster.KindGeneral:
		strategy = paymaster.General()
	case paymaster.KindApprovalBased:
		tok, ok := h.token(body.Token)
		if !ok {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unknown fee token"})
			return
		}
		strategy = paymaster.ApprovalBased(tok)
	default:
		c.JSON(http.StatusBadRequest, gin.H{"error": "unknown strategy"})
		return
	}

	if err := session.SelectStrategy(strategy); err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}

	w := wallet(c)
	if err := store.UpdateStrategy(c.Request.Context(), h.rdb, w.Hex(), body.Strategy); err != nil {
		h.log.Warn("persist strategy failed", zap.String("wallet", w.Hex()), zap.Error(err))
	}
	c.JSON(http.StatusOK, session.View())
}

// handleConfirm prechecks the session, then runs the submit-and-settle
// sequence detached from the request. Clients follow progress through GET.
func (h *Handler) handleConfirm(c *gin.Context) {
	session, ok := h.manager.Get(wallet(c))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no open session"})
		return
	}

	if session.State() != paymaster.StateReady {
		c.JSON(http.StatusConflict, gin.H{"error": "session is not ready"})
		return
	}
	if decision := session.Decision(); !decision.Available {
		c.JSON(http.StatusForbidden, gin.H{"error": decision.Reason})
		return
	}

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), confirmTimeout)
		defer cancel()
		if err := session.Confirm(ctx); err != nil {
			h.log.Warn("confirm failed",
				zap.String("session", session.ID()),
				zap.Error(err),
			)
		}
	}()

	c.JSON(http.StatusAccepted, session.View())
}

func (h *Handler) handleClose(c *gin.Context) {
	w := wallet(c)
	outcome, err := h.manager.Close(w)
	if err != nil {
		c.JSON(httpStatus(err), gin.H{"error": err.Error()})
		return
	}
	if err := store.DeleteSession(c.Request.Context(), h.rdb, w.Hex()); err != nil {
		h.log.Warn("delete session record failed", zap.String("wallet", w.Hex()), zap.Error(err))
	}

	resp := gin.H{"state": string(paymaster.StateClosed)}
	if outcome.TxHash != (common.Hash{}) {
		resp["tx_hash"] = outcome.TxHash.Hex()
		resp["tx_status"] = string(outcome.Status)
	}
	c.JSON(http.StatusOK, resp)
}

func (h *Handler) handleHistory(c *gin.Context) {
	outcomes, err := store.History(c.Request.Context(), h.rdb, wallet(c).Hex(), 50)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "history unavailable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"outcomes": outcomes})
}
