package http

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/richardliu001/ledger-service/internal/model"
	"github.com/richardliu001/ledger-service/internal/repo"
	"github.com/richardliu001/ledger-service/internal/service"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// RegisterHandlers mounts the ledger API on g.
func RegisterHandlers(g *gin.RouterGroup, ledger *service.Ledger, log *zap.SugaredLogger) {
	h := &handler{ledger: ledger, log: log}
	g.POST("/accounts", h.provision)
	g.GET("/accounts/:id/balance", h.balance)
	g.PUT("/accounts/:id/balance", h.setBalance)
	g.GET("/accounts/:id/transactions", h.accountTransactions)
	g.POST("/transfers", h.transfer)
	g.GET("/transactions", h.listTransactions)
	g.GET("/transactions/:id", h.getTransaction)
}

type handler struct {
	ledger *service.Ledger
	log    *zap.SugaredLogger
}

var statusByKind = map[service.Kind]int{
	service.KindValidation:        http.StatusBadRequest,
	service.KindNotFound:          http.StatusNotFound,
	service.KindInsufficientFunds: http.StatusUnprocessableEntity,
	service.KindStoreFailure:      http.StatusInternalServerError,
}

func (h *handler) fail(c *gin.Context, err error) {
	kind := service.KindOf(err)
	status := statusByKind[kind]
	msg := err.Error()
	if kind == service.KindStoreFailure {
		h.log.Errorw("request failed", "path", c.FullPath(), "error", err)
		msg = "internal error"
	}
	c.AbortWithStatusJSON(status, gin.H{"error": gin.H{"kind": kind, "message": msg}})
}

func (h *handler) invalid(c *gin.Context, field, reason string) {
	h.fail(c, &service.ValidationError{Field: field, Reason: reason})
}

func parseID(raw string) (uuid.UUID, bool) {
	id, err := uuid.Parse(raw)
	return id, err == nil
}

func (h *handler) pathID(c *gin.Context) (uuid.UUID, bool) {
	id, ok := parseID(c.Param("id"))
	if !ok {
		h.invalid(c, "id", "must be a UUID")
	}
	return id, ok
}

func (h *handler) provision(c *gin.Context) {
	acc, err := h.ledger.Provision(c.Request.Context())
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

func (h *handler) balance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	bal, err := h.ledger.GetBalance(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"account_id": id, "balance": bal})
}

type setBalanceReq struct {
	Balance string `json:"balance" binding:"required"`
}

func (h *handler) setBalance(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	var req setBalanceReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, "body", err.Error())
		return
	}
	bal, err := decimal.NewFromString(req.Balance)
	if err != nil {
		h.invalid(c, "balance", "must be a decimal string")
		return
	}
	acc, err := h.ledger.SetBalance(c.Request.Context(), id, bal)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

type transferReq struct {
	FromAccountID string `json:"from_account_id" binding:"required"`
	ToAccountID   string `json:"to_account_id" binding:"required"`
	Amount        string `json:"amount" binding:"required"`
}

func (h *handler) transfer(c *gin.Context) {
	var req transferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		h.invalid(c, "body", err.Error())
		return
	}
	fromID, ok := parseID(req.FromAccountID)
	if !ok {
		h.invalid(c, "from_account_id", "must be a UUID")
		return
	}
	toID, ok := parseID(req.ToAccountID)
	if !ok {
		h.invalid(c, "to_account_id", "must be a UUID")
		return
	}
	amt, err := decimal.NewFromString(req.Amount)
	if err != nil {
		h.invalid(c, "amount", "must be a decimal string")
		return
	}
	out, err := h.ledger.CreateTransfer(c.Request.Context(), fromID, toID, amt)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"transaction_id": out.TransactionID,
		"from_balance":   out.FromBalance,
		"to_balance":     out.ToBalance,
	})
}

func (h *handler) filter(c *gin.Context) (repo.TxFilter, error) {
	var f repo.TxFilter
	if s := c.Query("limit"); s != "" {
		n, err := strconv.Atoi(s)
		if err != nil || n < 0 {
			return f, &service.ValidationError{Field: "limit", Reason: "must be a non-negative integer"}
		}
		f.Limit = n
	}
	if s := c.Query("since"); s != "" {
		t, err := time.Parse(time.RFC3339, s)
		if err != nil {
			return f, &service.ValidationError{Field: "since", Reason: "must be RFC3339"}
		}
		f.Since = t
	}
	switch st := model.TransactionStatus(c.Query("status")); st {
	case "", model.StatusApplied, model.StatusRejected:
		f.Status = st
	default:
		return f, &service.ValidationError{Field: "status", Reason: "must be applied or rejected"}
	}
	return f, nil
}

func (h *handler) listTransactions(c *gin.Context) {
	f, err := h.filter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	txs, err := h.ledger.ListTransactions(c.Request.Context(), f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *handler) accountTransactions(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	f, err := h.filter(c)
	if err != nil {
		h.fail(c, err)
		return
	}
	txs, err := h.ledger.QueryTransactions(c.Request.Context(), id, f)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"transactions": txs})
}

func (h *handler) getTransaction(c *gin.Context) {
	id, ok := h.pathID(c)
	if !ok {
		return
	}
	t, err := h.ledger.GetTransaction(c.Request.Context(), id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}
