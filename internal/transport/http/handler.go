package http

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sipadmin/funds-engine/internal/model"
	"github.com/sipadmin/funds-engine/internal/repo"
	"github.com/sipadmin/funds-engine/internal/service"
)

// AdminHeader carries the id of the acting administrator.
const AdminHeader = "X-Admin-ID"

// Handler serves the admin API.
type Handler struct {
	draws       *service.DrawService
	profits     *service.ProfitService
	wallets     *service.WalletService
	payments    *service.PaymentService
	withdrawals *service.WithdrawalService
	log         *zap.SugaredLogger
}

func NewHandler(
	draws *service.DrawService,
	profits *service.ProfitService,
	wallets *service.WalletService,
	payments *service.PaymentService,
	withdrawals *service.WithdrawalService,
	log *zap.SugaredLogger,
) *Handler {
	return &Handler{draws: draws, profits: profits, wallets: wallets, payments: payments, withdrawals: withdrawals, log: log}
}

func RegisterHandlers(r gin.IRouter, h *Handler) {
	v1 := r.Group("/v1")
	{
		v1.POST("/lucky-draws", h.createDraw)
		v1.GET("/lucky-draws/:id", h.getDraw)
		v1.POST("/lucky-draws/:id/entries", h.addEntry)
		v1.POST("/lucky-draws/:id/execute", h.executeDraw)

		v1.POST("/profit-shares", h.createPeriod)
		v1.GET("/profit-shares/:id", h.getPeriod)
		v1.POST("/profit-shares/:id/calculate", h.calculate)
		v1.POST("/profit-shares/:id/distribute", h.distribute)
		v1.POST("/profit-shares/:id/reopen", h.reopen)

		v1.POST("/wallets/:user_id/adjust", h.adjust)
		v1.GET("/wallets/:user_id/balance", h.balance)
		v1.GET("/wallets/:user_id/history", h.history)

		v1.POST("/payments/:id/refund", h.refund)

		v1.POST("/withdrawals/:id/approve", h.withdrawal(h.withdrawals.Approve))
		v1.POST("/withdrawals/:id/reject", h.withdrawal(h.withdrawals.Reject))
		v1.POST("/withdrawals/:id/complete", h.withdrawal(h.withdrawals.Complete))
		v1.POST("/withdrawals/:id/fail", h.withdrawal(h.withdrawals.Fail))
	}
}

type createDrawReq struct {
	Name           string               `json:"name" binding:"required"`
	DrawDate       time.Time            `json:"draw_date" binding:"required"`
	PrizeStructure model.PrizeStructure `json:"prize_structure" binding:"required,min=1"`
}

func (h *Handler) createDraw(c *gin.Context) {
	var req createDrawReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	d, err := h.draws.CreateDraw(c, req.Name, req.DrawDate, req.PrizeStructure)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, d)
}

func (h *Handler) getDraw(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	d, err := h.draws.GetDraw(c, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, d)
}

type addEntryReq struct {
	UserID    uint64 `json:"user_id" binding:"required"`
	PaymentID uint64 `json:"payment_id" binding:"required"`
}

func (h *Handler) addEntry(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	var req addEntryReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	e, err := h.draws.AddEntry(c, id, req.UserID, req.PaymentID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, e)
}

func (h *Handler) executeDraw(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, ok := adminID(c); !ok {
		return
	}
	winners, err := h.draws.ExecuteDraw(c, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"draw_id": id, "winners": winners})
}

type createPeriodReq struct {
	Name      string          `json:"name" binding:"required"`
	StartDate time.Time       `json:"start_date" binding:"required"`
	EndDate   time.Time       `json:"end_date" binding:"required"`
	NetProfit decimal.Decimal `json:"net_profit"`
	TotalPool decimal.Decimal `json:"total_pool"`
}

func (h *Handler) createPeriod(c *gin.Context) {
	var req createPeriodReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	p, err := h.profits.CreatePeriod(c, req.Name, req.StartDate, req.EndDate, req.NetProfit, req.TotalPool)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, p)
}

func (h *Handler) getPeriod(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.profits.GetPeriod(c, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) calculate(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.profits.Calculate(c, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

func (h *Handler) distribute(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	if _, ok := adminID(c); !ok {
		return
	}
	res, err := h.profits.Distribute(c, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) reopen(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	p, err := h.profits.Reopen(c, id)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, p)
}

type adjustReq struct {
	Amount         decimal.Decimal `json:"amount"`
	Reason         string          `json:"reason" binding:"required"`
	IdempotencyKey string          `json:"idempotency_key"`
}

func (h *Handler) adjust(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	admin, ok := adminID(c)
	if !ok {
		return
	}
	var req adjustReq
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	key := req.IdempotencyKey
	if key == "" {
		key = c.GetHeader("Idempotency-Key")
	}
	t, err := h.wallets.Adjust(c, service.Adjustment{
		UserID:         userID,
		Amount:         req.Amount,
		Reason:         req.Reason,
		AdminID:        admin,
		IdempotencyKey: key,
	})
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, t)
}

func (h *Handler) balance(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	bal, err := h.wallets.GetBalance(c, userID)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user_id": userID, "balance": bal})
}

func (h *Handler) history(c *gin.Context) {
	userID, ok := pathID(c, "user_id")
	if !ok {
		return
	}
	limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
	sinceStr := c.DefaultQuery("since", time.Now().Add(-30*24*time.Hour).Format(time.RFC3339))
	since, err := time.Parse(time.RFC3339, sinceStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid since"})
		return
	}
	txs, err := h.wallets.GetHistory(c, userID, limit, since)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, txs)
}

func (h *Handler) refund(c *gin.Context) {
	id, ok := pathID(c, "id")
	if !ok {
		return
	}
	admin, ok := adminID(c)
	if !ok {
		return
	}
	res, err := h.payments.Refund(c, id, admin)
	if err != nil {
		h.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, res)
}

type noteReq struct {
	Note string `json:"note" binding:"max=255"`
}

func (h *Handler) withdrawal(action func(ctx context.Context, id, adminID uint64, note string) (*model.Withdrawal, error)) gin.HandlerFunc {
	return func(c *gin.Context) {
		id, ok := pathID(c, "id")
		if !ok {
			return
		}
		admin, ok := adminID(c)
		if !ok {
			return
		}
		var req noteReq
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&req); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
		}
		w, err := action(c, id, admin, req.Note)
		if err != nil {
			h.fail(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

// fail maps service errors to HTTP statuses. Internal failures are logged and
// hidden from the caller.
func (h *Handler) fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, service.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidState), errors.Is(err, service.ErrDuplicateEntry):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case errors.Is(err, service.ErrInsufficientEntries),
		errors.Is(err, service.ErrInsufficientUniqueUsers),
		errors.Is(err, service.ErrNoEligibleInvestment),
		errors.Is(err, service.ErrNoDistributions),
		errors.Is(err, repo.ErrInsufficientFunds):
		c.JSON(http.StatusUnprocessableEntity, gin.H{"error": err.Error()})
	case service.IsValidation(err):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	default:
		h.log.Errorw("request failed", "path", c.FullPath(), "request_id", c.GetString(requestIDKey), "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error", "request_id": c.GetString(requestIDKey)})
	}
}

func pathID(c *gin.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid " + name})
		return 0, false
	}
	return id, true
}

func adminID(c *gin.Context) (uint64, bool) {
	id, err := strconv.ParseUint(c.GetHeader(AdminHeader), 10, 64)
	if err != nil || id == 0 {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "missing or invalid " + AdminHeader})
		return 0, false
	}
	return id, true
}
