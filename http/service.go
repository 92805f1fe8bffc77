// Package http exposes the settlement engine over a gin JSON API.
//
// Caller identity is taken from the request body's payer/caller field. This
// trusts the transport, which is appropriate for a local or
// perimeter-authenticated deployment; it is not a public-internet surface.
package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	multipay "github.com/paydeck/multipay"
)

const defaultReceiptTTL = 10 * time.Minute

// Service wires the engine's entry points to HTTP handlers.
type Service struct {
	engine   *multipay.Engine
	log      *zap.Logger
	receipts *multipay.ReceiptCache
}

// Option configures the service.
type Option func(*Service)

// WithLogger sets the request logger.
func WithLogger(log *zap.Logger) Option {
	return func(s *Service) { s.log = log }
}

// WithReceiptCache replaces the default idempotency cache.
func WithReceiptCache(cache *multipay.ReceiptCache) Option {
	return func(s *Service) { s.receipts = cache }
}

// New creates a service over the given engine.
func New(engine *multipay.Engine, opts ...Option) *Service {
	s := &Service{
		engine:   engine,
		log:      zap.NewNop(),
		receipts: multipay.NewReceiptCache(defaultReceiptTTL),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register mounts the API under /v1 on the given router.
func (s *Service) Register(r gin.IRouter) {
	v1 := r.Group("/v1")
	v1.GET("/config", s.handleGetConfig)
	v1.POST("/initialize", s.handleInitialize)
	v1.PUT("/config/fee", s.handleSetFee)
	v1.PUT("/config/fee-address", s.handleSetFeeAddress)
	v1.PUT("/config/router", s.handleSetRouter)
	v1.POST("/approvals", s.handleApprovals)
	v1.POST("/payments", s.handlePayments)
	v1.POST("/settlements", s.handleSettlements)
}

// Handler returns a ready-to-serve gin engine with the API mounted.
func (s *Service) Handler() *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	s.Register(r)
	return r
}

// ============================================================================
// Handlers
// ============================================================================

func (s *Service) handleGetConfig(c *gin.Context) {
	if !s.engine.Initialized() {
		s.fail(c, multipay.NewSettlementError(multipay.ErrCodeNotInitialized, "engine is not initialized", nil))
		return
	}
	cfg := s.engine.Config()
	c.JSON(http.StatusOK, configBody{
		FeeRecipient: cfg.FeeRecipient.Hex(),
		FeeRate:      cfg.FeeRate.String(),
		Router:       cfg.Router.Hex(),
		IsSwapV2:     cfg.IsSwapV2,
	})
}

func (s *Service) handleInitialize(c *gin.Context) {
	var body initializeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err)
		return
	}
	caller, err := parseAddress(body.Caller, "caller")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	router, err := parseAddress(body.Router, "router")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	feeRecipient, err := parseAddress(body.FeeRecipient, "feeRecipient")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	feeRate, err := parseAmount(body.FeeRate, "feeRate")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.engine.Initialize(caller, multipay.InitializeParams{
		Router:       router,
		IsSwapV2:     body.IsSwapV2,
		FeeRecipient: feeRecipient,
		FeeRate:      feeRate,
	}); err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("engine initialized", zap.String("caller", caller.Hex()), zap.String("router", router.Hex()))
	c.Status(http.StatusNoContent)
}

func (s *Service) handleSetFee(c *gin.Context) {
	var body setFeeBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err)
		return
	}
	caller, err := parseAddress(body.Caller, "caller")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	fee, err := parseAmount(body.Fee, "fee")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.engine.SetFee(caller, fee); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) handleSetFeeAddress(c *gin.Context) {
	var body setFeeAddressBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err)
		return
	}
	caller, err := parseAddress(body.Caller, "caller")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	feeAddress, err := parseAddress(body.FeeAddress, "feeAddress")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.engine.SetFeeAddress(caller, feeAddress); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) handleSetRouter(c *gin.Context) {
	var body setRouterBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err)
		return
	}
	caller, err := parseAddress(body.Caller, "caller")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	router, err := parseAddress(body.Router, "router")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.engine.SetRouter(caller, router, body.IsSwapV2); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) handleApprovals(c *gin.Context) {
	var body approvalBody
	if err := c.ShouldBindJSON(&body); err != nil {
		s.badRequest(c, err)
		return
	}
	caller, err := parseAddress(body.Caller, "caller")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	tokens, err := parseAddresses(body.Tokens, "tokens")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := s.engine.ApproveTokens(c.Request.Context(), caller, tokens); err != nil {
		s.fail(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

func (s *Service) handlePayments(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := ValidateSettlementRequest(raw); err != nil {
		s.badRequest(c, err)
		return
	}
	var body settlementBody
	if err := json.Unmarshal(raw, &body); err != nil {
		s.badRequest(c, err)
		return
	}
	payer, err := parseAddress(body.Payer, "payer")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	instructions, err := toInstructions(body.Instructions)
	if err != nil {
		s.badRequest(c, err)
		return
	}

	receipt, err := s.engine.PerformMultiPayment(c.Request.Context(), payer, instructions)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("multi payment settled",
		zap.String("payer", payer.Hex()),
		zap.Int("transfers", receipt.Transfers))
	c.JSON(http.StatusOK, toPaymentReceiptBody(receipt))
}

func (s *Service) handleSettlements(c *gin.Context) {
	raw, err := c.GetRawData()
	if err != nil {
		s.badRequest(c, err)
		return
	}
	if err := ValidateSettlementRequest(raw); err != nil {
		s.badRequest(c, err)
		return
	}
	var body settlementBody
	if err := json.Unmarshal(raw, &body); err != nil {
		s.badRequest(c, err)
		return
	}
	payer, err := parseAddress(body.Payer, "payer")
	if err != nil {
		s.badRequest(c, err)
		return
	}
	instructions, err := toInstructions(body.Instructions)
	if err != nil {
		s.badRequest(c, err)
		return
	}
	swap, err := body.Swap.toRequest()
	if err != nil {
		s.badRequest(c, err)
		return
	}

	// Idempotency: an identical retried body returns the original receipt.
	key := multipay.ReceiptKey(raw)
	status, cached, done := s.receipts.CheckAndMark(key)
	switch status {
	case multipay.ReceiptCached:
		c.JSON(http.StatusOK, toSettlementReceiptBody(cached))
		return
	case multipay.ReceiptInFlight:
		receipt, err := s.receipts.WaitForReceipt(c.Request.Context(), key, done)
		if err != nil {
			s.fail(c, err)
			return
		}
		if receipt != nil {
			c.JSON(http.StatusOK, toSettlementReceiptBody(receipt))
			return
		}
		// The settling request failed; fall through and settle fresh.
		status, cached, done = s.receipts.CheckAndMark(key)
		if status == multipay.ReceiptCached {
			c.JSON(http.StatusOK, toSettlementReceiptBody(cached))
			return
		}
		if status == multipay.ReceiptInFlight {
			s.fail(c, multipay.NewSettlementError(multipay.ErrCodeReentrantCall, "settlement already in progress", nil))
			return
		}
	}

	receipt, err := s.settleAndCache(c.Request.Context(), payer, swap, instructions, key, done)
	if err != nil {
		s.fail(c, err)
		return
	}
	s.log.Info("settlement completed",
		zap.String("id", receipt.ID),
		zap.String("payer", payer.Hex()),
		zap.Int("transfers", receipt.Payment.Transfers))
	c.JSON(http.StatusOK, toSettlementReceiptBody(receipt))
}

// settleAndCache runs the composite settlement while holding the in-flight
// marker for key. The marker is released on every exit path, including a
// panic unwinding through gin's recovery middleware, so retries of the same
// key never hang behind a dead request.
func (s *Service) settleAndCache(ctx context.Context, payer common.Address, swap *multipay.SwapRequest, instructions []multipay.PaymentInstruction, key string, done chan struct{}) (*multipay.SettlementReceipt, error) {
	cached := false
	defer func() {
		if !cached {
			s.receipts.Fail(key, done)
		}
	}()

	receipt, err := s.engine.PerformSwapAndPayment(ctx, payer, swap, instructions)
	if err != nil {
		return nil, err
	}
	s.receipts.Complete(key, receipt, done)
	cached = true
	return receipt, nil
}

// ============================================================================
// Error mapping
// ============================================================================

func (s *Service) badRequest(c *gin.Context, err error) {
	c.JSON(http.StatusBadRequest, errorResponse{Error: errorBody{
		Code:    "invalid_request",
		Message: err.Error(),
	}})
}

func (s *Service) fail(c *gin.Context, err error) {
	code := multipay.ErrorCode(err)
	status := statusForCode(code)
	if code == "" {
		// Upstream token or router failure, propagated verbatim.
		code = "upstream_failure"
	}
	s.log.Warn("request failed", zap.String("code", code), zap.Error(err))
	c.JSON(status, errorResponse{Error: errorBody{Code: code, Message: err.Error()}})
}

func statusForCode(code string) int {
	switch code {
	case multipay.ErrCodeUnauthorized:
		return http.StatusForbidden
	case multipay.ErrCodeReentrantCall,
		multipay.ErrCodeNotInitialized,
		multipay.ErrCodeAlreadyInitialized,
		multipay.ErrCodeRouterNotConfigured:
		return http.StatusConflict
	case "":
		return http.StatusBadGateway
	default:
		return http.StatusBadRequest
	}
}
