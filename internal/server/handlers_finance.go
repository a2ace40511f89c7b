package server

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/tournevent/fulfillment/pkg/finance"
)

// actorRoleHeader is set by the upstream gateway after authentication.
const actorRoleHeader = "X-Actor-Role"

func (s *Server) handleGetFinancialConfig(c *gin.Context) {
	view, err := s.deps.Finance.ViewFor(c.Request.Context(), c.GetHeader(actorRoleHeader))
	if err != nil {
		s.respondError(c, "finance.get", err)
		return
	}
	c.JSON(http.StatusOK, view)
}

type costsRequest struct {
	PaymentFeeRate decimal.Decimal `json:"paymentFeeRate"`
	PackagingCost  decimal.Decimal `json:"packagingCost"`
}

type financialConfigRequest struct {
	InterestRate          decimal.Decimal `json:"interestRate"`
	MaxInstallments       int             `json:"maxInstallments" binding:"required,min=1"`
	MinInstallmentValue   decimal.Decimal `json:"minInstallmentValue"`
	FreeShippingThreshold decimal.Decimal `json:"freeShippingThreshold"`
	Markup                decimal.Decimal `json:"markup"`
	Costs                 costsRequest    `json:"costs"`
}

func (s *Server) handleUpdateFinancialConfig(c *gin.Context) {
	role := c.GetHeader(actorRoleHeader)
	if role != finance.RoleOwner {
		s.respondError(c, "finance.update", finance.ErrForbidden)
		return
	}

	var req financialConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		respondInvalid(c, err)
		return
	}

	cfg, err := s.deps.Finance.Update(c.Request.Context(), role, finance.Config{
		InterestRate:          req.InterestRate,
		MaxInstallments:       req.MaxInstallments,
		MinInstallmentValue:   req.MinInstallmentValue,
		FreeShippingThreshold: req.FreeShippingThreshold,
		Markup:                req.Markup,
		Costs: finance.Costs{
			PaymentFeeRate: req.Costs.PaymentFeeRate,
			PackagingCost:  req.Costs.PackagingCost,
		},
	})
	if err != nil {
		s.respondError(c, "finance.update", err)
		return
	}
	c.JSON(http.StatusOK, cfg.View(role))
}
