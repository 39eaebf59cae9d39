package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
)

type updateDeductionRequest struct {
	TotalDeduction *decimal.Decimal `json:"total_deduction"`
}

func (s *Server) ListDriverPayroll(c *gin.Context) {
	driverCode := strings.TrimSpace(c.Param("driverCode"))

	resp, err := s.payrollSvc.ListByDriver(c.Request.Context(), driverCode)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		resp = []payrolldomain.PayrollRecord{}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) UpdateDeduction(c *gin.Context) {
	driverCode := strings.TrimSpace(c.Param("driverCode"))
	periodKey, err := parsePeriodKey(c.Param("periodKey"))
	if err != nil {
		AbortWithError(c, newValidationError("pay_period_key", "invalid_pay_period_key", "invalid pay period key"))
		return
	}

	var req updateDeductionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.TotalDeduction == nil {
		AbortWithError(c, newValidationError("total_deduction", "invalid_deduction", "total_deduction is required"))
		return
	}

	resp, err := s.payrollSvc.UpdateDeduction(c.Request.Context(), payrolldomain.UpdateDeductionRequest{
		DriverCode:     driverCode,
		PayPeriodKey:   periodKey,
		TotalDeduction: *req.TotalDeduction,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// RecalculatePayroll rebuilds every driver's payroll. Per-driver failures
// are counted, not returned.
func (s *Server) RecalculatePayroll(c *gin.Context) {
	resp, err := s.payrollSvc.RecalculateAll(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
