package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	"github.com/smallbiznis/routepay/pkg/db/pagination"
)

func (s *Server) ListDeliveries(c *gin.Context) {
	var query struct {
		DriverCode string `form:"driver_code"`
		Date       string `form:"date"`
		StartDate  string `form:"start_date"`
		EndDate    string `form:"end_date"`
		Page       string `form:"page"`
		Limit      string `form:"limit"`
	}
	if err := c.ShouldBindQuery(&query); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	page, err := parseOptionalInt(query.Page)
	if err != nil {
		AbortWithError(c, newValidationError("page", "invalid_page", "invalid page"))
		return
	}
	limit, err := parseOptionalInt(query.Limit)
	if err != nil {
		AbortWithError(c, newValidationError("limit", "invalid_limit", "invalid limit"))
		return
	}

	resp, err := s.deliverySvc.List(c.Request.Context(), deliverydomain.ListRequest{
		DriverCode: strings.TrimSpace(query.DriverCode),
		Date:       strings.TrimSpace(query.Date),
		StartDate:  strings.TrimSpace(query.StartDate),
		EndDate:    strings.TrimSpace(query.EndDate),
		Page:       pagination.Page{Page: page, Limit: limit},
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp.Data == nil {
		resp.Data = []deliverydomain.DeliveryEvent{}
	}

	c.JSON(http.StatusOK, resp)
}
