package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	validatedomain "github.com/smallbiznis/routepay/internal/validate/domain"
)

type validateRequest struct {
	DriverCode string `json:"driver_code"`
}

// ValidateAddresses reverse geocodes delivered parcels and records the ones
// whose address does not resemble the reported fix. The body is optional.
func (s *Server) ValidateAddresses(c *gin.Context) {
	var req validateRequest
	if c.Request.ContentLength > 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			AbortWithError(c, invalidRequestError())
			return
		}
	}
	driverCode := strings.TrimSpace(req.DriverCode)
	if driverCode == "" {
		driverCode = strings.TrimSpace(c.Query("driver_code"))
	}

	resp, err := s.validateSvc.ValidateAddresses(c.Request.Context(), driverCode)
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp.Mismatches == nil {
		resp.Mismatches = []validatedomain.AddressMismatch{}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// SyncReference pulls drivers and routes from the configured source.
func (s *Server) SyncReference(c *gin.Context) {
	resp, err := s.referenceSvc.SyncReference(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
