package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
)

func (s *Server) ListDrivers(c *gin.Context) {
	resp, err := s.driverSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		resp = []driverdomain.DriverProfile{}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CreateDriver(c *gin.Context) {
	var req driverdomain.CreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.driverSvc.Create(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusCreated, gin.H{"data": resp})
}

func (s *Server) GetDriver(c *gin.Context) {
	resp, err := s.driverSvc.Get(c.Request.Context(), strings.TrimSpace(c.Param("driverCode")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// UpdateDriver applies a partial update; omitted fields keep their value.
func (s *Server) UpdateDriver(c *gin.Context) {
	var req driverdomain.UpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.driverSvc.Update(c.Request.Context(), strings.TrimSpace(c.Param("driverCode")), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteDriver(c *gin.Context) {
	if err := s.driverSvc.Delete(c.Request.Context(), strings.TrimSpace(c.Param("driverCode"))); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}

func (s *Server) ListRoutes(c *gin.Context) {
	resp, err := s.routeSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	if resp == nil {
		resp = []routedomain.Route{}
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// UpsertRoute creates or replaces a route keyed by its name. Existing payroll
// picks up new rates on the next recalculation.
func (s *Server) UpsertRoute(c *gin.Context) {
	var req routedomain.UpsertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.routeSvc.Upsert(c.Request.Context(), req)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	status := http.StatusOK
	if resp.Created {
		status = http.StatusCreated
	}
	c.JSON(status, gin.H{"data": resp.Route})
}

func (s *Server) GetRoute(c *gin.Context) {
	resp, err := s.routeSvc.Get(c.Request.Context(), c.Param("routeCode"))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteRoute(c *gin.Context) {
	if err := s.routeSvc.Delete(c.Request.Context(), c.Param("routeCode")); err != nil {
		AbortWithError(c, err)
		return
	}

	c.Status(http.StatusNoContent)
}
