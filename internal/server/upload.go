package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	uploaddomain "github.com/smallbiznis/routepay/internal/upload/domain"
	"go.uber.org/zap"
)

// UploadManifest ingests a multipart "file" for the driver. The optional
// "date" form field overrides the upload day used for pay-period bucketing.
func (s *Server) UploadManifest(c *gin.Context) {
	driverCode := strings.TrimSpace(c.Param("driverCode"))

	if err := c.Request.ParseMultipartForm(multipartMemoryReserve); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			AbortWithError(c, ErrPayloadTooLarge)
			return
		}
		AbortWithError(c, newValidationError("file", "invalid_file", "multipart body with a file is required"))
		return
	}

	fileHeader, err := c.FormFile("file")
	if err != nil {
		AbortWithError(c, newValidationError("file", "invalid_file", "file is required"))
		return
	}
	file, err := fileHeader.Open()
	if err != nil {
		AbortWithError(c, err)
		return
	}
	defer file.Close()

	resp, err := s.uploadSvc.Ingest(c.Request.Context(), uploaddomain.IngestRequest{
		DriverCode:   driverCode,
		Filename:     fileHeader.Filename,
		Reader:       file,
		DateOverride: strings.TrimSpace(c.PostForm("date")),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.Set(contextUploadBatchKey, resp.BatchID)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}

// DeleteUploads removes the driver's events uploaded on ?date= and
// recomputes or drops the affected payroll record.
func (s *Server) DeleteUploads(c *gin.Context) {
	driverCode := strings.TrimSpace(c.Param("driverCode"))
	date := strings.TrimSpace(c.Query("date"))
	if date == "" {
		AbortWithError(c, newValidationError("date", "invalid_date", "date is required"))
		return
	}

	resp, err := s.payrollSvc.DeleteByDriverAndDate(c.Request.Context(), driverCode, date)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	s.log.Info("uploads deleted",
		zap.String("driver_code", driverCode),
		zap.String("date", date),
		zap.Int64("deleted_uploads", resp.DeletedUploads),
		zap.Bool("recalculated", resp.Recalculated),
	)
	c.JSON(http.StatusOK, gin.H{"data": resp})
}
