package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	deliverydomain "github.com/smallbiznis/routepay/internal/delivery/domain"
	driverdomain "github.com/smallbiznis/routepay/internal/driver/domain"
	geocodedomain "github.com/smallbiznis/routepay/internal/geocode/domain"
	"github.com/smallbiznis/routepay/internal/lock"
	"github.com/smallbiznis/routepay/internal/payperiod"
	payrolldomain "github.com/smallbiznis/routepay/internal/payroll/domain"
	ratingdomain "github.com/smallbiznis/routepay/internal/rating/domain"
	referencedomain "github.com/smallbiznis/routepay/internal/reference/domain"
	routedomain "github.com/smallbiznis/routepay/internal/route/domain"
	uploaddomain "github.com/smallbiznis/routepay/internal/upload/domain"
	validatedomain "github.com/smallbiznis/routepay/internal/validate/domain"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrConflict           = errors.New("conflict")
	ErrInternal           = errors.New("internal_error")
	ErrNotFound           = errors.New("not_found")
	ErrInvalidRequest     = errors.New("invalid_request")
	ErrPayloadTooLarge    = errors.New("payload_too_large")
	ErrRateLimited        = errors.New("rate_limited")
	ErrServiceUnavailable = errors.New("service_unavailable")
	ErrBadGateway         = errors.New("upstream_error")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isValidationError(err) {
		code := validationErrorCode(err)
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors: []ValidationError{
				{
					Field:   validationErrorField(code),
					Code:    code,
					Message: validationErrorMessage(code),
				},
			},
		}
	}

	switch {
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrConflict),
		errors.Is(err, driverdomain.ErrAlreadyExists),
		errors.Is(err, ratingdomain.ErrZipOverlap),
		errors.Is(err, lock.ErrBusy):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: "conflict",
		}
	case errors.Is(err, ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge, errorPayload{
			Type:    "payload_too_large",
			Message: "payload too large",
		}
	case errors.Is(err, ErrRateLimited):
		return http.StatusTooManyRequests, errorPayload{
			Type:    "rate_limited",
			Message: "too many uploads, retry later",
		}
	case errors.Is(err, ErrServiceUnavailable),
		errors.Is(err, geocodedomain.ErrProviderNotConfigured),
		errors.Is(err, validatedomain.ErrProviderNotConfigured),
		errors.Is(err, referencedomain.ErrSourceNotConfigured):
		return http.StatusServiceUnavailable, errorPayload{
			Type:    "service_unavailable",
			Message: "service unavailable",
		}
	case errors.Is(err, ErrBadGateway),
		errors.Is(err, referencedomain.ErrSourceRequest),
		errors.Is(err, geocodedomain.ErrProviderRequest),
		errors.Is(err, geocodedomain.ErrProviderDenied):
		return http.StatusBadGateway, errorPayload{
			Type:    "upstream_error",
			Message: "upstream request failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

// classifyErrorForLog returns the error type and code recorded on the
// request log line.
func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if len(payload.Errors) > 0 {
		code = payload.Errors[0].Code
	}
	return payload.Type, code
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return true
	case isUploadValidationError(err),
		isPayrollValidationError(err),
		isDeliveryValidationError(err),
		isReferenceValidationError(err):
		return true
	default:
		return false
	}
}

func isUploadValidationError(err error) bool {
	switch {
	case errors.Is(err, uploaddomain.ErrInvalidDriverCode),
		errors.Is(err, uploaddomain.ErrEmptyFile),
		errors.Is(err, uploaddomain.ErrNoRows),
		errors.Is(err, uploaddomain.ErrInvalidDate),
		errors.Is(err, uploaddomain.ErrUnsupportedFileType),
		errors.Is(err, uploaddomain.ErrMissingHeader):
		return true
	default:
		return false
	}
}

func isPayrollValidationError(err error) bool {
	switch {
	case errors.Is(err, payrolldomain.ErrInvalidDriverCode),
		errors.Is(err, payrolldomain.ErrInvalidDate),
		errors.Is(err, payrolldomain.ErrInvalidPeriodKey),
		errors.Is(err, payrolldomain.ErrInvalidDeduction),
		errors.Is(err, payperiod.ErrInvalidKey),
		errors.Is(err, driverdomain.ErrInvalidCode):
		return true
	default:
		return false
	}
}

func isDeliveryValidationError(err error) bool {
	switch {
	case errors.Is(err, deliverydomain.ErrInvalidDate),
		errors.Is(err, deliverydomain.ErrInvalidRange):
		return true
	default:
		return false
	}
}

func isReferenceValidationError(err error) bool {
	switch {
	case errors.Is(err, driverdomain.ErrInvalidName),
		errors.Is(err, routedomain.ErrInvalidName),
		errors.Is(err, routedomain.ErrInvalidZip),
		errors.Is(err, routedomain.ErrInvalidRate):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, uploaddomain.ErrDriverNotFound),
		errors.Is(err, payrolldomain.ErrDriverNotFound),
		errors.Is(err, deliverydomain.ErrDriverUnknown),
		errors.Is(err, validatedomain.ErrDriverNotFound),
		errors.Is(err, driverdomain.ErrNotFound),
		errors.Is(err, routedomain.ErrNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	switch {
	case errors.Is(err, ErrInvalidRequest):
		return "invalid_request"
	case errors.Is(err, payperiod.ErrInvalidKey):
		return payperiod.ErrInvalidKey.Error()
	default:
		return rootMessage(err)
	}
}

// rootMessage strips context added with %w so the code stays the sentinel
// text.
func rootMessage(err error) string {
	for {
		next := errors.Unwrap(err)
		if next == nil {
			break
		}
		err = next
	}
	msg := err.Error()
	if i := strings.Index(msg, ":"); i > 0 {
		msg = msg[:i]
	}
	return msg
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	switch code {
	case "empty_file", "no_rows", "unsupported_file_type", "missing_barcode_header":
		return "file"
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	case "empty_file":
		return "file is empty"
	case "no_rows":
		return "file has no data rows"
	case "unsupported_file_type":
		return "file must be .csv, .xlsx or .xls"
	case "missing_barcode_header":
		return "file has no barcode column"
	default:
		return "invalid value"
	}
}
