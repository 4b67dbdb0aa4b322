package server

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	claimdomain "github.com/ownaday/daybook/internal/claim/domain"
	giftdomain "github.com/ownaday/daybook/internal/gift/domain"
	ledgerdomain "github.com/ownaday/daybook/internal/ledger/domain"
	listingdomain "github.com/ownaday/daybook/internal/listing/domain"
	ownerdomain "github.com/ownaday/daybook/internal/owner/domain"
	paymentdomain "github.com/ownaday/daybook/internal/payment/domain"
	transferdomain "github.com/ownaday/daybook/internal/transfer/domain"
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
	ErrConflict       = errors.New("conflict")
	ErrInternal       = errors.New("internal_error")
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
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
	case isConflictError(err):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, ErrInternal):
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
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
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, claimdomain.ErrInvalidDay),
		errors.Is(err, claimdomain.ErrInvalidContent),
		errors.Is(err, claimdomain.ErrInvalidStyle),
		errors.Is(err, claimdomain.ErrInvalidOwner),
		errors.Is(err, claimdomain.ErrFingerprintMissing),
		errors.Is(err, ownerdomain.ErrInvalidEmail),
		errors.Is(err, listingdomain.ErrInvalidDay),
		errors.Is(err, listingdomain.ErrInvalidPrice),
		errors.Is(err, paymentdomain.ErrInvalidPayload),
		errors.Is(err, paymentdomain.ErrInvalidEvent),
		errors.Is(err, paymentdomain.ErrInvalidSignature):
		return true
	default:
		return false
	}
}

// Conflicts are invariant violations with stable codes. The caller must not
// retry them blindly; nothing was partially applied.
func isConflictError(err error) bool {
	switch {
	case errors.Is(err, ErrConflict),
		errors.Is(err, claimdomain.ErrAlreadyClaimed),
		errors.Is(err, claimdomain.ErrOwnerMismatch),
		errors.Is(err, giftdomain.ErrDisabledCode),
		errors.Is(err, giftdomain.ErrExhaustedCode),
		errors.Is(err, transferdomain.ErrCodeRevoked),
		errors.Is(err, transferdomain.ErrCodeUsed),
		errors.Is(err, transferdomain.ErrFingerprintMismatch),
		errors.Is(err, transferdomain.ErrSameOwner),
		errors.Is(err, listingdomain.ErrNotActive),
		errors.Is(err, listingdomain.ErrActiveListingExists),
		errors.Is(err, listingdomain.ErrSellerMismatch),
		errors.Is(err, listingdomain.ErrAmountMismatch),
		errors.Is(err, listingdomain.ErrDayNotClaimed),
		errors.Is(err, listingdomain.ErrSellerNotClaimOwner),
		errors.Is(err, ledgerdomain.ErrDuplicateReference):
		return true
	default:
		return false
	}
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, claimdomain.ErrNotFound),
		errors.Is(err, ownerdomain.ErrNotFound),
		errors.Is(err, listingdomain.ErrNotFound),
		errors.Is(err, giftdomain.ErrInvalidCode),
		errors.Is(err, transferdomain.ErrInvalidCode),
		errors.Is(err, paymentdomain.ErrProviderNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func validationErrorCode(err error) string {
	if errors.Is(err, ErrInvalidRequest) {
		return "invalid_request"
	}
	return err.Error()
}

func validationErrorField(code string) string {
	if code == "invalid_request" {
		return "request"
	}
	if strings.HasPrefix(code, "invalid_") {
		return strings.TrimPrefix(code, "invalid_")
	}
	return ""
}

func validationErrorMessage(code string) string {
	switch code {
	case "invalid_request":
		return "invalid request"
	default:
		return "invalid value"
	}
}

// classifyErrorForLog buckets an error for the request log without leaking
// internals into response handling.
func classifyErrorForLog(err error) (string, string) {
	switch {
	case err == nil:
		return "", ""
	case asValidationErrors(err) != nil, isValidationError(err):
		return "validation_error", validationErrorCode(err)
	case isConflictError(err):
		return "conflict", err.Error()
	case isNotFoundError(err):
		return "not_found", err.Error()
	default:
		return "internal_error", ""
	}
}
