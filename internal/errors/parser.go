package errors

import (
	"errors"
	"net/http"
	"strings"

	"github.com/ikkim/cart-sync/internal/app/service"
	"gorm.io/gorm"
)

// ErrorInfo is the response-facing view of an error.
type ErrorInfo struct {
	Status  int
	Code    string
	Message string
}

// ParseError maps service, gorm and PostgreSQL errors to a status, code and message.
// Store details are never echoed back to the client.
func ParseError(err error, context string) ErrorInfo {
	if err == nil {
		return ErrorInfo{
			Status:  http.StatusInternalServerError,
			Code:    InternalServerError,
			Message: "An internal error occurred",
		}
	}

	// 1. service taxonomy
	var validation *service.ValidationError
	if errors.As(err, &validation) {
		code := ValidationInvalidInput
		switch {
		case validation.Field == "quantity":
			code = ValidationInvalidQuantity
		case validation.Field == "guest_cart_id" && strings.Contains(validation.Reason, "another user"):
			code = CartForeignOwner
		case strings.Contains(validation.Reason, "required"):
			code = ValidationRequired
		}
		return ErrorInfo{Status: http.StatusBadRequest, Code: code, Message: validation.Error()}
	}

	var notFound *service.NotFoundError
	if errors.As(err, &notFound) {
		return ErrorInfo{
			Status:  http.StatusNotFound,
			Code:    notFoundCode(notFound.Entity),
			Message: notFound.Error(),
		}
	}

	if errors.Is(err, service.ErrConflict) {
		return ErrorInfo{
			Status:  http.StatusConflict,
			Code:    CartConflict,
			Message: "The cart changed while the request was processed, please retry",
		}
	}

	// 2. gorm sentinel errors
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return ErrorInfo{
			Status:  http.StatusNotFound,
			Code:    notFoundCode(context),
			Message: getNotFoundMessage(context),
		}
	}

	// 3. PostgreSQL constraint violations
	errLower := strings.ToLower(err.Error())

	// 3-1. unique constraint violation (23505)
	if strings.Contains(errLower, "duplicate key") || strings.Contains(errLower, "unique constraint") {
		return ErrorInfo{
			Status:  http.StatusConflict,
			Code:    ResourceAlreadyExists,
			Message: "The resource already exists",
		}
	}

	// 3-2. foreign key violation (23503)
	if strings.Contains(errLower, "foreign key constraint") {
		return parseForeignKeyError(errLower)
	}

	// 3-3. not null violation (23502)
	if strings.Contains(errLower, "violates not-null constraint") {
		return ErrorInfo{
			Status:  http.StatusBadRequest,
			Code:    ValidationRequired,
			Message: "A required field is missing",
		}
	}

	// 4. connectivity
	if strings.Contains(errLower, "connection refused") ||
		strings.Contains(errLower, "no such host") ||
		strings.Contains(errLower, "timeout") {
		return ErrorInfo{
			Status:  http.StatusServiceUnavailable,
			Code:    InternalDatabaseError,
			Message: "The database is unavailable, please retry shortly",
		}
	}

	return ErrorInfo{
		Status:  http.StatusInternalServerError,
		Code:    InternalServerError,
		Message: getDefaultErrorMessage(context),
	}
}

func parseForeignKeyError(errLower string) ErrorInfo {
	if strings.Contains(errLower, "still referenced") {
		return ErrorInfo{
			Status:  http.StatusConflict,
			Code:    ResourceConflict,
			Message: "The resource is still referenced",
		}
	}
	if strings.Contains(errLower, "cart_item_id") {
		return ErrorInfo{Status: http.StatusNotFound, Code: CartItemNotFound, Message: "Cart item not found"}
	}
	if strings.Contains(errLower, "cart_id") {
		return ErrorInfo{Status: http.StatusNotFound, Code: CartNotFound, Message: "Cart not found"}
	}
	return ErrorInfo{
		Status:  http.StatusNotFound,
		Code:    ResourceNotFound,
		Message: "Referenced resource not found",
	}
}

func notFoundCode(entity string) string {
	entity = strings.ToLower(entity)
	switch {
	case strings.Contains(entity, "option"):
		return ItemOptionNotFound
	case strings.Contains(entity, "item"):
		return CartItemNotFound
	case strings.Contains(entity, "cart"):
		return CartNotFound
	}
	return ResourceNotFound
}

func getNotFoundMessage(context string) string {
	switch notFoundCode(context) {
	case ItemOptionNotFound:
		return "Item option not found"
	case CartItemNotFound:
		return "Cart item not found"
	case CartNotFound:
		return "Cart not found"
	}
	return "The requested resource was not found"
}

func getDefaultErrorMessage(context string) string {
	contextLower := strings.ToLower(context)

	switch {
	case strings.Contains(contextLower, "create") || strings.Contains(contextLower, "add"):
		return "Failed to create the resource, please retry shortly"
	case strings.Contains(contextLower, "update"):
		return "Failed to update the resource, please retry shortly"
	case strings.Contains(contextLower, "delete"):
		return "Failed to delete the resource, please retry shortly"
	case strings.Contains(contextLower, "merge"):
		return "Failed to merge carts, please retry shortly"
	}
	return "An internal error occurred, please retry shortly"
}

// ParseAndRespond writes the parsed error with its own status code.
func ParseAndRespond(c interface{ JSON(int, interface{}) }, err error, context string) {
	info := ParseError(err, context)
	c.JSON(info.Status, ErrorResponse{
		Error:   info.Code,
		Message: info.Message,
	})
}
