package errors

// Error codes returned in ErrorResponse.Error.
// Format: CATEGORY_SPECIFIC_DETAIL
const (
	// ==================== Validation (VALIDATION_) ====================
	ValidationInvalidInput    = "VALIDATION_INVALID_INPUT"    // malformed request body
	ValidationInvalidID       = "VALIDATION_INVALID_ID"       // unparsable cart/item/option id
	ValidationInvalidQuantity = "VALIDATION_INVALID_QUANTITY" // quantity must be > 0
	ValidationRequired        = "VALIDATION_REQUIRED"         // missing field

	// ==================== Resources (RESOURCE_) ====================
	ResourceNotFound      = "RESOURCE_NOT_FOUND"
	ResourceAlreadyExists = "RESOURCE_ALREADY_EXISTS"
	ResourceConflict      = "RESOURCE_CONFLICT"

	// ==================== Cart (CART_) ====================
	CartNotFound       = "CART_NOT_FOUND"
	CartItemNotFound   = "CART_ITEM_NOT_FOUND"
	ItemOptionNotFound = "ITEM_OPTION_NOT_FOUND"
	CartForeignOwner   = "CART_FOREIGN_OWNER" // guest cart belongs to another user
	CartConflict       = "CART_CONFLICT"      // aggregate changed while the request waited

	// ==================== Internal (INTERNAL_) ====================
	InternalServerError   = "INTERNAL_SERVER_ERROR"
	InternalDatabaseError = "INTERNAL_DATABASE_ERROR"
	InternalExportError   = "INTERNAL_EXPORT_ERROR"
)
