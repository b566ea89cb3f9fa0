package database

import (
	"strings"

	"github.com/lib/pq"
	"github.com/pharmtrace/pharmtrace-backend/pkg/errors"
)

// MapPQError converts a PostgreSQL error to an AppError with meaningful messages.
// Returns nil if the error is not a pq.Error.
func MapPQError(err error) *errors.AppError {
	pqErr, ok := err.(*pq.Error)
	if !ok {
		return nil
	}

	switch pqErr.Code {
	// Check constraint violation (23514)
	case "23514":
		return mapCheckConstraint(pqErr)

	// Unique constraint violation (23505)
	case "23505":
		return errors.Conflict(formatConstraintMessage(pqErr))

	// Foreign key violation (23503)
	case "23503":
		return errors.BadRequest("referenced record does not exist")

	// Not null violation (23502)
	case "23502":
		col := pqErr.Column
		if col == "" {
			col = "required field"
		}
		return errors.Validation(map[string]string{
			col: "must not be empty",
		})

	default:
		return nil
	}
}

// mapCheckConstraint maps specific CHECK constraint names to user-friendly messages.
func mapCheckConstraint(pqErr *pq.Error) *errors.AppError {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "inventory_status_valid"):
		return errors.Validation(map[string]string{
			"status": "must be one of: available, allocated, shipped, expired, damaged",
		})

	case strings.Contains(constraint, "transaction_type_valid"):
		return errors.Validation(map[string]string{
			"transaction_type": "must be one of: receive, allocation, shipment, transfer, status_change",
		})

	case strings.Contains(constraint, "match_status_valid"):
		return errors.Validation(map[string]string{
			"match_status": "must be one of: MATCH_PO, MATCH_DIFFERENT_PO, MATCH_NO_PO, NO_MATCH, UNKNOWN",
		})

	case strings.Contains(constraint, "quantity_positive"):
		return errors.Validation(map[string]string{
			"quantity": "must be greater than zero",
		})

	default:
		return errors.BadRequest("data validation failed: " + constraint)
	}
}

// formatConstraintMessage creates a user-friendly message for unique constraint violations.
func formatConstraintMessage(pqErr *pq.Error) string {
	constraint := pqErr.Constraint

	switch {
	case strings.Contains(constraint, "inventory_sgtin"):
		return "inventory for this GTIN and serial number already exists"
	case strings.Contains(constraint, "product_items_sgtin"):
		return "a product item with this GTIN and serial number already exists"
	case strings.Contains(constraint, "file_po"):
		return "this EPCIS file is already associated with the purchase order"
	default:
		return "a record with these values already exists"
	}
}
