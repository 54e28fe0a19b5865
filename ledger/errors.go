/*
errors.go - Error taxonomy for the inventory ledger

PURPOSE:
  Every failure a caller can see falls into one of two classes:
  1. Validation - a business rule was violated (bad input, insufficient
     stock, over-return, missing entity). Never retried.
  2. Storage - the database signalled a fault that does not correspond
     to a known business condition. Opaque to the caller.

  Export I/O failures live in the export package and surface as-is.

USAGE:
  view, err := engine.RecordSale(ctx, in)
  switch {
  case ledger.IsValidation(err):
      // show err.Error() to the user
  case ledger.IsStorage(err):
      // log, report a generic failure
  }

  The specific business condition is available through errors.Is:

    if errors.Is(err, ledger.ErrInsufficientStock) { ... }

SEE ALSO:
  - engine.go: Produces these errors
  - store/sqlite: Produces ErrNotFound, ErrDuplicateName, ErrReferenced
*/
package ledger

import (
	"errors"
	"fmt"
)

// =============================================================================
// CLASS SENTINELS - Use with errors.Is()
// =============================================================================

var (
	// ErrValidation matches every *ValidationError.
	ErrValidation = errors.New("validation error")

	// ErrStorage matches every *StorageError.
	ErrStorage = errors.New("storage error")
)

// =============================================================================
// STORE CONDITIONS - Returned by Tx implementations, translated by the Engine
// =============================================================================

var (
	// ErrNotFound is returned when the addressed row does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateName is returned when a product name collides (case-insensitive).
	ErrDuplicateName = errors.New("duplicate name")

	// ErrReferenced is returned when a delete is rejected by a foreign key.
	ErrReferenced = errors.New("row is still referenced")

	// ErrUnknownMovementKind is returned when a movement kind is not IN, OUT or RETURN.
	ErrUnknownMovementKind = errors.New("unknown stock movement kind")
)

// =============================================================================
// BUSINESS CONDITIONS - Carried as the Cause of a ValidationError
// =============================================================================

var (
	ErrNameRequired         = errors.New("name is required")
	ErrPhoneRequired        = errors.New("phone is required")
	ErrNegativePrice        = errors.New("price must not be negative")
	ErrNegativeQuantity     = errors.New("quantity must not be negative")
	ErrNonPositiveQuantity  = errors.New("quantity must be greater than zero")
	ErrNonPositiveAmount    = errors.New("amount must be greater than zero")
	ErrProductNotFound      = errors.New("product not found")
	ErrProductArchived      = errors.New("product is archived")
	ErrCustomerNotFound     = errors.New("customer not found")
	ErrCustomerHasHistory   = errors.New("customer has history that cannot be removed")
	ErrInsufficientStock    = errors.New("insufficient stock")
	ErrCreditNeedsCustomer  = errors.New("credit sale requires a customer")
	ErrReturnViaStockEntry  = errors.New("returns must be recorded through the return operation")
	ErrNoReturnableSale     = errors.New("no returnable sale")
	ErrReturnExceedsBalance = errors.New("return exceeds outstanding quantity")
)

// =============================================================================
// STRUCTURED ERRORS
// =============================================================================

// ValidationError is a business-rule violation. Its Error() is the
// user-facing message and nothing else.
type ValidationError struct {
	Op      string
	Message string
	Cause   error
}

func (e *ValidationError) Error() string { return e.Message }

func (e *ValidationError) Unwrap() error { return e.Cause }

func (e *ValidationError) Is(target error) bool { return target == ErrValidation }

func invalid(op string, cause error, format string, args ...any) error {
	return &ValidationError{Op: op, Message: fmt.Sprintf(format, args...), Cause: cause}
}

// StorageError wraps a database fault with the operation that hit it.
type StorageError struct {
	Op  string
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s: %v", e.Op, e.Err)
}

func (e *StorageError) Unwrap() error { return e.Err }

func (e *StorageError) Is(target error) bool { return target == ErrStorage }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsValidation reports whether err is a business-rule violation.
func IsValidation(err error) bool {
	return errors.Is(err, ErrValidation)
}

// IsStorage reports whether err is an opaque storage fault.
func IsStorage(err error) bool {
	return errors.Is(err, ErrStorage)
}
