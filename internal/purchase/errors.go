package purchase

import "github.com/pkg/errors"

var (
	ErrValidation = errors.New("invalid purchase request")
	ErrNotFound   = errors.New("purchase request not found")
	// ErrIdempotencyKeyReused is returned when the key belongs to a failed or
	// expired request. A retry needs a fresh key.
	ErrIdempotencyKeyReused = errors.New("idempotency key already used by a finished purchase")
	// ErrIdempotencyKeyConflict is returned when the key exists with different
	// purchase parameters or another owner.
	ErrIdempotencyKeyConflict  = errors.New("idempotency key already used for a different purchase")
	ErrDuplicateIdempotencyKey = errors.New("duplicate idempotency key")
	ErrInvalidTransition       = errors.New("invalid purchase status transition")

	errAlreadyFinal = errors.New("purchase already final")
)
