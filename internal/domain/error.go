package domain

import (
	"errors"
	"fmt"
)

var (
	// Common domain errors
	ErrNotFound             = errors.New("entity not found")
	ErrNoActiveSubscription = errors.New("no active subscription")
	ErrAlreadyExists        = errors.New("entity already exists")
	ErrInvalidArgument      = errors.New("invalid argument")
	ErrOperationFailed      = errors.New("operation failed")
	ErrReadDatabaseRow      = errors.New("failed to read database row")
	ErrInvalidExecContext   = errors.New("invalid execution context")

	// Signing / request building
	ErrAmountInvalid    = errors.New("amount is negative or not numeric")
	ErrSecretKeyInvalid = errors.New("gateway secret key is not valid hex")

	// Checkout
	ErrGatewayUnavailable   = errors.New("checkout gateway unavailable")
	ErrGatewayMisconfigured = errors.New("checkout gateway has no open entry point")
	ErrPaymentFailed        = errors.New("payment failed")
	ErrSessionState         = errors.New("checkout session is not in the required state")
	ErrReferenceCollision   = errors.New("merchant reference already issued")
	ErrRateLimited          = errors.New("too many requests")

	// Persistence after a captured payment. Logged and alerted, never returned to the payer.
	ErrPersistenceFailed = errors.New("subscription persistence failed")

	// Subscription lifecycle. All status conflicts match ErrStatusConflict.
	ErrStatusConflict   = errors.New("subscription status conflict")
	ErrAlreadyCancelled = fmt.Errorf("%w: subscription already cancelled", ErrStatusConflict)
	ErrNotCancelled     = fmt.Errorf("%w: subscription is not cancelled", ErrStatusConflict)
	ErrExpired          = errors.New("subscription period has ended")
)
