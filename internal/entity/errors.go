package entity

import "errors"

var (
	// Catalog errors
	ErrEventNotFound    = errors.New("event not found")
	ErrEventUnavailable = errors.New("event is not available")
	ErrShowTimeNotFound = errors.New("show time not found")
	ErrZoneNotFound     = errors.New("zone not found")
	ErrZoneUnavailable  = errors.New("zone has no remaining capacity")

	// Wizard errors
	ErrStateNotFound   = errors.New("saved state not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrWrongStep       = errors.New("operation not allowed at the current step")
	ErrStepIncomplete  = errors.New("current step is not complete")
	ErrNoNextStep      = errors.New("no next step")
	ErrNoPreviousStep  = errors.New("no previous step")
	ErrSessionExpired  = errors.New("payment time has expired")
	ErrNotExpired      = errors.New("payment time has not expired yet")
	ErrInvalidQuantity = errors.New("invalid ticket count")
	ErrCapacityReached = errors.New("ticket count exceeds zone capacity")
	ErrInvalidProof    = errors.New("invalid payment proof")

	// Booking errors
	ErrBookingNotFound      = errors.New("booking not found")
	ErrBookingAlreadyExists = errors.New("booking already exists")
	ErrInvalidBookingStatus = errors.New("invalid booking status")
	ErrMissingExtraField    = errors.New("required extra field is missing")
	ErrInvalidPaymentMethod = errors.New("invalid payment method")

	// General errors
	ErrInvalidInput  = errors.New("invalid input")
	ErrDatabaseError = errors.New("database error")
)
