package services

import "errors"

// Sentinel errors returned by the escrow, order and payment services.
// Handlers map these to HTTP statuses; none of them is retried
// internally.
var (
	ErrNotFound           = errors.New("not found")
	ErrInvalidTransition  = errors.New("invalid transition")
	ErrDuplicateEscrow    = errors.New("escrow already exists for order")
	ErrInvalidReleaseCode = errors.New("invalid release code")
	ErrAlreadyReleased    = errors.New("funds already released")
	ErrUnauthorized       = errors.New("unauthorized")
	ErrInvalidAmount      = errors.New("invalid amount")
	ErrStoreNotOrderable  = errors.New("store cannot accept orders")
	ErrGatewayUnavailable = errors.New("payment gateway unavailable")
)
