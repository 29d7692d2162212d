package models

import "errors"

// Sentinel errors shared across services and mapped to HTTP problems at the
// API boundary. Storage implementations translate their driver-level "no
// rows" conditions into ErrNotFound so services never import a driver.
var (
	ErrValidation        = errors.New("validation failed")
	ErrInsufficientFunds = errors.New("insufficient funds")
	ErrNotFound          = errors.New("not found")
	ErrNotOwned          = errors.New("not owned by actor")
	ErrNotCancelable     = errors.New("order is not cancelable")
	ErrAlreadyCanceled   = errors.New("order already canceled")
	ErrTickInProgress    = errors.New("matching tick already in progress")
	ErrWalletLockTimeout = errors.New("wallet lock wait timed out")
)
