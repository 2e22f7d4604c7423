package domain

import (
	"errors"
	"fmt"
)

// Connection failures.
var (
	ErrNoProvider          = errors.New("no Ethereum provider detected and the development chain is not running")
	ErrContractNotDeployed = errors.New("contract not found on the current network")
	ErrNoAccount           = errors.New("no active account")
)

// Preconditions checked by the client before spending gas.
var (
	ErrNotOwner      = errors.New("You are not the owner of this property")
	ErrBuyOwn        = errors.New("You cannot buy your own property")
	ErrUnknownListed = errors.New("property not found")
)

// ValidationError is a missing or malformed form field.
type ValidationError struct {
	Field   string
	Message string
}

func NewValidationError(field, msg string) *ValidationError {
	return &ValidationError{Field: field, Message: msg}
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s (%s)", e.Message, e.Field)
}

// RevertError is a contract-level rejection carrying the require() reason.
type RevertError struct {
	Reason string
}

func (e *RevertError) Error() string {
	if e.Reason == "" {
		return "execution reverted"
	}
	return "execution reverted: " + e.Reason
}

// TxError is a transaction that failed for gas or network reasons.
type TxError struct {
	Op  string
	Err error
}

func (e *TxError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TxError) Unwrap() error { return e.Err }

// IsRevert reports whether err is (or wraps) a contract revert and returns its reason.
func IsRevert(err error) (string, bool) {
	var r *RevertError
	if errors.As(err, &r) {
		return r.Reason, true
	}
	return "", false
}
