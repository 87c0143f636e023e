// Package errors provides structured error handling for the contacts service.
package errors

import "net/http"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Contact errors
	CodeContactNotFound        Code = "CONTACT_NOT_FOUND"
	CodeContactDuplicateWallet Code = "CONTACT_DUPLICATE_WALLET"
	CodeContactWalletInUse     Code = "CONTACT_WALLET_IN_USE"
	CodeContactInvalidWallet   Code = "CONTACT_INVALID_WALLET"
	CodeContactInvalidID       Code = "CONTACT_INVALID_ID"

	// Event errors
	CodeEventFilterInvalid Code = "EVENT_FILTER_INVALID"

	// Caller errors
	CodeCallerUnauthenticated Code = "CALLER_UNAUTHENTICATED"
	CodeCallerInvalidOwner    Code = "CALLER_INVALID_OWNER"

	// Grant errors
	CodeGrantInvalid  Code = "GRANT_INVALID"
	CodeGrantExpired  Code = "GRANT_EXPIRED"
	CodeGrantMismatch Code = "GRANT_MISMATCH"

	// Request errors
	CodeRequestInvalid Code = "REQUEST_INVALID"
)

// HTTPStatus maps an error code to its HTTP response status.
func (c Code) HTTPStatus() int {
	switch c {
	case CodeContactNotFound:
		return http.StatusNotFound
	case CodeContactDuplicateWallet, CodeContactWalletInUse:
		return http.StatusConflict
	case CodeContactInvalidWallet, CodeContactInvalidID, CodeCallerInvalidOwner,
		CodeEventFilterInvalid, CodeRequestInvalid:
		return http.StatusBadRequest
	case CodeCallerUnauthenticated, CodeGrantInvalid, CodeGrantExpired, CodeGrantMismatch:
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}
